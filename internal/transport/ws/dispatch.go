package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/sim/rng"
)

// Ticker is the tick source handed to the engine on every call.
type Ticker interface {
	Tick() uint64
	RateHz() int
}

// callError is a dispatch failure that already knows its wire code.
type callError struct {
	code   string
	reason string
}

func (e *callError) Error() string { return e.reason }

func badArgs(op string, err error) error {
	return &callError{code: protocol.ErrBadRequest, reason: fmt.Sprintf("%s: bad args: %v", op, err)}
}

func decodeArgs(call protocol.CallMsg, v any) error {
	if len(call.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(call.Args, v); err != nil {
		return badArgs(call.Op, err)
	}
	return nil
}

func requireRaidID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return &callError{code: protocol.ErrBadRequest, reason: op + ": raid_id is required"}
	}
	return nil
}

// Dispatch runs one CALL on behalf of player at the current tick. It returns
// the RESULT and the raid the call touched, if any.
func (s *Server) Dispatch(player string, call protocol.CallMsg) (protocol.ResultMsg, string) {
	tick := s.clock.Tick()
	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ID:              call.ID,
		Op:              call.Op,
		Tick:            tick,
	}
	data, raidID, err := s.run(player, tick, call)
	if err != nil {
		res.Code = protocol.CodeFor(err)
		var ce *callError
		if errors.As(err, &ce) {
			res.Code = ce.code
		}
		res.Reason = raid.Reason(err)
		if res.Code == protocol.ErrInternal {
			s.log.Printf("call %s by %s: %v", call.Op, player, err)
		}
		return res, ""
	}
	res.OK = true
	res.Data = data
	return res, raidID
}

// memberCall decodes args into v, checks that player belongs to the raid
// and returns its id.
func (s *Server) memberCall(player string, call protocol.CallMsg, v any, raidID *string) (string, error) {
	if err := decodeArgs(call, v); err != nil {
		return "", err
	}
	if err := requireRaidID(call.Op, *raidID); err != nil {
		return "", err
	}
	if err := s.engine.CheckMember(*raidID, player); err != nil {
		if errors.Is(err, raid.ErrMembership) {
			return "", &callError{code: protocol.ErrNoPermission, reason: raid.Reason(err)}
		}
		return "", err
	}
	return *raidID, nil
}

func (s *Server) run(player string, tick uint64, call protocol.CallMsg) (any, string, error) {
	e := s.engine
	switch call.Op {
	case protocol.OpCreate:
		var a protocol.CreateArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		r, err := e.Create(player, a.DungeonID, tick)
		if err != nil {
			return nil, "", err
		}
		return r, r.ID, nil

	case protocol.OpJoin:
		var a protocol.RaidArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		if err := requireRaidID(call.Op, a.RaidID); err != nil {
			return nil, "", err
		}
		out, err := e.Join(a.RaidID, player, tick)
		return out, a.RaidID, err

	case protocol.OpLeave:
		var a protocol.RaidArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		if err := requireRaidID(call.Op, a.RaidID); err != nil {
			return nil, "", err
		}
		out, err := e.Leave(a.RaidID, player)
		return out, a.RaidID, err

	case protocol.OpStart:
		var a protocol.StartArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.Start(id, tick, rng.FromPtr(a.Seed))
		return out, id, err

	case protocol.OpAdvanceFloor:
		var a protocol.RaidArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.AdvanceFloor(id, tick)
		return out, id, err

	case protocol.OpSolvePuzzle:
		var a protocol.SolvePuzzleArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.SolvePuzzle(id, a.PuzzleID, a.Submissions)
		return out, id, err

	case protocol.OpStartBoss:
		var a protocol.RaidArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.StartBossFight(id)
		return out, id, err

	case protocol.OpAttackBoss:
		var a protocol.AttackArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.AttackBoss(id, player, a.Element, tick, rng.FromPtr(a.Seed))
		return out, id, err

	case protocol.OpBossMechanic:
		var a protocol.MechanicArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.ProcessBossMechanic(id, a.MechanicID, a.Responses, tick)
		return out, id, err

	case protocol.OpAdvancePhase:
		var a protocol.RaidArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.AdvanceBossPhase(id, tick)
		return out, id, err

	case protocol.OpCompleteBoss:
		var a protocol.CompleteArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.CompleteBoss(id, raid.CompleteRequest{EndTick: tick, Seed: rng.FromPtr(a.Seed), Loot: a.LootMode})
		return out, id, err

	case protocol.OpFailRaid:
		var a protocol.FailArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.FailRaid(id, a.Reason)
		return out, id, err

	case protocol.OpDistributeItem:
		var a protocol.DistributeArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.DistributeItem(id, a.ItemID, a.PlayerID)
		return out, id, err

	case protocol.OpRollForLoot:
		var a protocol.RollArgs
		id, err := s.memberCall(player, call, &a, &a.RaidID)
		if err != nil {
			return nil, "", err
		}
		out, err := e.RollForLoot(id, a.ItemID, rng.FromPtr(a.Seed))
		return out, id, err

	case protocol.OpRaidState:
		var a protocol.RaidArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		r := e.RaidState(a.RaidID)
		if r == nil {
			return nil, "", &raid.Error{Kind: raid.ErrNotFound, Reason: fmt.Sprintf("raid %s not found", a.RaidID)}
		}
		return r, "", nil

	case protocol.OpAvailableRaids:
		var a protocol.AvailableArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		return e.AvailableRaids(a.DungeonID), "", nil

	case protocol.OpPlayerCooldown:
		var a protocol.PlayerArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		if a.PlayerID == "" {
			a.PlayerID = player
		}
		return e.PlayerCooldown(a.PlayerID, a.DungeonID, tick), "", nil

	case protocol.OpRaidHistory:
		var a protocol.PlayerArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		if a.PlayerID == "" {
			a.PlayerID = player
		}
		return e.RaidHistory(a.PlayerID), "", nil

	case protocol.OpLeaderboard:
		var a protocol.LeaderboardArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		return e.Leaderboard(a.DungeonID, a.Limit), "", nil

	case protocol.OpDungeons:
		return e.Dungeons(), "", nil

	case protocol.OpBosses:
		return e.Bosses(), "", nil

	case protocol.OpPartyStats:
		var a protocol.RaidArgs
		if err := decodeArgs(call, &a); err != nil {
			return nil, "", err
		}
		st, ok := e.PartyStats(a.RaidID)
		if !ok {
			return nil, "", &raid.Error{Kind: raid.ErrNotFound, Reason: fmt.Sprintf("raid %s not found", a.RaidID)}
		}
		return st, "", nil
	}
	return nil, "", &callError{code: protocol.ErrUnknownOp, reason: fmt.Sprintf("unknown op %q", call.Op)}
}
