package main

import (
	"context"
	"errors"
	"fmt"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
)

type playOptions struct {
	Dungeon    string
	Seed       uint32
	LootMode   raid.LootMode
	MaxAttacks int
	Element    string
}

type playReport struct {
	RaidID     string
	Floors     int
	Boss       raid.BossView
	Attacks    int
	Defeated   bool
	Completion raid.CompletionResult
}

// playRaid takes one raid from creation to completion with a party of
// leader followed by the others.
func playRaid(ctx context.Context, leader *client, others []*client, opt playOptions) (playReport, error) {
	var rep playReport
	party := append([]*client{leader}, others...)

	var r raid.Raid
	if err := leader.call(ctx, protocol.OpCreate, protocol.CreateArgs{DungeonID: opt.Dungeon}, &r); err != nil {
		return rep, err
	}
	rep.RaidID = r.ID
	leader.log.Printf("created %s for %s", r.ID, opt.Dungeon)
	for _, c := range others {
		if err := c.call(ctx, protocol.OpJoin, protocol.RaidArgs{RaidID: r.ID}, nil); err != nil {
			return rep, err
		}
	}

	seed := opt.Seed
	var st raid.StartResult
	if err := leader.call(ctx, protocol.OpStart, protocol.StartArgs{RaidID: r.ID, Seed: &seed}, &st); err != nil {
		return rep, err
	}
	rep.Floors = st.Floors
	leader.log.Printf("started %s floors=%d seed=%d", r.ID, st.Floors, st.Seed)

	floor := st.Layout[0]
	for {
		if err := solveFloor(ctx, leader, party, r.ID, floor); err != nil {
			return rep, err
		}
		if floor.Number >= st.Floors {
			break
		}
		var next raid.FloorView
		if err := leader.call(ctx, protocol.OpAdvanceFloor, protocol.RaidArgs{RaidID: r.ID}, &next); err != nil {
			return rep, err
		}
		floor = next
	}

	if err := leader.call(ctx, protocol.OpStartBoss, protocol.RaidArgs{RaidID: r.ID}, &rep.Boss); err != nil {
		return rep, err
	}
	leader.log.Printf("boss %s health=%d phases=%d", rep.Boss.Name, rep.Boss.Health, rep.Boss.Phases)

	for rep.Attacks < opt.MaxAttacks && !rep.Defeated {
		c := party[rep.Attacks%len(party)]
		var res raid.AttackResult
		if err := c.call(ctx, protocol.OpAttackBoss, protocol.AttackArgs{RaidID: r.ID, Element: opt.Element}, &res); err != nil {
			return rep, err
		}
		rep.Attacks++
		rep.Defeated = res.Defeated
		if res.PhaseChanged && !res.Defeated {
			var ph raid.PhaseResult
			err := leader.call(ctx, protocol.OpAdvancePhase, protocol.RaidArgs{RaidID: r.ID}, &ph)
			var cf *callFailed
			switch {
			case errors.As(err, &cf) && cf.Code == protocol.ErrInvalidState:
				leader.log.Printf("phase not advanced: %s", cf.Reason)
			case err != nil:
				return rep, err
			default:
				leader.log.Printf("phase %d boss_health=%d", ph.Phase, ph.BossHealth)
			}
		}
	}

	args := protocol.CompleteArgs{RaidID: r.ID, Seed: &seed, LootMode: opt.LootMode}
	if err := leader.call(ctx, protocol.OpCompleteBoss, args, &rep.Completion); err != nil {
		return rep, err
	}
	leader.log.Printf("completed %s attacks=%d defeated=%v xp=%d spark=%d loot=%d",
		r.ID, rep.Attacks, rep.Defeated, rep.Completion.Reward.XP, rep.Completion.Reward.Spark, len(rep.Completion.LootPool))
	return rep, nil
}

// solveFloor submits an attempt for the floor's puzzle when the party is
// big enough. A puzzle the party cannot staff is skipped.
func solveFloor(ctx context.Context, leader *client, party []*client, raidID string, f raid.FloorView) error {
	p := f.Puzzle
	if p == nil || p.Solved || p.MinPlayers > len(party) {
		return nil
	}
	subs := make([]raid.Submission, 0, len(party))
	for _, c := range party {
		subs = append(subs, raid.Submission{PlayerID: c.player, Action: "solve"})
	}
	var res raid.PuzzleResult
	err := leader.call(ctx, protocol.OpSolvePuzzle, protocol.SolvePuzzleArgs{RaidID: raidID, PuzzleID: p.ID, Submissions: subs}, &res)
	var cf *callFailed
	if errors.As(err, &cf) && cf.Code == protocol.ErrValidation {
		leader.log.Printf("puzzle %s not solved: %s", p.ID, cf.Reason)
		return nil
	}
	if err != nil {
		return fmt.Errorf("floor %d: %w", f.Number, err)
	}
	leader.log.Printf("solved %s (%s) total=%d", p.ID, p.Name, res.PuzzlesSolved)
	return nil
}
