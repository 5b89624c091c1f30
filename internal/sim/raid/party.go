package raid

import "strings"

// normPlayer is applied to every player id entering the engine.
func normPlayer(id string) string { return strings.TrimSpace(id) }

// Create opens a forming raid led by leader.
func (e *Engine) Create(leader, dungeonID string, tick uint64) (*Raid, error) {
	leader = normPlayer(leader)
	if leader == "" {
		return nil, fail(ErrValidation, "create: empty leader id")
	}
	d, ok := e.cats.Dungeon(dungeonID)
	if !ok {
		return nil, fail(ErrNotFound, "dungeon %s not found", dungeonID)
	}
	t := &txn{e: e}
	var out *Raid
	_, err := e.store.create(leader, d.ID, tick, func(id string) *Raid {
		r := &Raid{
			ID:           id,
			DungeonID:    d.ID,
			Party:        []string{leader},
			Leader:       leader,
			Status:       StatusForming,
			CreatedTick:  tick,
			LastTick:     tick,
			Distribution: map[string][]string{},
			Health:       map[string]int{leader: e.tune.Party.StartHealth},
		}
		t.r = r
		t.emit(Event{Kind: EventCreated, Player: leader, Target: d.ID})
		out = r.Clone()
		return r
	})
	if err != nil {
		return nil, err
	}
	e.flush(t)
	return out, nil
}

type JoinResult struct {
	RaidID    string   `json:"raid_id"`
	Party     []string `json:"party"`
	PartySize int      `json:"party_size"`
}

// Join adds player to a forming raid. The cooldown check uses tick.
func (e *Engine) Join(raidID, player string, tick uint64) (JoinResult, error) {
	player = normPlayer(player)
	if player == "" {
		return JoinResult{}, fail(ErrValidation, "join: empty player id")
	}
	var res JoinResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusForming, "join"); err != nil {
			return err
		}
		d, err := e.dungeonFor(r)
		if err != nil {
			return err
		}
		if len(r.Party) >= d.MaxPlayers {
			return fail(ErrMembership, "raid %s is full (%d/%d)", r.ID, len(r.Party), d.MaxPlayers)
		}
		if r.isMember(player) {
			return fail(ErrMembership, "player %s is already in raid %s", player, r.ID)
		}
		if err := e.store.claim(player, r.ID, r.DungeonID, tick); err != nil {
			return err
		}
		r.Party = append(r.Party, player)
		r.Health[player] = e.tune.Party.StartHealth
		r.touch(tick)
		t.emit(Event{Kind: EventJoined, Player: player, Amount: len(r.Party)})
		res = JoinResult{RaidID: r.ID, Party: append([]string(nil), r.Party...), PartySize: len(r.Party)}
		return nil
	})
	return res, err
}

type LeaveResult struct {
	RaidID    string  `json:"raid_id"`
	Leader    string  `json:"leader,omitempty"`
	PartySize int     `json:"party_size"`
	Abandoned bool    `json:"abandoned,omitempty"`
	Reward    *Reward `json:"reward,omitempty"`
}

// Leave removes player from a non-terminal raid. The last player out
// abandons the raid, which pays the partial reward for cleared floors.
func (e *Engine) Leave(raidID, player string) (LeaveResult, error) {
	player = normPlayer(player)
	var res LeaveResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if r.Status.Terminal() {
			return fail(ErrAlreadyDone, "leave: raid %s is already %s", r.ID, r.Status)
		}
		i := indexOf(r.Party, player)
		if i < 0 {
			return fail(ErrMembership, "player %s is not in raid %s", player, r.ID)
		}
		r.Party = append(r.Party[:i:i], r.Party[i+1:]...)
		delete(r.Health, player)
		e.store.release(r.ID, player)
		t.emit(Event{Kind: EventLeft, Player: player, Amount: len(r.Party)})

		if len(r.Party) == 0 {
			r.Status = StatusAbandoned
			r.Leader = ""
			r.EndTick = r.LastTick
			reward := e.partialReward(r.floorsCleared())
			t.emit(Event{Kind: EventAbandoned, Player: player})
			t.failure = &FailureRecord{
				RaidID:        r.ID,
				DungeonID:     r.DungeonID,
				Party:         []string{player},
				Status:        StatusAbandoned,
				Reason:        "abandoned",
				Tick:          r.EndTick,
				FloorsCleared: r.floorsCleared(),
				Reward:        reward,
			}
			e.logger.Printf("raid %s abandoned by %s floors_cleared=%d", r.ID, player, r.floorsCleared())
			res = LeaveResult{RaidID: r.ID, Abandoned: true, Reward: &reward}
			return nil
		}
		if r.Leader == player {
			r.Leader = r.Party[0]
			t.emit(Event{Kind: EventNewLeader, Player: r.Leader})
		}
		res = LeaveResult{RaidID: r.ID, Leader: r.Leader, PartySize: len(r.Party)}
		return nil
	})
	return res, err
}
