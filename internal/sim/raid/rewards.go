package raid

import (
	"math"
	"strconv"

	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/rng"
)

type CompleteRequest struct {
	EndTick uint64
	Seed    rng.Seed
	Loot    LootMode
}

type CompletionResult struct {
	RaidID             string                         `json:"raid_id"`
	Reward             Reward                         `json:"reward"`
	DurationTicks      uint64                         `json:"duration_ticks"`
	LootMode           LootMode                       `json:"loot_mode"`
	LootPool           []catalogs.LootItem            `json:"loot_pool"`
	Loot               map[string][]catalogs.LootItem `json:"loot"`
	Rolls              map[string]map[string]int      `json:"rolls,omitempty"`
	ForcedBeforeDefeat bool                           `json:"forced_before_defeat,omitempty"`
}

// CompleteBoss ends a boss fight as a victory whatever the boss's remaining
// health, rolls the loot pool and writes cooldowns, history and the
// leaderboard.
func (e *Engine) CompleteBoss(raidID string, req CompleteRequest) (CompletionResult, error) {
	if !req.Loot.Valid() {
		return CompletionResult{}, fail(ErrValidation, "complete: unknown loot mode %q", req.Loot)
	}
	mode := req.Loot
	if mode == "" {
		mode = LootRoundRobin
	}
	var res CompletionResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusBossFight, "complete"); err != nil {
			return err
		}
		if req.EndTick < r.StartTick {
			return fail(ErrValidation, "complete: end tick %d is before start tick %d", req.EndTick, r.StartTick)
		}
		d, err := e.dungeonFor(r)
		if err != nil {
			return err
		}
		b, err := e.bossFor(r)
		if err != nil {
			return err
		}
		table, ok := e.cats.LootTable(d.LootTableID)
		if !ok {
			return fail(ErrNotFound, "loot table %s not found", d.LootTableID)
		}

		lootSeed := req.Seed.Resolve(r.ID, "loot")
		g := rng.New(lootSeed)
		count := int(math.Floor(float64(len(r.Party)) * b.LootBonus))
		count = max(1, min(len(table.Items), count))
		pool := rng.Shuffle(g, table.Items)[:count]

		res = CompletionResult{
			RaidID:             r.ID,
			LootMode:           mode,
			ForcedBeforeDefeat: r.BossHealth > 0,
			Loot:               make(map[string][]catalogs.LootItem, len(r.Party)),
		}
		r.BossHealth = 0
		r.Status = StatusCompleted
		r.EndTick = req.EndTick
		r.LastTick = req.EndTick
		if f := r.floor(len(r.Floors)); f != nil {
			f.Cleared = true
		}
		r.LootMode = mode
		r.LootPool = append([]catalogs.LootItem(nil), pool...)
		r.Distribution = make(map[string][]string, len(r.Party))
		for _, p := range r.Party {
			r.Distribution[p] = []string{}
		}

		switch mode {
		case LootRoundRobin:
			for i, it := range pool {
				p := r.Party[i%len(r.Party)]
				r.Distribution[p] = append(r.Distribution[p], it.ID)
			}
		case LootRoll:
			res.Rolls = make(map[string]map[string]int, len(pool))
			for _, it := range pool {
				rolls, winner := rollOff(r.Party, rng.HashSeed(strconv.FormatUint(uint64(lootSeed), 10), "roll:"+it.ID))
				res.Rolls[it.ID] = rolls
				r.Distribution[winner] = append(r.Distribution[winner], it.ID)
				t.emit(Event{Kind: EventLootRolled, Player: winner, Target: it.ID, Amount: rolls[winner]})
			}
		}

		rw := e.tune.Rewards
		res.Reward = Reward{
			XP:    rw.XPPerDifficulty*d.BaseDifficulty + rw.XPPerPuzzle*r.PuzzlesSolved,
			Spark: rw.SparkPerDifficulty*d.BaseDifficulty + rw.SparkPerPuzzle*r.PuzzlesSolved,
		}
		res.DurationTicks = r.EndTick - r.StartTick
		res.LootPool = append([]catalogs.LootItem(nil), pool...)
		for _, p := range r.Party {
			items := make([]catalogs.LootItem, 0, len(r.Distribution[p]))
			for _, id := range r.Distribution[p] {
				if it, ok := r.lootItem(id); ok {
					items = append(items, it)
				}
			}
			res.Loot[p] = items
		}

		e.store.recordCompletion(r, d.CooldownTicks)

		t.emit(Event{Kind: EventCompleted, Target: b.ID, Amount: int(res.DurationTicks), Detail: string(mode)})
		if mode == LootRoundRobin {
			for _, p := range r.Party {
				for _, id := range r.Distribution[p] {
					t.emit(Event{Kind: EventLootAssigned, Player: p, Target: id})
				}
			}
		}
		t.completion = &CompletionRecord{
			RaidID:        r.ID,
			DungeonID:     r.DungeonID,
			Party:         append([]string(nil), r.Party...),
			StartTick:     r.StartTick,
			EndTick:       r.EndTick,
			DurationTicks: res.DurationTicks,
			PuzzlesSolved: r.PuzzlesSolved,
			Reward:        res.Reward,
			LootMode:      mode,
			Loot:          cloneDistribution(r.Distribution),
		}
		e.logger.Printf("raid %s completed dungeon=%s duration=%d loot=%d mode=%s forced=%v",
			r.ID, r.DungeonID, res.DurationTicks, len(pool), mode, res.ForcedBeforeDefeat)
		return nil
	})
	return res, err
}

type FailResult struct {
	RaidID        string `json:"raid_id"`
	Reason        string `json:"reason"`
	FloorsCleared int    `json:"floors_cleared"`
	Reward        Reward `json:"reward"`
}

// FailRaid ends a non-terminal raid as a failure with the partial reward.
// Failures set no cooldown and write no history.
func (e *Engine) FailRaid(raidID, reason string) (FailResult, error) {
	if reason == "" {
		reason = "unspecified"
	}
	var res FailResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if r.Status.Terminal() {
			return fail(ErrAlreadyDone, "fail: raid %s is already %s", r.ID, r.Status)
		}
		cleared := r.floorsCleared()
		r.Status = StatusFailed
		r.EndTick = r.LastTick
		e.store.release(r.ID, r.Party...)
		res = FailResult{RaidID: r.ID, Reason: reason, FloorsCleared: cleared, Reward: e.partialReward(cleared)}
		t.emit(Event{Kind: EventFailed, Amount: cleared, Detail: reason})
		t.failure = &FailureRecord{
			RaidID:        r.ID,
			DungeonID:     r.DungeonID,
			Party:         append([]string(nil), r.Party...),
			Status:        StatusFailed,
			Reason:        reason,
			Tick:          r.EndTick,
			FloorsCleared: cleared,
			Reward:        res.Reward,
		}
		e.logger.Printf("raid %s failed reason=%q floors_cleared=%d", r.ID, reason, cleared)
		return nil
	})
	return res, err
}

type DistributeResult struct {
	ItemID   string   `json:"item_id"`
	PlayerID string   `json:"player_id"`
	Items    []string `json:"items"`
}

// DistributeItem hands a pooled item to a party member. Each item goes out
// at most once.
func (e *Engine) DistributeItem(raidID, itemID, player string) (DistributeResult, error) {
	player = normPlayer(player)
	var res DistributeResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if _, ok := r.lootItem(itemID); !ok {
			return fail(ErrNotFound, "item %s is not in the loot pool of raid %s", itemID, r.ID)
		}
		if !r.isMember(player) {
			return fail(ErrMembership, "player %s is not in raid %s", player, r.ID)
		}
		if r.distributed(itemID) {
			return fail(ErrAlreadyDone, "item %s is already distributed", itemID)
		}
		r.Distribution[player] = append(r.Distribution[player], itemID)
		t.emit(Event{Kind: EventLootAssigned, Player: player, Target: itemID})
		res = DistributeResult{ItemID: itemID, PlayerID: player, Items: append([]string(nil), r.Distribution[player]...)}
		return nil
	})
	return res, err
}

type RollResult struct {
	ItemID      string         `json:"item_id"`
	Rolls       map[string]int `json:"rolls"`
	Winner      string         `json:"winner"`
	WinningRoll int            `json:"winning_roll"`
}

// RollForLoot rolls 1..100 for every member in party order and appends the
// item to the strict highest roller. Ties go to the earlier member.
func (e *Engine) RollForLoot(raidID, itemID string, seed rng.Seed) (RollResult, error) {
	var res RollResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if _, ok := r.lootItem(itemID); !ok {
			return fail(ErrNotFound, "item %s is not in the loot pool of raid %s", itemID, r.ID)
		}
		if len(r.Party) == 0 {
			return fail(ErrMembership, "raid %s has no party to roll", r.ID)
		}
		rolls, winner := rollOff(r.Party, seed.Resolve(r.ID, "roll:"+itemID))
		if r.Distribution == nil {
			r.Distribution = map[string][]string{}
		}
		r.Distribution[winner] = append(r.Distribution[winner], itemID)
		t.emit(Event{Kind: EventLootRolled, Player: winner, Target: itemID, Amount: rolls[winner]})
		res = RollResult{ItemID: itemID, Rolls: rolls, Winner: winner, WinningRoll: rolls[winner]}
		return nil
	})
	return res, err
}

func rollOff(party []string, seed uint32) (map[string]int, string) {
	g := rng.New(seed)
	rolls := make(map[string]int, len(party))
	winner, best := "", 0
	for _, p := range party {
		v := g.IntRange(1, 100)
		rolls[p] = v
		if v > best {
			winner, best = p, v
		}
	}
	return rolls, winner
}

func cloneDistribution(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
