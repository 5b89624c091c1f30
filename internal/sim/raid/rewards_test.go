package raid

import (
	"sync"
	"testing"

	"raidforge.ai/internal/sim/rng"
)

type memResults struct {
	mu          sync.Mutex
	completions []CompletionRecord
	failures    []FailureRecord
}

func (m *memResults) RecordCompletion(rec CompletionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, rec)
}

func (m *memResults) RecordFailure(rec FailureRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, rec)
}

func TestScenario_FailAfterTwoFloors(t *testing.T) {
	rec := &memResults{}
	e := newTestEngine(t, WithResultRecorder(rec))
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	if _, err := e.Start(id, 10, rng.WithSeed(1)); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.AdvanceFloor(id, 0); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	res, err := e.FailRaid(id, "wiped")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if res.Reward != (Reward{XP: 40, Spark: 20}) || res.FloorsCleared != 2 || res.Reason != "wiped" {
		t.Fatalf("unexpected fail result: %+v", res)
	}
	_, err = e.FailRaid(id, "again")
	wantKind(t, err, ErrAlreadyDone)

	if len(rec.failures) != 1 || rec.failures[0].Status != StatusFailed || rec.failures[0].FloorsCleared != 2 {
		t.Fatalf("unexpected failure records: %+v", rec.failures)
	}
	if cd := e.PlayerCooldown("alice", "crystal_caverns", 10); cd.OnCooldown {
		t.Fatalf("failure must not set a cooldown")
	}
	if h := e.RaidHistory("alice"); len(h) != 0 {
		t.Fatalf("failure must not write history: %+v", h)
	}
	if _, err := e.Create("alice", "crystal_caverns", 11); err != nil {
		t.Fatalf("alice should be free after failure: %v", err)
	}
}

func TestScenario_RollForLootIsDeterministic(t *testing.T) {
	roll := func() RollResult {
		e := newTestEngine(t)
		id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob", "carol")
		toBoss(t, e, id, 0, 1)
		done, err := e.CompleteBoss(id, CompleteRequest{EndTick: 50, Loot: LootManual})
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		item := done.LootPool[0].ID
		first, err := e.RollForLoot(id, item, rng.WithSeed(1234))
		if err != nil {
			t.Fatalf("roll: %v", err)
		}
		second, err := e.RollForLoot(id, item, rng.WithSeed(1234))
		if err != nil {
			t.Fatalf("roll again: %v", err)
		}
		if first.Winner != second.Winner {
			t.Fatalf("repeat roll picked %s then %s", first.Winner, second.Winner)
		}
		return first
	}
	a, b := roll(), roll()
	if a.Winner != b.Winner || a.WinningRoll != b.WinningRoll {
		t.Fatalf("independent runs disagree: %+v vs %+v", a, b)
	}
	if len(a.Rolls) != 3 {
		t.Fatalf("rolls=%v", a.Rolls)
	}
	best, bestPlayer := 0, ""
	for _, p := range []string{"alice", "bob", "carol"} {
		v := a.Rolls[p]
		if v < 1 || v > 100 {
			t.Fatalf("roll out of range: %s=%d", p, v)
		}
		if v > best {
			best, bestPlayer = v, p
		}
	}
	if a.WinningRoll != best || a.Winner != bestPlayer {
		t.Fatalf("winner %s/%d, strict max is %s/%d", a.Winner, a.WinningRoll, bestPlayer, best)
	}
}

func TestRollOff_TiesGoToEarlierMember(t *testing.T) {
	party := []string{"alice", "bob", "carol"}
	for seed := uint32(0); seed < 200; seed++ {
		rolls, winner := rollOff(party, seed)
		for _, p := range party {
			if p == winner {
				break
			}
			if rolls[p] >= rolls[winner] {
				t.Fatalf("seed %d: %s rolled %d before winner %s rolled %d", seed, p, rolls[p], winner, rolls[winner])
			}
		}
	}
}

func TestCompleteBoss_RoundRobinLoot(t *testing.T) {
	rec := &memResults{}
	e := newTestEngine(t, WithResultRecorder(rec))
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	toBoss(t, e, id, 100, 42)

	_, err := e.CompleteBoss(id, CompleteRequest{EndTick: 99})
	wantKind(t, err, ErrValidation)
	_, err = e.CompleteBoss(id, CompleteRequest{EndTick: 500, Loot: "auction"})
	wantKind(t, err, ErrValidation)

	res, err := e.CompleteBoss(id, CompleteRequest{EndTick: 600, Seed: rng.WithSeed(8)})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.ForcedBeforeDefeat || res.LootMode != LootRoundRobin || res.DurationTicks != 500 {
		t.Fatalf("unexpected completion: %+v", res)
	}
	if res.Reward != (Reward{XP: 300, Spark: 150}) {
		t.Fatalf("reward=%+v", res.Reward)
	}
	// floor(2 * 1.5) = 3 items.
	if len(res.LootPool) != 3 {
		t.Fatalf("loot pool=%d", len(res.LootPool))
	}
	seen := map[string]bool{}
	for _, it := range res.LootPool {
		if seen[it.ID] {
			t.Fatalf("duplicate loot %s", it.ID)
		}
		seen[it.ID] = true
	}
	r := e.RaidState(id)
	total := 0
	for _, items := range r.Distribution {
		total += len(items)
	}
	if total != len(r.LootPool) {
		t.Fatalf("distributed %d of %d items", total, len(r.LootPool))
	}
	if len(r.Distribution["alice"]) != 2 || len(r.Distribution["bob"]) != 1 {
		t.Fatalf("round robin split: %v", r.Distribution)
	}
	if r.Distribution["alice"][0] != res.LootPool[0].ID || r.Distribution["bob"][0] != res.LootPool[1].ID {
		t.Fatalf("round robin order: %v vs %v", r.Distribution, res.LootPool)
	}
	if r.Status != StatusCompleted || r.BossHealth != 0 || r.EndTick != 600 {
		t.Fatalf("raid after completion: status=%s health=%d end=%d", r.Status, r.BossHealth, r.EndTick)
	}
	_, err = e.CompleteBoss(id, CompleteRequest{EndTick: 700})
	wantKind(t, err, ErrInvalidState)

	if len(rec.completions) != 1 || rec.completions[0].DurationTicks != 500 {
		t.Fatalf("completion records: %+v", rec.completions)
	}
}

func TestCompleteBoss_RollModeAssignsEveryItem(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob", "carol")
	toBoss(t, e, id, 0, 4)
	res, err := e.CompleteBoss(id, CompleteRequest{EndTick: 10, Loot: LootRoll})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	// floor(3 * 1.5) = 4 items.
	if len(res.LootPool) != 4 || len(res.Rolls) != 4 {
		t.Fatalf("pool=%d rolls=%d", len(res.LootPool), len(res.Rolls))
	}
	got := 0
	for _, items := range res.Loot {
		got += len(items)
	}
	if got != 4 {
		t.Fatalf("assigned %d items", got)
	}
}

func TestDistributeItem(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	toBoss(t, e, id, 0, 4)
	res, err := e.CompleteBoss(id, CompleteRequest{EndTick: 10, Loot: LootManual})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	for p, items := range res.Loot {
		if len(items) != 0 {
			t.Fatalf("manual mode pre-assigned %v to %s", items, p)
		}
	}
	item := res.LootPool[0].ID

	_, err = e.DistributeItem(id, "not_an_item", "alice")
	wantKind(t, err, ErrNotFound)
	_, err = e.DistributeItem(id, item, "mallory")
	wantKind(t, err, ErrMembership)

	out, err := e.DistributeItem(id, item, "bob")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0] != item {
		t.Fatalf("unexpected distribute result: %+v", out)
	}
	_, err = e.DistributeItem(id, item, "alice")
	wantKind(t, err, ErrAlreadyDone)

	stats, ok := e.PartyStats(id)
	if !ok || stats.ItemsDistributed != 1 || stats.Members[1].ItemsReceived != 1 {
		t.Fatalf("party stats: %+v", stats)
	}
}

func TestCooldownAfterCompletion(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	toBoss(t, e, id, 100, 1)
	if _, err := e.CompleteBoss(id, CompleteRequest{EndTick: 600}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cd := e.PlayerCooldown("alice", "crystal_caverns", 700)
	if !cd.OnCooldown || cd.RemainingTicks != 3600-100 || cd.ExpiresAt != 4200 {
		t.Fatalf("cooldown right after completion: %+v", cd)
	}
	if cd := e.PlayerCooldown("alice", "shadow_warren", 700); cd.OnCooldown {
		t.Fatalf("cooldown leaked to another dungeon")
	}
	_, err := e.Create("alice", "crystal_caverns", 700)
	wantKind(t, err, ErrValidation)

	other := formRaid(t, e, "crystal_caverns", 800, "carol")
	_, err = e.Join(other, "bob", 800)
	wantKind(t, err, ErrValidation)

	if cd := e.PlayerCooldown("alice", "crystal_caverns", 4200); cd.OnCooldown || cd.RemainingTicks != 0 {
		t.Fatalf("cooldown after expiry: %+v", cd)
	}
	if _, err := e.Join(other, "bob", 4200); err != nil {
		t.Fatalf("join after cooldown: %v", err)
	}
	if h := e.RaidHistory("bob"); len(h) != 1 || h[0].RaidID != id || h[0].DurationTicks != 500 {
		t.Fatalf("history: %+v", h)
	}
}

func TestLeaderboardSortedByDuration(t *testing.T) {
	e := newTestEngine(t)
	durations := []uint64{900, 300, 600, 300, 1200}
	for i, d := range durations {
		a := string(rune('a'+i)) + "1"
		b := string(rune('a'+i)) + "2"
		id := formRaid(t, e, "shadow_warren", 0, a, b)
		toBoss(t, e, id, 100, uint32(i))
		if _, err := e.CompleteBoss(id, CompleteRequest{EndTick: 100 + d}); err != nil {
			t.Fatalf("complete: %v", err)
		}
		board := e.Leaderboard("shadow_warren", 0)
		if len(board) != i+1 {
			t.Fatalf("board size %d after %d completions", len(board), i+1)
		}
		for j := 1; j < len(board); j++ {
			if board[j-1].DurationTicks > board[j].DurationTicks {
				t.Fatalf("board unsorted after insert %d: %+v", i, board)
			}
		}
	}
	top := e.Leaderboard("shadow_warren", 2)
	if len(top) != 2 || top[0].RaidID != "raid_2" || top[1].RaidID != "raid_4" {
		t.Fatalf("top 2: %+v", top)
	}
	if len(e.Leaderboard("sunken_temple", 5)) != 0 {
		t.Fatalf("expected empty board")
	}
}
