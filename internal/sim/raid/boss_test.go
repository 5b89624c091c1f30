package raid

import (
	"math"
	"sync"
	"testing"

	"raidforge.ai/internal/sim/rng"
)

func expectedDamage(seed uint32, mult float64, defense int) int {
	base := rng.New(seed).IntRange(15, 40)
	d := int(math.Floor(float64(base)*mult)) - int(math.Floor(float64(defense)*0.3))
	if d < 1 {
		return 1
	}
	return d
}

func TestAttackBoss_WeaknessIsDeterministic(t *testing.T) {
	var hits [2]AttackResult
	for i := range hits {
		e := newTestEngine(t)
		id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
		toBoss(t, e, id, 100, 42)
		res, err := e.AttackBoss(id, "alice", "Fire", 0, rng.WithSeed(7))
		if err != nil {
			t.Fatalf("attack: %v", err)
		}
		hits[i] = res
	}
	if (hits[0].Mechanic == nil) != (hits[1].Mechanic == nil) ||
		(hits[0].Mechanic != nil && hits[0].Mechanic.ID != hits[1].Mechanic.ID) {
		t.Fatalf("same inputs triggered different mechanics")
	}
	hits[0].Mechanic, hits[1].Mechanic = nil, nil
	if hits[0] != hits[1] {
		t.Fatalf("same inputs produced different attacks:\n%+v\n%+v", hits[0], hits[1])
	}
	h := hits[0]
	if h.Multiplier != 1.5 {
		t.Fatalf("multiplier=%v, want 1.5", h.Multiplier)
	}
	if want := expectedDamage(7, 1.5, 20); h.Damage != want {
		t.Fatalf("damage=%d, want %d", h.Damage, want)
	}
	if h.BossHealth != 1600-h.Damage {
		t.Fatalf("health=%d after %d damage", h.BossHealth, h.Damage)
	}
}

func TestAttackBoss_ElementOrdering(t *testing.T) {
	for seed := uint32(0); seed < 30; seed++ {
		dmg := map[string]int{}
		for _, el := range []string{"fire", "", "ice"} {
			e := newTestEngine(t)
			id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
			toBoss(t, e, id, 0, 1)
			res, err := e.AttackBoss(id, "bob", el, 0, rng.WithSeed(seed))
			if err != nil {
				t.Fatalf("attack: %v", err)
			}
			if res.Damage < 1 {
				t.Fatalf("damage below 1: %+v", res)
			}
			dmg[el] = res.Damage
		}
		if !(dmg["fire"] >= dmg[""] && dmg[""] >= dmg["ice"]) {
			t.Fatalf("seed %d: weakness/neutral/resistance ordering broken: %v", seed, dmg)
		}
	}
}

func TestAttackBoss_Rejections(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	_, err := e.AttackBoss(id, "alice", "fire", 0, rng.Seed{})
	wantKind(t, err, ErrInvalidState)

	toBoss(t, e, id, 0, 1)
	_, err = e.AttackBoss(id, "mallory", "fire", 0, rng.Seed{})
	wantKind(t, err, ErrMembership)
	_, err = e.AttackBoss("raid_404", "alice", "fire", 0, rng.Seed{})
	wantKind(t, err, ErrNotFound)
}

func TestAttackBoss_PhaseChangedIsAdvisory(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "shadow_warren", 0, "alice", "bob")
	toBoss(t, e, id, 0, 1)

	var last AttackResult
	for i := 0; i < 200; i++ {
		res, err := e.AttackBoss(id, "alice", "light", 0, rng.Seed{})
		if err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
		last = res
		if res.PhaseChanged || res.Defeated {
			break
		}
	}
	if !last.PhaseChanged {
		t.Fatalf("never crossed a phase threshold: %+v", last)
	}
	if r := e.RaidState(id); r.BossPhase != 1 {
		t.Fatalf("attack mutated phase to %d", r.BossPhase)
	}
}

func TestAttackBoss_DefeatedBossRejectsAttacks(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "shadow_warren", 0, "alice", "bob")
	toBoss(t, e, id, 0, 1)
	for i := 0; i < 1000; i++ {
		res, err := e.AttackBoss(id, "bob", "light", 0, rng.Seed{})
		if err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
		if res.Defeated {
			if res.BossHealth != 0 || res.Mechanic != nil {
				t.Fatalf("unexpected defeat result: %+v", res)
			}
			_, err = e.AttackBoss(id, "bob", "light", 0, rng.Seed{})
			wantKind(t, err, ErrInvalidState)
			return
		}
	}
	t.Fatalf("boss never defeated")
}

func TestAttackBoss_ParallelAttacksSerialize(t *testing.T) {
	e := newTestEngine(t)
	party := []string{"alice", "bob", "carol", "dave"}
	id := formRaid(t, e, "crystal_caverns", 0, party...)
	b := toBoss(t, e, id, 0, 9)

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	for _, p := range party {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				res, err := e.AttackBoss(id, p, "", 0, rng.Seed{})
				if err != nil {
					t.Errorf("attack by %s: %v", p, err)
					return
				}
				mu.Lock()
				total += res.Damage
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	if r := e.RaidState(id); r.BossHealth != b.MaxHealth-total {
		t.Fatalf("lost updates: health=%d max=%d dealt=%d", r.BossHealth, b.MaxHealth, total)
	}
}

func TestProcessBossMechanic(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob", "carol")
	toBoss(t, e, id, 0, 1)

	_, err := e.ProcessBossMechanic(id, "nope", nil, 0)
	wantKind(t, err, ErrNotFound)

	out, err := e.ProcessBossMechanic(id, "prism_beam", []MechanicResponse{
		{PlayerID: "alice", Response: "dodge"},
		{PlayerID: "bob", Response: "fail"},
		{PlayerID: "alice", Response: "fail"},
	}, 0)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	want := []MechanicOutcome{
		{PlayerID: "alice", Success: true, Health: 100},
		{PlayerID: "bob", Damage: 20, Health: 80},
		{PlayerID: "carol", Damage: 20, Health: 80},
	}
	if len(out) != len(want) {
		t.Fatalf("outcomes=%d", len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("outcome %d: got %+v want %+v", i, out[i], want[i])
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := e.ProcessBossMechanic(id, "prism_beam", nil, 0); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if h := e.RaidState(id).Health["carol"]; h != 0 {
		t.Fatalf("health not floored at 0: %d", h)
	}
}

func TestAdvanceBossPhase(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	toBoss(t, e, id, 0, 1)

	res, err := e.AdvanceBossPhase(id, 0)
	if err != nil {
		t.Fatalf("advance phase: %v", err)
	}
	if res.Phase != 2 || res.Healed != 0 || res.BossHealth != 1600 || len(res.Mechanics) != 2 {
		t.Fatalf("unexpected phase result at full health: %+v", res)
	}

	hit, err := e.AttackBoss(id, "alice", "", 0, rng.WithSeed(3))
	if err != nil {
		t.Fatalf("attack: %v", err)
	}
	res, err = e.AdvanceBossPhase(id, 0)
	if err != nil {
		t.Fatalf("advance phase: %v", err)
	}
	wantHeal := min(hit.Damage, 80)
	if res.Phase != 3 || res.Healed != wantHeal || res.BossHealth != hit.BossHealth+wantHeal {
		t.Fatalf("unexpected heal: %+v after %+v", res, hit)
	}
	_, err = e.AdvanceBossPhase(id, 0)
	wantKind(t, err, ErrInvalidState)
}

func TestAttackBoss_UsesCallerTick(t *testing.T) {
	e := newTestEngine(t)
	id := formRaid(t, e, "crystal_caverns", 0, "alice", "bob")
	toBoss(t, e, id, 100, 42)
	if _, err := e.AttackBoss(id, " bob ", "", 300, rng.WithSeed(1)); err != nil {
		t.Fatalf("attack: %v", err)
	}
	r := e.RaidState(id)
	if r.LastTick != 300 {
		t.Fatalf("last tick=%d want 300", r.LastTick)
	}
	found := false
	for _, ev := range r.Events {
		if ev.Kind == EventBossAttacked {
			found = true
			if ev.Tick != 300 || ev.Player != "bob" {
				t.Fatalf("unexpected attack event: %+v", ev)
			}
		}
	}
	if !found {
		t.Fatalf("no attack event logged")
	}
}
