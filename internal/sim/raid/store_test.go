package raid

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"raidforge.ai/internal/sim/rng"
	"raidforge.ai/internal/sim/tuning"
)

func TestStore_ParallelCreateAllocatesUniqueIDs(t *testing.T) {
	e := newTestEngine(t)
	const n = 64
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.Create(fmt.Sprintf("p%02d", i), "crystal_caverns", 0)
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			ids[i] = r.ID
		}(i)
	}
	wg.Wait()
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			t.Fatalf("duplicate or missing id %q", id)
		}
		seen[id] = true
	}
	if got := len(e.AvailableRaids("")); got != n {
		t.Fatalf("available raids=%d, want %d", got, n)
	}
}

func TestStore_ParallelCreateSameLeader(t *testing.T) {
	e := newTestEngine(t)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Create("alice", "crystal_caverns", 0); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("alice led %d raids at once", ok)
	}
}

func TestAvailableRaids_FiltersAndOrders(t *testing.T) {
	e := newTestEngine(t)
	formRaid(t, e, "crystal_caverns", 0, "a")
	full := formRaid(t, e, "sunken_temple", 0, "b", "c", "d")
	formRaid(t, e, "sunken_temple", 0, "e")
	started := formRaid(t, e, "crystal_caverns", 0, "f", "g")
	if _, err := e.Start(started, 1, rng.WithSeed(1)); err != nil {
		t.Fatalf("start: %v", err)
	}

	all := e.AvailableRaids("")
	if len(all) != 2 || all[0].RaidID != "raid_1" || all[1].RaidID != "raid_3" {
		t.Fatalf("available: %+v", all)
	}
	st := e.AvailableRaids("sunken_temple")
	if len(st) != 1 || st[0].RaidID == full || st[0].OpenSlots != 2 {
		t.Fatalf("filtered: %+v", st)
	}
	if e.RaidState("raid_404") != nil {
		t.Fatalf("unknown raid should be nil")
	}
	if _, ok := e.PartyStats("raid_404"); ok {
		t.Fatalf("unknown raid should have no stats")
	}
	counts := e.Store().StatusCounts()
	if counts[StatusForming] != 3 || counts[StatusInProgress] != 1 {
		t.Fatalf("status counts: %+v", counts)
	}
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	done := formRaid(t, e, "shadow_warren", 0, "alice", "bob")
	toBoss(t, e, done, 10, 2)
	if _, err := e.CompleteBoss(done, CompleteRequest{EndTick: 400}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	live := formRaid(t, e, "crystal_caverns", 500, "carol", "dave")
	toBoss(t, e, live, 510, 3)

	st := e.Store().Export()
	restored := NewStore()
	if err := restored.Import(st); err != nil {
		t.Fatalf("import: %v", err)
	}
	e2 := NewEngine(loadCats(t), tuning.Defaults(), restored)

	for _, id := range []string{done, live} {
		if !reflect.DeepEqual(e.RaidState(id), e2.RaidState(id)) {
			t.Fatalf("raid %s differs after import", id)
		}
	}
	if got, ok := restored.ActiveRaid("carol"); !ok || got != live {
		t.Fatalf("active index not rebuilt: %q %v", got, ok)
	}
	if _, ok := restored.ActiveRaid("alice"); ok {
		t.Fatalf("completed raid members must not be active")
	}
	if cd := e2.PlayerCooldown("alice", "shadow_warren", 400); !cd.OnCooldown || cd.ExpiresAt != 400+1800 {
		t.Fatalf("cooldown lost: %+v", cd)
	}
	if !reflect.DeepEqual(e.Leaderboard("shadow_warren", 0), e2.Leaderboard("shadow_warren", 0)) {
		t.Fatalf("leaderboard differs")
	}
	r, err := e2.Create("erin", "crystal_caverns", 600)
	if err != nil {
		t.Fatalf("create after import: %v", err)
	}
	if r.ID != "raid_3" {
		t.Fatalf("id counter not restored: %s", r.ID)
	}
}

func TestStore_ImportRejectsDoubleMembership(t *testing.T) {
	st := StoreState{Raids: []Raid{
		{ID: "raid_1", Status: StatusForming, Party: []string{"alice"}},
		{ID: "raid_2", Status: StatusInProgress, Party: []string{"alice"}},
	}}
	if err := NewStore().Import(st); err == nil {
		t.Fatalf("expected import error")
	}
}
