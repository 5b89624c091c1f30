package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const contentDir = "../../../configs/content"

func loadTestCatalogs(t *testing.T) *Catalogs {
	t.Helper()
	c, err := Load(contentDir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return c
}

func TestLoad_ContentInvariants(t *testing.T) {
	c := loadTestCatalogs(t)
	if len(c.Dungeons.Order) == 0 {
		t.Fatalf("expected dungeons")
	}
	for _, d := range c.DungeonList() {
		if d.MinPlayers > d.MaxPlayers || d.MaxPlayers > 4 {
			t.Fatalf("dungeon %s: bad party bounds %d..%d", d.ID, d.MinPlayers, d.MaxPlayers)
		}
		if d.Floors < 3 {
			t.Fatalf("dungeon %s: floors=%d", d.ID, d.Floors)
		}
		b, ok := c.Boss(d.BossID)
		if !ok || b.DungeonID != d.ID {
			t.Fatalf("dungeon %s: boss back-reference broken", d.ID)
		}
	}
	for _, name := range []string{"dungeons", "bosses", "puzzles", "loot_tables", "encounters"} {
		if _, err := os.Stat(filepath.Join(contentDir, name+".json")); err != nil {
			t.Fatalf("content file %s: %v", name, err)
		}
	}
	if c.Dungeons.Digest == "" || c.Bosses.Digest == "" {
		t.Fatalf("expected digests to be populated")
	}
}

func TestLoad_CrystalCaverns(t *testing.T) {
	c := loadTestCatalogs(t)
	d, ok := c.Dungeon("crystal_caverns")
	if !ok {
		t.Fatalf("crystal_caverns missing")
	}
	if d.MinPlayers != 2 || d.MaxPlayers != 4 || d.Floors != 5 {
		t.Fatalf("unexpected crystal_caverns def: %+v", d)
	}
	b, _ := c.Boss(d.BossID)
	if b.Name != "The Crystal King" {
		t.Fatalf("boss name: %q", b.Name)
	}
	if got := b.MaxHealthFor(2); got != 1600 {
		t.Fatalf("max health for 2: got %d want 1600", got)
	}
}

func TestBossHealthScalesWithParty(t *testing.T) {
	c := loadTestCatalogs(t)
	for _, b := range c.BossList() {
		for n := 1; n < 4; n++ {
			if b.MaxHealthFor(n+1) <= b.MaxHealthFor(n) {
				t.Fatalf("boss %s: health(%d) not above health(%d)", b.ID, n+1, n)
			}
		}
	}
}

func TestMechanicsThrough(t *testing.T) {
	b := BossDef{Mechanics: []MechanicDef{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	if got := b.MechanicsThrough(0); len(got) != 0 {
		t.Fatalf("phase 0: %v", got)
	}
	if got := b.MechanicsThrough(2); len(got) != 2 || got[1].ID != "b" {
		t.Fatalf("phase 2: %v", got)
	}
	if got := b.MechanicsThrough(9); len(got) != 3 {
		t.Fatalf("phase 9: %v", got)
	}
	got := b.MechanicsThrough(1)
	got[0].ID = "mutated"
	if b.Mechanics[0].ID != "a" {
		t.Fatalf("MechanicsThrough must return a copy")
	}
}

func TestLoad_RejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bosses", "puzzles", "loot_tables", "encounters"} {
		b, err := os.ReadFile(filepath.Join(contentDir, name+".json"))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name+".json"), b, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	bad := `[{"id":"x","name":"X","min_players":1,"max_players":4,"base_difficulty":1,"floors":3,"boss_id":"b","cooldown_ticks":0,"loot_table_id":"l","puzzle_count":0}]`
	if err := os.WriteFile(filepath.Join(dir, "dungeons.json"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write dungeons: %v", err)
	}
	_, err := Load(dir)
	if err == nil {
		t.Fatalf("expected schema error")
	}
	if !strings.Contains(err.Error(), "dungeons.json") {
		t.Fatalf("expected dungeons.json in error, got %v", err)
	}
}

func TestNew_RejectsBrokenInvariants(t *testing.T) {
	base := func() Defs {
		return Defs{
			Dungeons: []DungeonDef{{ID: "d", Name: "D", MinPlayers: 2, MaxPlayers: 3, BaseDifficulty: 1, Floors: 4, BossID: "b", LootTableID: "l", PuzzleCount: 1}},
			Bosses: []BossDef{{ID: "b", Name: "B", DungeonID: "d", BaseHealth: 100, HealthPerPlayer: 10, Phases: 2,
				Mechanics: []MechanicDef{{ID: "m1", Name: "M1"}, {ID: "m2", Name: "M2"}}, LootBonus: 1.5}},
			Puzzles:    []PuzzleTypeDef{{ID: "p", Name: "P", MinPlayers: 2}},
			LootTables: []LootTableDef{{ID: "l", Items: []LootItem{{ID: "i", Name: "I", Category: "c", Rarity: "common"}}}},
			Encounters: []EncounterDef{{ID: "e", Name: "E", Enemies: 1}},
		}
	}
	if _, err := New(base()); err != nil {
		t.Fatalf("base defs should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Defs)
	}{
		{"too many puzzles", func(d *Defs) { d.Dungeons[0].PuzzleCount = 3 }},
		{"max below min", func(d *Defs) { d.Dungeons[0].MaxPlayers = 1 }},
		{"boss back reference", func(d *Defs) { d.Bosses[0].DungeonID = "other" }},
		{"too few mechanics", func(d *Defs) { d.Bosses[0].Phases = 3 }},
		{"loot bonus", func(d *Defs) { d.Bosses[0].LootBonus = 1.0 }},
		{"missing loot table", func(d *Defs) { d.Dungeons[0].LootTableID = "none" }},
		{"no encounters", func(d *Defs) { d.Encounters = nil }},
	}
	for _, tc := range tests {
		defs := base()
		tc.mutate(&defs)
		if _, err := New(defs); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestPuzzleTypesFor(t *testing.T) {
	c := loadTestCatalogs(t)
	for _, p := range c.PuzzleTypesFor(2) {
		if p.MinPlayers > 2 {
			t.Fatalf("puzzle %s needs %d players", p.ID, p.MinPlayers)
		}
	}
	if len(c.PuzzleTypesFor(4)) != len(c.Puzzles.Order) {
		t.Fatalf("party of 4 should fit every puzzle type")
	}
}
