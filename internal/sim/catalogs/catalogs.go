package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Catalogs is the immutable content table set. It is loaded once and shared
// by pointer; nothing mutates it after New returns.
type Catalogs struct {
	Dungeons   DungeonCatalog
	Bosses     BossCatalog
	Puzzles    PuzzleCatalog
	LootTables LootCatalog
	Encounters EncounterCatalog
}

type DungeonCatalog struct {
	ByID   map[string]DungeonDef
	Order  []string
	Digest string
}

type DungeonDef struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MinPlayers     int    `json:"min_players"`
	MaxPlayers     int    `json:"max_players"`
	BaseDifficulty int    `json:"base_difficulty"`
	Floors         int    `json:"floors"`
	BossID         string `json:"boss_id"`
	CooldownTicks  uint64 `json:"cooldown_ticks"`
	EntryZone      string `json:"entry_zone,omitempty"`
	RequiredLevel  int    `json:"required_level,omitempty"`
	LootTableID    string `json:"loot_table_id"`
	PuzzleCount    int    `json:"puzzle_count"`
}

type BossCatalog struct {
	ByID   map[string]BossDef
	Order  []string
	Digest string
}

type BossDef struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	DungeonID       string        `json:"dungeon_id"`
	BaseHealth      int           `json:"base_health"`
	HealthPerPlayer int           `json:"health_per_player"`
	Attack          int           `json:"attack"`
	Defense         int           `json:"defense"`
	Phases          int           `json:"phases"`
	Mechanics       []MechanicDef `json:"mechanics"`
	Weaknesses      []string      `json:"weaknesses,omitempty"`
	Resistances     []string      `json:"resistances,omitempty"`
	LootBonus       float64       `json:"loot_bonus"`
}

type MechanicDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// MechanicsThrough returns the mechanics unlocked by the given phase: the
// first phase entries of the ordered list.
func (b BossDef) MechanicsThrough(phase int) []MechanicDef {
	if phase < 1 {
		return nil
	}
	if phase > len(b.Mechanics) {
		phase = len(b.Mechanics)
	}
	out := make([]MechanicDef, phase)
	copy(out, b.Mechanics[:phase])
	return out
}

func (b BossDef) Mechanic(id string) (MechanicDef, bool) {
	for _, m := range b.Mechanics {
		if m.ID == id {
			return m, true
		}
	}
	return MechanicDef{}, false
}

// MaxHealthFor scales boss health with party size.
func (b BossDef) MaxHealthFor(partySize int) int {
	return b.BaseHealth + b.HealthPerPlayer*partySize
}

type PuzzleCatalog struct {
	ByID   map[string]PuzzleTypeDef
	Order  []string
	Digest string
}

type PuzzleTypeDef struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	MinPlayers     int    `json:"min_players"`
	Reward         Reward `json:"reward"`
	TimeLimitTicks int    `json:"time_limit_ticks,omitempty"`
}

// Reward is an XP + Spark (currency) pair.
type Reward struct {
	XP    int `json:"xp"`
	Spark int `json:"spark"`
}

type LootCatalog struct {
	ByID   map[string]LootTableDef
	Digest string
}

type LootTableDef struct {
	ID    string     `json:"id"`
	Items []LootItem `json:"items"`
}

type LootItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Value    int    `json:"value"`
	Rarity   string `json:"rarity"`
}

type EncounterCatalog struct {
	ByID   map[string]EncounterDef
	Order  []string
	Digest string
}

type EncounterDef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enemies int    `json:"enemies"`
	Threat  int    `json:"threat,omitempty"`
}

// Defs is the raw content handed to New.
type Defs struct {
	Dungeons   []DungeonDef
	Bosses     []BossDef
	Puzzles    []PuzzleTypeDef
	LootTables []LootTableDef
	Encounters []EncounterDef
}

var contentFiles = []string{"dungeons", "bosses", "puzzles", "loot_tables", "encounters"}

// Load reads <dir>/{dungeons,bosses,puzzles,loot_tables,encounters}.json,
// validates each against its embedded schema and builds the catalogs.
func Load(dir string) (*Catalogs, error) {
	var defs Defs
	digests := map[string]string{}

	targets := map[string]any{
		"dungeons":    &defs.Dungeons,
		"bosses":      &defs.Bosses,
		"puzzles":     &defs.Puzzles,
		"loot_tables": &defs.LootTables,
		"encounters":  &defs.Encounters,
	}
	for _, name := range contentFiles {
		raw, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if err != nil {
			return nil, err
		}
		if err := validateContent(name, raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, targets[name]); err != nil {
			return nil, fmt.Errorf("%s.json: %w", name, err)
		}
		digests[name] = sha256Hex(raw)
	}

	c, err := New(defs)
	if err != nil {
		return nil, err
	}
	c.Dungeons.Digest = digests["dungeons"]
	c.Bosses.Digest = digests["bosses"]
	c.Puzzles.Digest = digests["puzzles"]
	c.LootTables.Digest = digests["loot_tables"]
	c.Encounters.Digest = digests["encounters"]
	return c, nil
}

// New indexes defs and checks cross-table invariants. Digests are computed
// from canonical JSON of the defs.
func New(defs Defs) (*Catalogs, error) {
	var c Catalogs

	c.Dungeons.ByID = map[string]DungeonDef{}
	for _, d := range defs.Dungeons {
		if d.ID == "" {
			return nil, fmt.Errorf("dungeons: empty id")
		}
		if _, dup := c.Dungeons.ByID[d.ID]; dup {
			return nil, fmt.Errorf("dungeons: duplicate id %s", d.ID)
		}
		c.Dungeons.ByID[d.ID] = d
	}
	c.Dungeons.Order = sortedKeys(c.Dungeons.ByID)

	c.Bosses.ByID = map[string]BossDef{}
	for _, b := range defs.Bosses {
		if b.ID == "" {
			return nil, fmt.Errorf("bosses: empty id")
		}
		if _, dup := c.Bosses.ByID[b.ID]; dup {
			return nil, fmt.Errorf("bosses: duplicate id %s", b.ID)
		}
		c.Bosses.ByID[b.ID] = b
	}
	c.Bosses.Order = sortedKeys(c.Bosses.ByID)

	c.Puzzles.ByID = map[string]PuzzleTypeDef{}
	for _, p := range defs.Puzzles {
		if p.ID == "" {
			return nil, fmt.Errorf("puzzles: empty id")
		}
		c.Puzzles.ByID[p.ID] = p
	}
	c.Puzzles.Order = sortedKeys(c.Puzzles.ByID)

	c.LootTables.ByID = map[string]LootTableDef{}
	for _, lt := range defs.LootTables {
		if lt.ID == "" {
			return nil, fmt.Errorf("loot_tables: empty id")
		}
		c.LootTables.ByID[lt.ID] = lt
	}

	c.Encounters.ByID = map[string]EncounterDef{}
	for _, e := range defs.Encounters {
		if e.ID == "" {
			return nil, fmt.Errorf("encounters: empty id")
		}
		c.Encounters.ByID[e.ID] = e
	}
	c.Encounters.Order = sortedKeys(c.Encounters.ByID)

	if err := c.validate(); err != nil {
		return nil, err
	}

	c.Dungeons.Digest = canonicalDigest(defs.Dungeons)
	c.Bosses.Digest = canonicalDigest(defs.Bosses)
	c.Puzzles.Digest = canonicalDigest(defs.Puzzles)
	c.LootTables.Digest = canonicalDigest(defs.LootTables)
	c.Encounters.Digest = canonicalDigest(defs.Encounters)
	return &c, nil
}

func (c *Catalogs) validate() error {
	for _, id := range c.Dungeons.Order {
		d := c.Dungeons.ByID[id]
		if d.MinPlayers < 2 {
			return fmt.Errorf("dungeon %s: min_players must be >= 2", id)
		}
		if d.MaxPlayers < d.MinPlayers {
			return fmt.Errorf("dungeon %s: max_players < min_players", id)
		}
		if d.Floors < 3 {
			return fmt.Errorf("dungeon %s: floors must be >= 3", id)
		}
		if d.PuzzleCount < 0 || d.PuzzleCount > d.Floors-2 {
			return fmt.Errorf("dungeon %s: puzzle_count %d exceeds floors-2", id, d.PuzzleCount)
		}
		if d.PuzzleCount > 0 && len(c.Puzzles.Order) == 0 {
			return fmt.Errorf("dungeon %s: needs puzzles but no puzzle types are defined", id)
		}
		b, ok := c.Bosses.ByID[d.BossID]
		if !ok {
			return fmt.Errorf("dungeon %s: unknown boss %s", id, d.BossID)
		}
		if b.DungeonID != d.ID {
			return fmt.Errorf("dungeon %s: boss %s belongs to %s", id, b.ID, b.DungeonID)
		}
		lt, ok := c.LootTables.ByID[d.LootTableID]
		if !ok || len(lt.Items) == 0 {
			return fmt.Errorf("dungeon %s: loot table %s missing or empty", id, d.LootTableID)
		}
	}
	for _, id := range c.Bosses.Order {
		b := c.Bosses.ByID[id]
		d, ok := c.Dungeons.ByID[b.DungeonID]
		if !ok || d.BossID != b.ID {
			return fmt.Errorf("boss %s: dungeon %s does not reference it back", id, b.DungeonID)
		}
		if b.Phases < 1 || len(b.Mechanics) < b.Phases {
			return fmt.Errorf("boss %s: needs at least one mechanic per phase", id)
		}
		if b.LootBonus <= 1.0 {
			return fmt.Errorf("boss %s: loot_bonus must be > 1.0", id)
		}
	}
	if len(c.Encounters.Order) == 0 {
		return fmt.Errorf("encounters: at least one template is required")
	}
	return nil
}

func (c *Catalogs) Dungeon(id string) (DungeonDef, bool) {
	d, ok := c.Dungeons.ByID[id]
	return d, ok
}

func (c *Catalogs) Boss(id string) (BossDef, bool) {
	b, ok := c.Bosses.ByID[id]
	return b, ok
}

func (c *Catalogs) PuzzleType(id string) (PuzzleTypeDef, bool) {
	p, ok := c.Puzzles.ByID[id]
	return p, ok
}

func (c *Catalogs) LootTable(id string) (LootTableDef, bool) {
	lt, ok := c.LootTables.ByID[id]
	return lt, ok
}

// DungeonList returns every dungeon in id order.
func (c *Catalogs) DungeonList() []DungeonDef {
	out := make([]DungeonDef, 0, len(c.Dungeons.Order))
	for _, id := range c.Dungeons.Order {
		out = append(out, c.Dungeons.ByID[id])
	}
	return out
}

// BossList returns every boss in id order.
func (c *Catalogs) BossList() []BossDef {
	out := make([]BossDef, 0, len(c.Bosses.Order))
	for _, id := range c.Bosses.Order {
		out = append(out, c.Bosses.ByID[id])
	}
	return out
}

// EncounterList returns every encounter template in id order.
func (c *Catalogs) EncounterList() []EncounterDef {
	out := make([]EncounterDef, 0, len(c.Encounters.Order))
	for _, id := range c.Encounters.Order {
		out = append(out, c.Encounters.ByID[id])
	}
	return out
}

// PuzzleTypesFor returns the puzzle types a party of the given size can
// attempt, in id order. It falls back to every type when none fit.
func (c *Catalogs) PuzzleTypesFor(partySize int) []PuzzleTypeDef {
	var fit, all []PuzzleTypeDef
	for _, id := range c.Puzzles.Order {
		p := c.Puzzles.ByID[id]
		all = append(all, p)
		if p.MinPlayers <= partySize {
			fit = append(fit, p)
		}
	}
	if len(fit) == 0 {
		return all
	}
	return fit
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalDigest(v any) string {
	b, _ := json.Marshal(v)
	return sha256Hex(b)
}

// Digest combines the per-table digests into one content fingerprint.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.Dungeons.Digest + c.Bosses.Digest + c.Puzzles.Digest + c.LootTables.Digest + c.Encounters.Digest))
}
