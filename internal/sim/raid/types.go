package raid

import (
	"raidforge.ai/internal/sim/catalogs"
)

type Status string

const (
	StatusForming    Status = "forming"
	StatusInProgress Status = "in_progress"
	StatusBossFight  Status = "boss_fight"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// Active reports whether the status still holds its party members.
func (s Status) Active() bool {
	switch s {
	case StatusForming, StatusInProgress, StatusBossFight:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return !s.Active() }

// LootMode selects how CompleteBoss allocates the loot pool.
type LootMode string

const (
	LootRoundRobin LootMode = "round_robin"
	LootManual     LootMode = "manual"
	LootRoll       LootMode = "roll"
)

func (m LootMode) Valid() bool {
	switch m {
	case "", LootRoundRobin, LootManual, LootRoll:
		return true
	}
	return false
}

type Reward = catalogs.Reward

// Raid is one party's attempt at a dungeon. Instances are owned by the Store
// and only mutated under their slot lock.
type Raid struct {
	ID        string   `json:"id"`
	DungeonID string   `json:"dungeon_id"`
	Party     []string `json:"party"`
	Leader    string   `json:"leader"`
	Status    Status   `json:"status"`

	CurrentFloor  int `json:"current_floor"`
	BossPhase     int `json:"boss_phase"`
	BossHealth    int `json:"boss_health"`
	BossMaxHealth int `json:"boss_max_health"`

	CreatedTick uint64 `json:"created_tick"`
	StartTick   uint64 `json:"start_tick"`
	EndTick     uint64 `json:"end_tick"`
	LastTick    uint64 `json:"last_tick"`

	PuzzlesSolved int     `json:"puzzles_solved"`
	Seed          uint32  `json:"seed"`
	Floors        []Floor `json:"floors"`

	LootMode     LootMode            `json:"loot_mode,omitempty"`
	LootPool     []catalogs.LootItem `json:"loot_pool"`
	Distribution map[string][]string `json:"distribution"`
	Health       map[string]int      `json:"health"`

	Events  []Event `json:"events"`
	NextSeq uint64  `json:"next_seq"`
}

type Floor struct {
	Number      int                     `json:"number"`
	Encounters  []catalogs.EncounterDef `json:"encounters"`
	Puzzle      *Puzzle                 `json:"puzzle,omitempty"`
	Cleared     bool                    `json:"cleared"`
	IsBossFloor bool                    `json:"is_boss_floor"`
}

type Puzzle struct {
	ID      string       `json:"id"`
	TypeID  string       `json:"type_id"`
	Solved  bool         `json:"solved"`
	Actions []Submission `json:"actions,omitempty"`
}

// Submission is one player's input toward a puzzle.
type Submission struct {
	PlayerID string `json:"player_id"`
	Action   string `json:"action"`
}

// MechanicResponse is one player's answer to a boss mechanic.
type MechanicResponse struct {
	PlayerID string `json:"player_id"`
	Response string `json:"response"`
}

type HistoryEntry struct {
	RaidID        string `json:"raid_id"`
	DungeonID     string `json:"dungeon_id"`
	CompletedTick uint64 `json:"completed_tick"`
	DurationTicks uint64 `json:"duration_ticks"`
}

type LeaderboardEntry struct {
	RaidID        string   `json:"raid_id"`
	Party         []string `json:"party"`
	DurationTicks uint64   `json:"duration_ticks"`
	CompletedTick uint64   `json:"completed_tick"`
}

type CooldownKey struct {
	PlayerID  string
	DungeonID string
}

func (r *Raid) isMember(player string) bool {
	return indexOf(r.Party, player) >= 0
}

func (r *Raid) floor(n int) *Floor {
	if n < 1 || n > len(r.Floors) {
		return nil
	}
	return &r.Floors[n-1]
}

func (r *Raid) floorsCleared() int {
	n := 0
	for _, f := range r.Floors {
		if f.Cleared {
			n++
		}
	}
	return n
}

func (r *Raid) distributed(itemID string) bool {
	for _, items := range r.Distribution {
		if indexOf(items, itemID) >= 0 {
			return true
		}
	}
	return false
}

func (r *Raid) lootItem(itemID string) (catalogs.LootItem, bool) {
	for _, it := range r.LootPool {
		if it.ID == itemID {
			return it, true
		}
	}
	return catalogs.LootItem{}, false
}

// Clone returns a deep copy safe to hand outside the slot lock.
func (r *Raid) Clone() *Raid {
	c := *r
	c.Party = append([]string(nil), r.Party...)
	c.LootPool = append([]catalogs.LootItem(nil), r.LootPool...)
	c.Events = append([]Event(nil), r.Events...)
	c.Floors = make([]Floor, len(r.Floors))
	for i, f := range r.Floors {
		nf := f
		nf.Encounters = append([]catalogs.EncounterDef(nil), f.Encounters...)
		if f.Puzzle != nil {
			p := *f.Puzzle
			p.Actions = append([]Submission(nil), f.Puzzle.Actions...)
			nf.Puzzle = &p
		}
		c.Floors[i] = nf
	}
	c.Distribution = make(map[string][]string, len(r.Distribution))
	for k, v := range r.Distribution {
		c.Distribution[k] = append([]string(nil), v...)
	}
	c.Health = make(map[string]int, len(r.Health))
	for k, v := range r.Health {
		c.Health[k] = v
	}
	return &c
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
