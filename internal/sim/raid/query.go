package raid

import "raidforge.ai/internal/sim/catalogs"

// RaidState returns a copy of the raid, or nil for an unknown id.
func (e *Engine) RaidState(raidID string) *Raid {
	var out *Raid
	e.read(raidID, func(r *Raid) { out = r.Clone() })
	return out
}

type RaidSummary struct {
	RaidID     string   `json:"raid_id"`
	DungeonID  string   `json:"dungeon_id"`
	Leader     string   `json:"leader"`
	Party      []string `json:"party"`
	MaxPlayers int      `json:"max_players"`
	OpenSlots  int      `json:"open_slots"`
}

// AvailableRaids lists forming raids with open seats in id order. An empty
// dungeonID matches every dungeon.
func (e *Engine) AvailableRaids(dungeonID string) []RaidSummary {
	out := []RaidSummary{}
	for _, sl := range e.store.slots() {
		sl.mu.Lock()
		r := sl.raid
		if r.Status == StatusForming && (dungeonID == "" || r.DungeonID == dungeonID) {
			if d, ok := e.cats.Dungeon(r.DungeonID); ok && len(r.Party) < d.MaxPlayers {
				out = append(out, RaidSummary{
					RaidID:     r.ID,
					DungeonID:  r.DungeonID,
					Leader:     r.Leader,
					Party:      append([]string(nil), r.Party...),
					MaxPlayers: d.MaxPlayers,
					OpenSlots:  d.MaxPlayers - len(r.Party),
				})
			}
		}
		sl.mu.Unlock()
	}
	return out
}

type CooldownStatus struct {
	OnCooldown     bool   `json:"on_cooldown"`
	RemainingTicks uint64 `json:"remaining_ticks"`
	ExpiresAt      uint64 `json:"expires_at,omitempty"`
}

func (e *Engine) PlayerCooldown(player, dungeonID string, tick uint64) CooldownStatus {
	exp, ok := e.store.cooldown(normPlayer(player), dungeonID)
	if !ok {
		return CooldownStatus{}
	}
	if exp <= tick {
		return CooldownStatus{ExpiresAt: exp}
	}
	return CooldownStatus{OnCooldown: true, RemainingTicks: exp - tick, ExpiresAt: exp}
}

func (e *Engine) RaidHistory(player string) []HistoryEntry {
	return e.store.historyFor(normPlayer(player))
}

// Leaderboard returns the fastest completions of dungeonID. limit <= 0 means
// all of them.
func (e *Engine) Leaderboard(dungeonID string, limit int) []LeaderboardEntry {
	return e.store.leaderboard(dungeonID, limit)
}

func (e *Engine) Dungeons() []catalogs.DungeonDef { return e.cats.DungeonList() }

func (e *Engine) Bosses() []catalogs.BossDef { return e.cats.BossList() }

type MemberStats struct {
	PlayerID      string `json:"player_id"`
	Health        int    `json:"health"`
	ItemsReceived int    `json:"items_received"`
	IsLeader      bool   `json:"is_leader"`
}

type PartyStats struct {
	RaidID           string        `json:"raid_id"`
	Status           Status        `json:"status"`
	Leader           string        `json:"leader"`
	Members          []MemberStats `json:"members"`
	TotalHealth      int           `json:"total_health"`
	AverageHealth    float64       `json:"average_health"`
	ItemsDistributed int           `json:"items_distributed"`
	PuzzlesSolved    int           `json:"puzzles_solved"`
	CurrentFloor     int           `json:"current_floor"`
}

// PartyStats summarizes the party of raidID. ok is false for an unknown id.
func (e *Engine) PartyStats(raidID string) (stats PartyStats, ok bool) {
	ok = e.read(raidID, func(r *Raid) {
		stats = PartyStats{
			RaidID:        r.ID,
			Status:        r.Status,
			Leader:        r.Leader,
			Members:       make([]MemberStats, 0, len(r.Party)),
			PuzzlesSolved: r.PuzzlesSolved,
			CurrentFloor:  r.CurrentFloor,
		}
		for _, p := range r.Party {
			m := MemberStats{
				PlayerID:      p,
				Health:        r.Health[p],
				ItemsReceived: len(r.Distribution[p]),
				IsLeader:      p == r.Leader,
			}
			stats.TotalHealth += m.Health
			stats.Members = append(stats.Members, m)
		}
		for _, items := range r.Distribution {
			stats.ItemsDistributed += len(items)
		}
		if len(r.Party) > 0 {
			stats.AverageHealth = float64(stats.TotalHealth) / float64(len(r.Party))
		}
	})
	return stats, ok
}
