package raid

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"raidforge.ai/internal/sim/ids"
)

type slot struct {
	mu   sync.Mutex
	raid *Raid
}

// Store holds every raid plus the per-player side tables.
//
// Lock order: a raid's slot lock may be held while taking s.mu, never the
// reverse. Structural changes (new raids, the active index, cooldowns,
// history, leaderboards) go through s.mu; per-raid state goes through the
// slot lock, so operations on different raids run in parallel.
type Store struct {
	mu sync.RWMutex

	raids        map[string]*slot
	active       map[string]string
	cooldowns    map[CooldownKey]uint64
	history      map[string][]HistoryEntry
	leaderboards map[string][]LeaderboardEntry

	nextID atomic.Uint64
}

func NewStore() *Store {
	return &Store{
		raids:        map[string]*slot{},
		active:       map[string]string{},
		cooldowns:    map[CooldownKey]uint64{},
		history:      map[string][]HistoryEntry{},
		leaderboards: map[string][]LeaderboardEntry{},
	}
}

func (s *Store) slot(raidID string) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raids[raidID]
}

// slots returns every slot ordered by raid number.
func (s *Store) slots() []*slot {
	s.mu.RLock()
	type keyed struct {
		n  uint64
		id string
		sl *slot
	}
	list := make([]keyed, 0, len(s.raids))
	for id, sl := range s.raids {
		n, _ := ids.ParseUintAfterPrefix(ids.RaidPrefix, id)
		list = append(list, keyed{n: n, id: id, sl: sl})
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n < list[j].n
		}
		return list[i].id < list[j].id
	})
	out := make([]*slot, len(list))
	for i, k := range list {
		out[i] = k.sl
	}
	return out
}

// create checks the leader's eligibility, allocates an id and publishes the
// raid built by build in one critical section.
func (s *Store) create(leader, dungeonID string, tick uint64, build func(id string) *Raid) (*Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eligibleLocked(leader, dungeonID, tick); err != nil {
		return nil, err
	}
	id := ids.RaidID(s.nextID.Add(1))
	r := build(id)
	s.raids[id] = &slot{raid: r}
	s.active[leader] = id
	return r, nil
}

// claim reserves player for raidID if they are free and off cooldown.
func (s *Store) claim(player, raidID, dungeonID string, tick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eligibleLocked(player, dungeonID, tick); err != nil {
		return err
	}
	s.active[player] = raidID
	return nil
}

func (s *Store) eligibleLocked(player, dungeonID string, tick uint64) error {
	if other, ok := s.active[player]; ok {
		return fail(ErrMembership, "player %s is already in raid %s", player, other)
	}
	if exp, ok := s.cooldowns[CooldownKey{PlayerID: player, DungeonID: dungeonID}]; ok && exp > tick {
		return fail(ErrValidation, "player %s is on cooldown for %s for %d more ticks", player, dungeonID, exp-tick)
	}
	return nil
}

// release drops players from the active index if they are bound to raidID.
func (s *Store) release(raidID string, players ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range players {
		if s.active[p] == raidID {
			delete(s.active, p)
		}
	}
}

// recordCompletion writes history, the leaderboard row and cooldowns for a
// completed raid and frees its members.
func (s *Store) recordCompletion(r *Raid, cooldownTicks uint64) {
	duration := r.EndTick - r.StartTick
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range r.Party {
		s.history[p] = append(s.history[p], HistoryEntry{
			RaidID:        r.ID,
			DungeonID:     r.DungeonID,
			CompletedTick: r.EndTick,
			DurationTicks: duration,
		})
		s.cooldowns[CooldownKey{PlayerID: p, DungeonID: r.DungeonID}] = r.EndTick + cooldownTicks
		if s.active[p] == r.ID {
			delete(s.active, p)
		}
	}
	entry := LeaderboardEntry{
		RaidID:        r.ID,
		Party:         append([]string(nil), r.Party...),
		DurationTicks: duration,
		CompletedTick: r.EndTick,
	}
	board := s.leaderboards[r.DungeonID]
	at := sort.Search(len(board), func(i int) bool { return board[i].DurationTicks > duration })
	board = append(board, LeaderboardEntry{})
	copy(board[at+1:], board[at:])
	board[at] = entry
	s.leaderboards[r.DungeonID] = board
}

func (s *Store) cooldown(player, dungeonID string) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.cooldowns[CooldownKey{PlayerID: player, DungeonID: dungeonID}]
	return exp, ok
}

func (s *Store) historyFor(player string) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]HistoryEntry(nil), s.history[player]...)
}

func (s *Store) leaderboard(dungeonID string, limit int) []LeaderboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board := s.leaderboards[dungeonID]
	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}
	out := make([]LeaderboardEntry, len(board))
	for i, e := range board {
		e.Party = append([]string(nil), e.Party...)
		out[i] = e
	}
	return out
}

// ActiveRaid returns the non-terminal raid player currently belongs to.
func (s *Store) ActiveRaid(player string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[player]
	return id, ok
}

// StatusCounts tallies raids by status.
func (s *Store) StatusCounts() map[Status]int {
	out := map[Status]int{}
	for _, sl := range s.slots() {
		sl.mu.Lock()
		out[sl.raid.Status]++
		sl.mu.Unlock()
	}
	return out
}

// StoreState is the serializable form of a Store.
type StoreState struct {
	Raids        []Raid
	Cooldowns    []CooldownRecord
	History      map[string][]HistoryEntry
	Leaderboards map[string][]LeaderboardEntry
	NextRaidID   uint64
}

type CooldownRecord struct {
	PlayerID  string
	DungeonID string
	ExpiresAt uint64
}

// Export captures a consistent copy of the store. Every slot is locked in id
// order before the side tables are read.
func (s *Store) Export() StoreState {
	all := s.slots()
	for _, sl := range all {
		sl.mu.Lock()
	}
	defer func() {
		for _, sl := range all {
			sl.mu.Unlock()
		}
	}()

	st := StoreState{
		Raids:        make([]Raid, 0, len(all)),
		History:      map[string][]HistoryEntry{},
		Leaderboards: map[string][]LeaderboardEntry{},
	}
	for _, sl := range all {
		st.Raids = append(st.Raids, *sl.raid.Clone())
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st.NextRaidID = s.nextID.Load()
	for k, exp := range s.cooldowns {
		st.Cooldowns = append(st.Cooldowns, CooldownRecord{PlayerID: k.PlayerID, DungeonID: k.DungeonID, ExpiresAt: exp})
	}
	sort.Slice(st.Cooldowns, func(i, j int) bool {
		a, b := st.Cooldowns[i], st.Cooldowns[j]
		if a.PlayerID != b.PlayerID {
			return a.PlayerID < b.PlayerID
		}
		return a.DungeonID < b.DungeonID
	})
	for p, h := range s.history {
		st.History[p] = append([]HistoryEntry(nil), h...)
	}
	for d, b := range s.leaderboards {
		st.Leaderboards[d] = append([]LeaderboardEntry(nil), b...)
	}
	return st
}

// Import replaces the store contents with st and rebuilds the active index
// from non-terminal raids. It is meant for startup, before any traffic.
func (s *Store) Import(st StoreState) error {
	raids := make(map[string]*slot, len(st.Raids))
	active := map[string]string{}
	next := st.NextRaidID
	for i := range st.Raids {
		r := st.Raids[i].Clone()
		if r.ID == "" {
			return fmt.Errorf("import: raid with empty id")
		}
		if _, dup := raids[r.ID]; dup {
			return fmt.Errorf("import: duplicate raid %s", r.ID)
		}
		if n, ok := ids.ParseUintAfterPrefix(ids.RaidPrefix, r.ID); ok {
			next = ids.MaxU64(next, n)
		}
		if r.Status.Active() {
			for _, p := range r.Party {
				if other, taken := active[p]; taken {
					return fmt.Errorf("import: player %s active in both %s and %s", p, other, r.ID)
				}
				active[p] = r.ID
			}
		}
		raids[r.ID] = &slot{raid: r}
	}

	cooldowns := make(map[CooldownKey]uint64, len(st.Cooldowns))
	for _, c := range st.Cooldowns {
		cooldowns[CooldownKey{PlayerID: c.PlayerID, DungeonID: c.DungeonID}] = c.ExpiresAt
	}
	history := map[string][]HistoryEntry{}
	for p, h := range st.History {
		history[p] = append([]HistoryEntry(nil), h...)
	}
	boards := map[string][]LeaderboardEntry{}
	for d, b := range st.Leaderboards {
		board := append([]LeaderboardEntry(nil), b...)
		sort.SliceStable(board, func(i, j int) bool { return board[i].DurationTicks < board[j].DurationTicks })
		boards[d] = board
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.raids = raids
	s.active = active
	s.cooldowns = cooldowns
	s.history = history
	s.leaderboards = boards
	s.nextID.Store(next)
	return nil
}
