package main

import (
	"fmt"
	"sort"
	"strings"

	persistlog "raidforge.ai/internal/persistence/log"
	"raidforge.ai/internal/sim/ids"
	"raidforge.ai/internal/sim/raid"
)

// summary is what the event stream says about one raid.
type summary struct {
	RaidID     string
	Dungeon    string
	Status     raid.Status
	Events     int
	LastSeq    uint64
	FirstTick  uint64
	LastTick   uint64
	MaxFloor   int
	Puzzles    int
	BossDamage int
	Attacks    int
	Players    map[string]struct{}
}

func (s *summary) String() string {
	players := make([]string, 0, len(s.Players))
	for p := range s.Players {
		players = append(players, p)
	}
	sort.Strings(players)
	return fmt.Sprintf("%s dungeon=%s status=%s events=%d ticks=%d..%d floor=%d puzzles=%d attacks=%d boss_damage=%d players=%s",
		s.RaidID, s.Dungeon, s.Status, s.Events, s.FirstTick, s.LastTick, s.MaxFloor, s.Puzzles, s.Attacks, s.BossDamage, strings.Join(players, ","))
}

type replay struct {
	only    string
	byRaid  map[string]*summary
	gaps    []string
	onEvent func(line string)
}

func newReplay(only string) *replay {
	return &replay{only: only, byRaid: map[string]*summary{}}
}

// readDir applies every event file under dir in name order and returns how
// many files it read.
func (r *replay) readDir(dir string) (int, error) {
	files, err := persistlog.Files(dir, "events")
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	for _, f := range files {
		if err := persistlog.ReadEvents(f, r.apply); err != nil {
			return 0, fmt.Errorf("read %s: %w", f, err)
		}
	}
	return len(files), nil
}

var statusAfter = map[raid.EventKind]raid.Status{
	raid.EventCreated:          raid.StatusForming,
	raid.EventStarted:          raid.StatusInProgress,
	raid.EventBossFightStarted: raid.StatusBossFight,
	raid.EventCompleted:        raid.StatusCompleted,
	raid.EventFailed:           raid.StatusFailed,
	raid.EventAbandoned:        raid.StatusAbandoned,
}

func (r *replay) apply(ev raid.Event) error {
	if r.only != "" && ev.RaidID != r.only {
		return nil
	}
	s := r.byRaid[ev.RaidID]
	if s == nil {
		s = &summary{RaidID: ev.RaidID, FirstTick: ev.Tick, Players: map[string]struct{}{}}
		r.byRaid[ev.RaidID] = s
	}
	if s.LastSeq != 0 && ev.Seq != s.LastSeq+1 {
		r.gaps = append(r.gaps, fmt.Sprintf("%s seq %d -> %d", ev.RaidID, s.LastSeq, ev.Seq))
	}
	s.LastSeq = ev.Seq
	s.Events++
	if ev.Tick > s.LastTick {
		s.LastTick = ev.Tick
	}
	if st, ok := statusAfter[ev.Kind]; ok {
		s.Status = st
	}
	switch ev.Kind {
	case raid.EventCreated:
		s.Dungeon = ev.Target
	case raid.EventFloorAdvanced, raid.EventStarted:
		if ev.Floor > s.MaxFloor {
			s.MaxFloor = ev.Floor
		}
	case raid.EventPuzzleSolved:
		s.Puzzles++
	case raid.EventBossAttacked:
		s.Attacks++
		s.BossDamage += ev.Amount
	}
	if ev.Player != "" {
		s.Players[ev.Player] = struct{}{}
	}
	if r.onEvent != nil {
		r.onEvent(fmt.Sprintf("%s #%d t=%d %s player=%s floor=%d amount=%d %s", ev.RaidID, ev.Seq, ev.Tick, ev.Kind, ev.Player, ev.Floor, ev.Amount, ev.Detail))
	}
	return nil
}

// summaries returns every raid ordered by raid number.
func (r *replay) summaries() []*summary {
	out := make([]*summary, 0, len(r.byRaid))
	for _, s := range r.byRaid {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := ids.ParseUintAfterPrefix(ids.RaidPrefix, out[i].RaidID)
		b, _ := ids.ParseUintAfterPrefix(ids.RaidPrefix, out[j].RaidID)
		if a != b {
			return a < b
		}
		return out[i].RaidID < out[j].RaidID
	})
	return out
}

// crossCheck compares replayed statuses with raids from a snapshot. Raids
// whose log continues past the snapshot are skipped.
func (r *replay) crossCheck(raids []raid.Raid) []string {
	var out []string
	for _, sr := range raids {
		if r.only != "" && sr.ID != r.only {
			continue
		}
		s := r.byRaid[sr.ID]
		if s == nil {
			out = append(out, fmt.Sprintf("%s: in snapshot but not in event log", sr.ID))
			continue
		}
		if s.LastSeq != sr.NextSeq {
			continue
		}
		if s.Status != sr.Status {
			out = append(out, fmt.Sprintf("%s: log says %s, snapshot says %s", sr.ID, s.Status, sr.Status))
		}
	}
	return out
}
