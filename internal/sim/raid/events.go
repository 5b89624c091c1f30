package raid

type EventKind string

const (
	EventCreated          EventKind = "created"
	EventJoined           EventKind = "joined"
	EventLeft             EventKind = "left"
	EventNewLeader        EventKind = "new_leader"
	EventAbandoned        EventKind = "abandoned"
	EventStarted          EventKind = "started"
	EventFloorAdvanced    EventKind = "floor_advanced"
	EventPuzzleSolved     EventKind = "puzzle_solved"
	EventBossFightStarted EventKind = "boss_fight_started"
	EventBossAttacked     EventKind = "boss_attacked"
	EventMechanicTrigger  EventKind = "mechanic_triggered"
	EventMechanicResolved EventKind = "mechanic_resolved"
	EventPhaseAdvanced    EventKind = "boss_phase_advanced"
	EventCompleted        EventKind = "completed"
	EventLootAssigned     EventKind = "loot_assigned"
	EventLootRolled       EventKind = "loot_rolled"
	EventFailed           EventKind = "failed"
)

// Event is one entry of a raid's combat/lifecycle log. Kind selects which of
// the optional fields are meaningful.
type Event struct {
	Seq    uint64    `json:"seq"`
	Tick   uint64    `json:"tick"`
	RaidID string    `json:"raid_id"`
	Kind   EventKind `json:"kind"`
	Player string    `json:"player,omitempty"`
	Floor  int       `json:"floor,omitempty"`
	Target string    `json:"target,omitempty"`
	Amount int       `json:"amount,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// EventLogger receives every event after the operation that produced it
// has released the raid lock. Implemented in internal/persistence/log.
type EventLogger interface {
	WriteEvent(ev Event) error
}

type teeEvents []EventLogger

func (t teeEvents) WriteEvent(ev Event) error {
	var first error
	for _, l := range t {
		if err := l.WriteEvent(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TeeEvents fans every event out to each non-nil sink in order. The first
// sink error is returned after all sinks have been tried.
func TeeEvents(sinks ...EventLogger) EventLogger {
	var t teeEvents
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}

// ResultRecorder receives terminal outcomes. Implemented in
// internal/persistence/indexdb. Implementations must not block.
type ResultRecorder interface {
	RecordCompletion(rec CompletionRecord)
	RecordFailure(rec FailureRecord)
}

type CompletionRecord struct {
	RaidID        string              `json:"raid_id"`
	DungeonID     string              `json:"dungeon_id"`
	Party         []string            `json:"party"`
	StartTick     uint64              `json:"start_tick"`
	EndTick       uint64              `json:"end_tick"`
	DurationTicks uint64              `json:"duration_ticks"`
	PuzzlesSolved int                 `json:"puzzles_solved"`
	Reward        Reward              `json:"reward"`
	LootMode      LootMode            `json:"loot_mode"`
	Loot          map[string][]string `json:"loot"`
}

type FailureRecord struct {
	RaidID        string   `json:"raid_id"`
	DungeonID     string   `json:"dungeon_id"`
	Party         []string `json:"party"`
	Status        Status   `json:"status"`
	Reason        string   `json:"reason"`
	Tick          uint64   `json:"tick"`
	FloorsCleared int      `json:"floors_cleared"`
	Reward        Reward   `json:"reward"`
}

// touch advances LastTick; events emitted afterwards carry it.
func (r *Raid) touch(tick uint64) {
	if tick > r.LastTick {
		r.LastTick = tick
	}
}

// appendEvent stamps ev and appends it to the raid's bounded log, dropping
// the oldest entries past limit.
func (r *Raid) appendEvent(ev Event, limit int) Event {
	r.NextSeq++
	ev.Seq = r.NextSeq
	ev.RaidID = r.ID
	if ev.Tick == 0 {
		ev.Tick = r.LastTick
	}
	r.Events = append(r.Events, ev)
	if limit > 0 && len(r.Events) > limit {
		kept := make([]Event, limit)
		copy(kept, r.Events[len(r.Events)-limit:])
		r.Events = kept
	}
	return ev
}
