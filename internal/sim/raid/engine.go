package raid

import (
	"io"
	"log"

	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/tuning"
)

// Engine runs the raid state machine over a Store. It keeps no state of its
// own beyond configuration; every call carries the tick it happens at.
type Engine struct {
	cats  *catalogs.Catalogs
	tune  tuning.Tuning
	store *Store

	events  EventLogger
	results ResultRecorder
	logger  *log.Logger
}

type Option func(*Engine)

func WithEventLogger(l EventLogger) Option { return func(e *Engine) { e.events = l } }

func WithResultRecorder(r ResultRecorder) Option { return func(e *Engine) { e.results = r } }

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(cats *catalogs.Catalogs, tune tuning.Tuning, store *Store, opts ...Option) *Engine {
	if store == nil {
		store = NewStore()
	}
	e := &Engine{
		cats:   cats,
		tune:   tune,
		store:  store,
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Store() *Store                { return e.store }
func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }
func (e *Engine) Tuning() tuning.Tuning        { return e.tune }

// IsMember reports whether player is in the party of raidID.
func (e *Engine) IsMember(raidID, player string) bool {
	return e.CheckMember(raidID, player) == nil
}

// CheckMember fails with ErrNotFound for an unknown raid and ErrMembership
// when player is not in its party.
func (e *Engine) CheckMember(raidID, player string) error {
	player = normPlayer(player)
	member := false
	if !e.read(raidID, func(r *Raid) { member = r.isMember(player) }) {
		return fail(ErrNotFound, "raid %s not found", raidID)
	}
	if !member {
		return fail(ErrMembership, "player %s is not in raid %s", player, raidID)
	}
	return nil
}

// txn collects side effects produced while a raid is locked. They are
// delivered to the sinks after the lock is released.
type txn struct {
	e *Engine
	r *Raid

	events     []Event
	completion *CompletionRecord
	failure    *FailureRecord
}

func (t *txn) emit(ev Event) {
	t.events = append(t.events, t.r.appendEvent(ev, t.e.tune.EventLogLimit))
}

func (e *Engine) mutate(raidID string, fn func(t *txn) error) error {
	sl := e.store.slot(raidID)
	if sl == nil {
		return fail(ErrNotFound, "raid %s not found", raidID)
	}
	t := &txn{e: e}
	sl.mu.Lock()
	t.r = sl.raid
	err := fn(t)
	sl.mu.Unlock()
	e.flush(t)
	return err
}

func (e *Engine) read(raidID string, fn func(r *Raid)) bool {
	sl := e.store.slot(raidID)
	if sl == nil {
		return false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(sl.raid)
	return true
}

func (e *Engine) flush(t *txn) {
	if e.events != nil {
		for _, ev := range t.events {
			if err := e.events.WriteEvent(ev); err != nil {
				e.logger.Printf("event log: raid=%s seq=%d: %v", ev.RaidID, ev.Seq, err)
			}
		}
	}
	if e.results != nil {
		if t.completion != nil {
			e.results.RecordCompletion(*t.completion)
		}
		if t.failure != nil {
			e.results.RecordFailure(*t.failure)
		}
	}
}

func (e *Engine) dungeonFor(r *Raid) (catalogs.DungeonDef, error) {
	d, ok := e.cats.Dungeon(r.DungeonID)
	if !ok {
		return d, fail(ErrNotFound, "dungeon %s not found", r.DungeonID)
	}
	return d, nil
}

func (e *Engine) bossFor(r *Raid) (catalogs.BossDef, error) {
	d, err := e.dungeonFor(r)
	if err != nil {
		return catalogs.BossDef{}, err
	}
	b, ok := e.cats.Boss(d.BossID)
	if !ok {
		return b, fail(ErrNotFound, "boss %s not found", d.BossID)
	}
	return b, nil
}

func (e *Engine) partialReward(floorsCleared int) Reward {
	return Reward{
		XP:    floorsCleared * e.tune.Rewards.PartialXPPerFloor,
		Spark: floorsCleared * e.tune.Rewards.PartialSparkPerFloor,
	}
}

func requireStatus(r *Raid, want Status, op string) error {
	if r.Status != want {
		return fail(ErrInvalidState, "%s: raid %s is %s, want %s", op, r.ID, r.Status, want)
	}
	return nil
}
