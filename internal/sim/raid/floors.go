package raid

import (
	"strconv"

	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/ids"
	"raidforge.ai/internal/sim/rng"
)

type PuzzleView struct {
	ID         string `json:"id"`
	TypeID     string `json:"type_id"`
	Name       string `json:"name"`
	MinPlayers int    `json:"min_players"`
	Solved     bool   `json:"solved"`
}

type FloorView struct {
	Number      int                     `json:"number"`
	Encounters  []catalogs.EncounterDef `json:"encounters"`
	Puzzle      *PuzzleView             `json:"puzzle,omitempty"`
	IsBossFloor bool                    `json:"is_boss_floor"`
	Cleared     bool                    `json:"cleared"`
}

func (e *Engine) floorView(f *Floor) FloorView {
	v := FloorView{
		Number:      f.Number,
		Encounters:  append([]catalogs.EncounterDef(nil), f.Encounters...),
		IsBossFloor: f.IsBossFloor,
		Cleared:     f.Cleared,
	}
	if f.Puzzle != nil {
		pv := &PuzzleView{ID: f.Puzzle.ID, TypeID: f.Puzzle.TypeID, Solved: f.Puzzle.Solved}
		if pt, ok := e.cats.PuzzleType(f.Puzzle.TypeID); ok {
			pv.Name = pt.Name
			pv.MinPlayers = pt.MinPlayers
		}
		v.Puzzle = pv
	}
	return v
}

type StartResult struct {
	RaidID       string      `json:"raid_id"`
	Floors       int         `json:"floors"`
	Seed         uint32      `json:"seed"`
	CurrentFloor int         `json:"current_floor"`
	Layout       []FloorView `json:"layout"`
}

// Start moves a forming raid to in_progress and generates its floors. An
// unset seed is derived from the raid id and tick.
func (e *Engine) Start(raidID string, tick uint64, seed rng.Seed) (StartResult, error) {
	var res StartResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusForming, "start"); err != nil {
			return err
		}
		d, err := e.dungeonFor(r)
		if err != nil {
			return err
		}
		if len(r.Party) < d.MinPlayers {
			return fail(ErrValidation, "start: raid %s has %d players, needs %d", r.ID, len(r.Party), d.MinPlayers)
		}
		v := seed.Resolve(r.ID, strconv.FormatUint(tick, 10))
		r.Floors = e.GenerateFloors(d, r.ID, len(r.Party), v)
		r.Seed = v
		r.Status = StatusInProgress
		r.StartTick = tick
		r.LastTick = tick
		r.CurrentFloor = 1
		t.emit(Event{Kind: EventStarted, Floor: 1, Amount: len(r.Floors), Detail: strconv.FormatUint(uint64(v), 10)})

		res = StartResult{RaidID: r.ID, Floors: len(r.Floors), Seed: v, CurrentFloor: 1}
		for i := range r.Floors {
			res.Layout = append(res.Layout, e.floorView(&r.Floors[i]))
		}
		e.logger.Printf("raid %s started dungeon=%s party=%d seed=%d", r.ID, r.DungeonID, len(r.Party), v)
		return nil
	})
	return res, err
}

// GenerateFloors lays out d for a party of the given size. The result depends
// only on its arguments.
func (e *Engine) GenerateFloors(d catalogs.DungeonDef, raidID string, partySize int, seed uint32) []Floor {
	r := rng.New(seed)

	candidates := make([]int, 0, d.Floors)
	for n := 2; n < d.Floors; n++ {
		candidates = append(candidates, n)
	}
	puzzleFloors := map[int]bool{}
	for _, n := range rng.Shuffle(r, candidates)[:min(d.PuzzleCount, len(candidates))] {
		puzzleFloors[n] = true
	}

	encounters := e.cats.EncounterList()
	puzzleTypes := e.cats.PuzzleTypesFor(partySize)
	c := e.tune.Combat

	floors := make([]Floor, d.Floors)
	for i := range floors {
		n := i + 1
		f := Floor{Number: n, IsBossFloor: n == d.Floors}
		if !f.IsBossFloor {
			count := r.IntRange(c.MinEncounters, c.MaxEncounters)
			for j := 0; j < count; j++ {
				if enc, ok := rng.Pick(r, encounters); ok {
					f.Encounters = append(f.Encounters, enc)
				}
			}
			if puzzleFloors[n] {
				if pt, ok := rng.Pick(r, puzzleTypes); ok {
					f.Puzzle = &Puzzle{ID: ids.PuzzleID(raidID, n), TypeID: pt.ID}
				}
			}
		}
		floors[i] = f
	}
	return floors
}

// AdvanceFloor clears the current floor and moves to the next one. It does
// not enter the boss fight.
func (e *Engine) AdvanceFloor(raidID string, tick uint64) (FloorView, error) {
	var res FloorView
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusInProgress, "advance floor"); err != nil {
			return err
		}
		next := r.CurrentFloor + 1
		if next > len(r.Floors) {
			return fail(ErrInvalidState, "advance floor: raid %s is already on its last floor (%d)", r.ID, r.CurrentFloor)
		}
		if cur := r.floor(r.CurrentFloor); cur != nil {
			cur.Cleared = true
		}
		r.touch(tick)
		r.CurrentFloor = next
		t.emit(Event{Kind: EventFloorAdvanced, Floor: next})
		res = e.floorView(r.floor(next))
		return nil
	})
	return res, err
}

type PuzzleResult struct {
	PuzzleID      string `json:"puzzle_id"`
	Reward        Reward `json:"reward"`
	PuzzlesSolved int    `json:"puzzles_solved"`
}

// SolvePuzzle resolves the puzzle on the current floor. It needs at least the
// puzzle type's MinPlayers distinct party members, each with a submission
// carrying an action.
func (e *Engine) SolvePuzzle(raidID, puzzleID string, subs []Submission) (PuzzleResult, error) {
	var res PuzzleResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if r.Status.Terminal() {
			return fail(ErrAlreadyDone, "solve puzzle: raid %s is already %s", r.ID, r.Status)
		}
		f := r.floor(r.CurrentFloor)
		if f == nil || f.Puzzle == nil || f.Puzzle.ID != puzzleID {
			return fail(ErrNotFound, "puzzle %s is not on the current floor of raid %s", puzzleID, r.ID)
		}
		p := f.Puzzle
		if p.Solved {
			return fail(ErrAlreadyDone, "puzzle %s is already solved", p.ID)
		}
		pt, ok := e.cats.PuzzleType(p.TypeID)
		if !ok {
			return fail(ErrNotFound, "puzzle type %s not found", p.TypeID)
		}
		if len(subs) < pt.MinPlayers {
			return fail(ErrValidation, "puzzle %s needs %d submissions, got %d", p.ID, pt.MinPlayers, len(subs))
		}
		// Quorum is distinct players, not submissions.
		players := make(map[string]bool, len(subs))
		for _, s := range subs {
			id := normPlayer(s.PlayerID)
			if id != "" && !r.isMember(id) {
				return fail(ErrMembership, "player %s is not in raid %s", id, r.ID)
			}
			if id != "" && s.Action != "" {
				players[id] = true
			}
		}
		valid := len(players)
		if valid < pt.MinPlayers {
			return fail(ErrValidation, "puzzle %s needs %d players with valid submissions, got %d", p.ID, pt.MinPlayers, valid)
		}

		p.Solved = true
		p.Actions = append([]Submission(nil), subs...)
		r.PuzzlesSolved++
		t.emit(Event{Kind: EventPuzzleSolved, Floor: f.Number, Target: p.ID, Amount: valid})
		res = PuzzleResult{PuzzleID: p.ID, Reward: pt.Reward, PuzzlesSolved: r.PuzzlesSolved}
		return nil
	})
	return res, err
}
