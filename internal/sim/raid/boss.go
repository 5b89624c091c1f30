package raid

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/rng"
)

type BossView struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Health      int                    `json:"health"`
	MaxHealth   int                    `json:"max_health"`
	Phase       int                    `json:"phase"`
	Phases      int                    `json:"phases"`
	Attack      int                    `json:"attack"`
	Defense     int                    `json:"defense"`
	Mechanics   []catalogs.MechanicDef `json:"mechanics"`
	Weaknesses  []string               `json:"weaknesses,omitempty"`
	Resistances []string               `json:"resistances,omitempty"`
}

// StartBossFight scales the boss to the party and opens phase 1. Only the
// phase 1 mechanics are revealed.
func (e *Engine) StartBossFight(raidID string) (BossView, error) {
	var res BossView
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusInProgress, "start boss fight"); err != nil {
			return err
		}
		b, err := e.bossFor(r)
		if err != nil {
			return err
		}
		r.Status = StatusBossFight
		r.BossPhase = 1
		r.BossMaxHealth = b.MaxHealthFor(len(r.Party))
		r.BossHealth = r.BossMaxHealth
		t.emit(Event{Kind: EventBossFightStarted, Floor: r.CurrentFloor, Target: b.ID, Amount: r.BossMaxHealth})
		res = BossView{
			ID:          b.ID,
			Name:        b.Name,
			Health:      r.BossHealth,
			MaxHealth:   r.BossMaxHealth,
			Phase:       1,
			Phases:      b.Phases,
			Attack:      b.Attack,
			Defense:     b.Defense,
			Mechanics:   b.MechanicsThrough(1),
			Weaknesses:  append([]string(nil), b.Weaknesses...),
			Resistances: append([]string(nil), b.Resistances...),
		}
		return nil
	})
	return res, err
}

type AttackResult struct {
	Attacker      string                `json:"attacker"`
	BaseDamage    int                   `json:"base_damage"`
	Multiplier    float64               `json:"multiplier"`
	Damage        int                   `json:"damage"`
	BossHealth    int                   `json:"boss_health"`
	BossMaxHealth int                   `json:"boss_max_health"`
	Defeated      bool                  `json:"defeated"`
	Phase         int                   `json:"phase"`
	ExpectedPhase int                   `json:"expected_phase"`
	PhaseChanged  bool                  `json:"phase_changed"`
	Mechanic      *catalogs.MechanicDef `json:"mechanic,omitempty"`
}

// AttackBoss applies one attack. PhaseChanged only reports that health has
// crossed a phase threshold; AdvanceBossPhase moves the phase.
func (e *Engine) AttackBoss(raidID, player, element string, tick uint64, seed rng.Seed) (AttackResult, error) {
	player = normPlayer(player)
	var res AttackResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusBossFight, "attack boss"); err != nil {
			return err
		}
		if !r.isMember(player) {
			return fail(ErrMembership, "player %s is not in raid %s", player, r.ID)
		}
		if r.BossHealth <= 0 {
			return fail(ErrInvalidState, "attack boss: boss of raid %s is already defeated", r.ID)
		}
		b, err := e.bossFor(r)
		if err != nil {
			return err
		}
		r.touch(tick)
		c := e.tune.Combat
		g := rng.New(seed.Resolve(r.ID, "attack:"+player+":"+strconv.FormatUint(r.NextSeq, 10)))

		base := g.IntRange(c.MinBaseDamage, c.MaxBaseDamage)
		mult := elementMultiplier(b, element, c.WeaknessMultiplier, c.ResistanceMultiplier)
		dmg := int(math.Floor(float64(base)*mult)) - int(math.Floor(float64(b.Defense)*c.DefenseFactor))
		if dmg < 1 {
			dmg = 1
		}
		r.BossHealth = max(0, r.BossHealth-dmg)

		expected := expectedPhase(r.BossHealth, r.BossMaxHealth, b.Phases)
		res = AttackResult{
			Attacker:      player,
			BaseDamage:    base,
			Multiplier:    mult,
			Damage:        dmg,
			BossHealth:    r.BossHealth,
			BossMaxHealth: r.BossMaxHealth,
			Defeated:      r.BossHealth == 0,
			Phase:         r.BossPhase,
			ExpectedPhase: expected,
			PhaseChanged:  r.BossHealth > 0 && expected > r.BossPhase,
		}
		t.emit(Event{Kind: EventBossAttacked, Player: player, Target: b.ID, Amount: dmg, Detail: element})

		if r.BossHealth > 0 && g.Chance(c.MechanicChance) {
			if m, ok := rng.Pick(g, b.MechanicsThrough(r.BossPhase)); ok {
				res.Mechanic = &m
				t.emit(Event{Kind: EventMechanicTrigger, Target: m.ID})
			}
		}
		return nil
	})
	return res, err
}

// elementMultiplier checks weaknesses before resistances.
func elementMultiplier(b catalogs.BossDef, element string, weak, resist float64) float64 {
	el := strings.ToLower(strings.TrimSpace(element))
	if el == "" {
		return 1.0
	}
	if slices.Contains(b.Weaknesses, el) {
		return weak
	}
	if slices.Contains(b.Resistances, el) {
		return resist
	}
	return 1.0
}

func expectedPhase(health, maxHealth, phases int) int {
	if phases < 1 {
		return 1
	}
	threshold := maxHealth / phases
	p := phases
	if threshold > 0 {
		p = phases - health/threshold
	}
	return max(1, min(phases, p))
}

type MechanicOutcome struct {
	PlayerID string `json:"player_id"`
	Success  bool   `json:"success"`
	Damage   int    `json:"damage"`
	Health   int    `json:"health"`
}

// ProcessBossMechanic resolves a mechanic for every party member. Members
// without a response, or whose response is "fail", take mechanic damage.
func (e *Engine) ProcessBossMechanic(raidID, mechanicID string, responses []MechanicResponse, tick uint64) ([]MechanicOutcome, error) {
	var res []MechanicOutcome
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusBossFight, "process mechanic"); err != nil {
			return err
		}
		b, err := e.bossFor(r)
		if err != nil {
			return err
		}
		if _, ok := b.Mechanic(mechanicID); !ok {
			return fail(ErrNotFound, "mechanic %s not found on boss %s", mechanicID, b.ID)
		}
		r.touch(tick)
		answered := make(map[string]string, len(responses))
		for _, resp := range responses {
			id := normPlayer(resp.PlayerID)
			if _, seen := answered[id]; !seen {
				answered[id] = resp.Response
			}
		}
		failures := 0
		res = make([]MechanicOutcome, 0, len(r.Party))
		for _, p := range r.Party {
			resp, ok := answered[p]
			out := MechanicOutcome{PlayerID: p, Success: ok && resp != "fail"}
			if !out.Success {
				failures++
				out.Damage = e.tune.Combat.MechanicDamage
				r.Health[p] = max(0, r.Health[p]-out.Damage)
			}
			out.Health = r.Health[p]
			res = append(res, out)
		}
		t.emit(Event{Kind: EventMechanicResolved, Target: mechanicID, Amount: failures})
		return nil
	})
	return res, err
}

type PhaseResult struct {
	Phase      int                    `json:"phase"`
	Healed     int                    `json:"healed"`
	BossHealth int                    `json:"boss_health"`
	Mechanics  []catalogs.MechanicDef `json:"mechanics"`
}

// AdvanceBossPhase moves to the next phase and heals the boss a little.
func (e *Engine) AdvanceBossPhase(raidID string, tick uint64) (PhaseResult, error) {
	var res PhaseResult
	err := e.mutate(raidID, func(t *txn) error {
		r := t.r
		if err := requireStatus(r, StatusBossFight, "advance phase"); err != nil {
			return err
		}
		b, err := e.bossFor(r)
		if err != nil {
			return err
		}
		if r.BossPhase >= b.Phases {
			return fail(ErrInvalidState, "advance phase: boss %s is already in its final phase %d", b.ID, r.BossPhase)
		}
		r.touch(tick)
		r.BossPhase++
		heal := int(math.Floor(float64(r.BossMaxHealth) * e.tune.Combat.PhaseHealFraction))
		before := r.BossHealth
		r.BossHealth = min(r.BossMaxHealth, r.BossHealth+heal)
		t.emit(Event{Kind: EventPhaseAdvanced, Target: b.ID, Amount: r.BossPhase})
		res = PhaseResult{
			Phase:      r.BossPhase,
			Healed:     r.BossHealth - before,
			BossHealth: r.BossHealth,
			Mechanics:  b.MechanicsThrough(r.BossPhase),
		}
		return nil
	})
	return res, err
}
