package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	EventLogLimit      int `yaml:"event_log_limit"`

	Party   PartyTuning  `yaml:"party"`
	Combat  CombatTuning `yaml:"combat"`
	Rewards RewardTuning `yaml:"rewards"`
}

type PartyTuning struct {
	StartHealth int `yaml:"start_health"`
}

type CombatTuning struct {
	MinBaseDamage        int     `yaml:"min_base_damage"`
	MaxBaseDamage        int     `yaml:"max_base_damage"`
	WeaknessMultiplier   float64 `yaml:"weakness_multiplier"`
	ResistanceMultiplier float64 `yaml:"resistance_multiplier"`
	DefenseFactor        float64 `yaml:"defense_factor"`
	MechanicChance       float64 `yaml:"mechanic_chance"`
	MechanicDamage       int     `yaml:"mechanic_damage"`
	PhaseHealFraction    float64 `yaml:"phase_heal_fraction"`
	MinEncounters        int     `yaml:"min_encounters"`
	MaxEncounters        int     `yaml:"max_encounters"`
}

type RewardTuning struct {
	XPPerDifficulty      int `yaml:"xp_per_difficulty"`
	SparkPerDifficulty   int `yaml:"spark_per_difficulty"`
	XPPerPuzzle          int `yaml:"xp_per_puzzle"`
	SparkPerPuzzle       int `yaml:"spark_per_puzzle"`
	PartialXPPerFloor    int `yaml:"partial_xp_per_floor"`
	PartialSparkPerFloor int `yaml:"partial_spark_per_floor"`
}

// Defaults are the stock raid constants. Load overlays a YAML file on them.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:         10,
		SnapshotEveryTicks: 3000,
		EventLogLimit:      256,
		Party: PartyTuning{
			StartHealth: 100,
		},
		Combat: CombatTuning{
			MinBaseDamage:        15,
			MaxBaseDamage:        40,
			WeaknessMultiplier:   1.5,
			ResistanceMultiplier: 0.5,
			DefenseFactor:        0.3,
			MechanicChance:       0.25,
			MechanicDamage:       20,
			PhaseHealFraction:    0.05,
			MinEncounters:        1,
			MaxEncounters:        3,
		},
		Rewards: RewardTuning{
			XPPerDifficulty:      100,
			SparkPerDifficulty:   50,
			XPPerPuzzle:          20,
			SparkPerPuzzle:       20,
			PartialXPPerFloor:    20,
			PartialSparkPerFloor: 10,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0:
		return fmt.Errorf("tick_rate_hz must be > 0")
	case t.EventLogLimit <= 0:
		return fmt.Errorf("event_log_limit must be > 0")
	case t.Party.StartHealth <= 0:
		return fmt.Errorf("party.start_health must be > 0")
	case t.Combat.MinBaseDamage < 0 || t.Combat.MaxBaseDamage < t.Combat.MinBaseDamage:
		return fmt.Errorf("combat base damage range %d..%d is invalid", t.Combat.MinBaseDamage, t.Combat.MaxBaseDamage)
	case t.Combat.MechanicChance < 0 || t.Combat.MechanicChance > 1:
		return fmt.Errorf("combat.mechanic_chance must be within [0,1]")
	case t.Combat.PhaseHealFraction < 0 || t.Combat.PhaseHealFraction > 1:
		return fmt.Errorf("combat.phase_heal_fraction must be within [0,1]")
	case t.Combat.MinEncounters < 1 || t.Combat.MaxEncounters < t.Combat.MinEncounters:
		return fmt.Errorf("combat encounter range %d..%d is invalid", t.Combat.MinEncounters, t.Combat.MaxEncounters)
	}
	return nil
}
