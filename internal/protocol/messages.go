package protocol

import (
	"encoding/json"

	"raidforge.ai/internal/sim/raid"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerID        string     `json:"player_id"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	PlayerID        string         `json:"player_id"`
	ServerTick      uint64         `json:"server_tick"`
	TickRateHz      int            `json:"tick_rate_hz"`
	ActiveRaidID    string         `json:"active_raid_id,omitempty"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	Digest     string `json:"digest"`
	Dungeons   string `json:"dungeons"`
	Bosses     string `json:"bosses"`
	Puzzles    string `json:"puzzles"`
	LootTables string `json:"loot_tables"`
	Encounters string `json:"encounters"`
}

// CALL (client -> server). ID is echoed on the matching RESULT.
type CallMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ID              string          `json:"id"`
	Op              string          `json:"op"`
	Args            json.RawMessage `json:"args,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Op              string `json:"op"`
	Tick            uint64 `json:"tick"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Data            any    `json:"data,omitempty"`
}

// EVENT (server -> client), pushed for raids the session has touched.
type EventMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Event           raid.Event `json:"event"`
}

// Operations accepted in CALL.op.
const (
	OpCreate         = "create_raid"
	OpJoin           = "join_raid"
	OpLeave          = "leave_raid"
	OpStart          = "start_raid"
	OpAdvanceFloor   = "advance_floor"
	OpSolvePuzzle    = "solve_puzzle"
	OpStartBoss      = "start_boss_fight"
	OpAttackBoss     = "attack_boss"
	OpBossMechanic   = "process_boss_mechanic"
	OpAdvancePhase   = "advance_boss_phase"
	OpCompleteBoss   = "complete_boss"
	OpFailRaid       = "fail_raid"
	OpDistributeItem = "distribute_item"
	OpRollForLoot    = "roll_for_loot"

	OpRaidState      = "get_raid_state"
	OpAvailableRaids = "get_available_raids"
	OpPlayerCooldown = "get_player_cooldown"
	OpRaidHistory    = "get_raid_history"
	OpLeaderboard    = "get_leaderboard"
	OpDungeons       = "get_dungeons"
	OpBosses         = "get_bosses"
	OpPartyStats     = "get_party_stats"
)

type CreateArgs struct {
	DungeonID string `json:"dungeon_id"`
}

// RaidArgs is the argument shape of every op that only names a raid.
type RaidArgs struct {
	RaidID string `json:"raid_id"`
}

type StartArgs struct {
	RaidID string  `json:"raid_id"`
	Seed   *uint32 `json:"seed,omitempty"`
}

type SolvePuzzleArgs struct {
	RaidID      string            `json:"raid_id"`
	PuzzleID    string            `json:"puzzle_id"`
	Submissions []raid.Submission `json:"submissions"`
}

type AttackArgs struct {
	RaidID  string  `json:"raid_id"`
	Element string  `json:"element,omitempty"`
	Seed    *uint32 `json:"seed,omitempty"`
}

type MechanicArgs struct {
	RaidID     string                  `json:"raid_id"`
	MechanicID string                  `json:"mechanic_id"`
	Responses  []raid.MechanicResponse `json:"responses"`
}

type CompleteArgs struct {
	RaidID   string        `json:"raid_id"`
	Seed     *uint32       `json:"seed,omitempty"`
	LootMode raid.LootMode `json:"loot_mode,omitempty"`
}

type FailArgs struct {
	RaidID string `json:"raid_id"`
	Reason string `json:"reason,omitempty"`
}

type DistributeArgs struct {
	RaidID   string `json:"raid_id"`
	ItemID   string `json:"item_id"`
	PlayerID string `json:"player_id"`
}

type RollArgs struct {
	RaidID string  `json:"raid_id"`
	ItemID string  `json:"item_id"`
	Seed   *uint32 `json:"seed,omitempty"`
}

type AvailableArgs struct {
	DungeonID string `json:"dungeon_id,omitempty"`
}

// PlayerArgs defaults PlayerID to the session's player when empty.
type PlayerArgs struct {
	PlayerID  string `json:"player_id,omitempty"`
	DungeonID string `json:"dungeon_id,omitempty"`
}

type LeaderboardArgs struct {
	DungeonID string `json:"dungeon_id"`
	Limit     int    `json:"limit,omitempty"`
}
