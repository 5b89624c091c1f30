package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"raidforge.ai/internal/sim/raid"
)

// Reader queries an index written by SQLiteIndex. It opens its own
// connection and never writes.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Leaderboard orders completions of dungeonID by duration, earliest finish
// first among equal durations.
func (r *Reader) Leaderboard(ctx context.Context, dungeonID string, limit int) ([]raid.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT raid_id, party_json, duration_ticks, end_tick FROM completions
		 WHERE dungeon_id=? ORDER BY duration_ticks ASC, end_tick ASC, raid_id ASC LIMIT ?`,
		dungeonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []raid.LeaderboardEntry{}
	for rows.Next() {
		var (
			e     raid.LeaderboardEntry
			party string
			dur   int64
			end   int64
		)
		if err := rows.Scan(&e.RaidID, &party, &dur, &end); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(party), &e.Party); err != nil {
			return nil, fmt.Errorf("completion %s party: %w", e.RaidID, err)
		}
		e.DurationTicks, e.CompletedTick = uint64(dur), uint64(end)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Reader) History(ctx context.Context, playerID string) ([]raid.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT raid_id, dungeon_id, completed_tick, duration_ticks FROM history
		 WHERE player_id=? ORDER BY completed_tick ASC, raid_id ASC`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []raid.HistoryEntry{}
	for rows.Next() {
		var (
			e         raid.HistoryEntry
			tick, dur int64
		)
		if err := rows.Scan(&e.RaidID, &e.DungeonID, &tick, &dur); err != nil {
			return nil, err
		}
		e.CompletedTick, e.DurationTicks = uint64(tick), uint64(dur)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Completions returns the most recent completions, newest first.
func (r *Reader) Completions(ctx context.Context, limit int) ([]raid.CompletionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT raid_id, dungeon_id, party_json, start_tick, end_tick, duration_ticks,
		        puzzles_solved, xp, spark, loot_mode, loot_json
		 FROM completions ORDER BY end_tick DESC, raid_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []raid.CompletionRecord{}
	for rows.Next() {
		var (
			c                 raid.CompletionRecord
			party, mode, loot string
			start, end, dur   int64
		)
		if err := rows.Scan(&c.RaidID, &c.DungeonID, &party, &start, &end, &dur,
			&c.PuzzlesSolved, &c.Reward.XP, &c.Reward.Spark, &mode, &loot); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(party), &c.Party); err != nil {
			return nil, fmt.Errorf("completion %s party: %w", c.RaidID, err)
		}
		if err := json.Unmarshal([]byte(loot), &c.Loot); err != nil {
			return nil, fmt.Errorf("completion %s loot: %w", c.RaidID, err)
		}
		c.StartTick, c.EndTick, c.DurationTicks = uint64(start), uint64(end), uint64(dur)
		c.LootMode = raid.LootMode(mode)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) Failures(ctx context.Context, limit int) ([]raid.FailureRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT raid_id, dungeon_id, party_json, status, reason, tick, floors_cleared, xp, spark
		 FROM failures ORDER BY tick DESC, raid_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []raid.FailureRecord{}
	for rows.Next() {
		var (
			f             raid.FailureRecord
			party, status string
			tick          int64
		)
		if err := rows.Scan(&f.RaidID, &f.DungeonID, &party, &status, &f.Reason, &tick,
			&f.FloorsCleared, &f.Reward.XP, &f.Reward.Spark); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(party), &f.Party); err != nil {
			return nil, fmt.Errorf("failure %s party: %w", f.RaidID, err)
		}
		f.Status, f.Tick = raid.Status(status), uint64(tick)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Meta reads one value from the meta table. ok is false when the key is unset.
func (r *Reader) Meta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SnapshotRow is one row of the snapshots table.
type SnapshotRow struct {
	Tick        uint64 `json:"tick"`
	Path        string `json:"path"`
	Raids       int    `json:"raids"`
	ActiveRaids int    `json:"active_raids"`
	Cooldowns   int    `json:"cooldowns"`
}

// Snapshots lists recorded snapshots, newest first.
func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick,path,raids,active_raids,cooldowns FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &s.Path, &s.Raids, &s.ActiveRaids, &s.Cooldowns); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}
