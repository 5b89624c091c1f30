package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"raidforge.ai/internal/persistence/snapshot"
	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/sim/tuning"
)

// SQLiteIndex is an append-only read model of raid outcomes. Writes are
// queued and applied by one goroutine in batched transactions; when the
// queue is full the write is dropped and counted. The in-memory store and
// the JSONL logs stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropCompletion atomic.Uint64
	dropFailure    atomic.Uint64
	dropSnapshot   atomic.Uint64
}

type reqKind int

const (
	reqCompletion reqKind = iota + 1
	reqFailure
	reqSnapshot
)

type req struct {
	kind reqKind

	completion raid.CompletionRecord
	failure    raid.FailureRecord
	snapshot   snapshotRow
}

type snapshotRow struct {
	Tick        uint64
	Path        string
	Raids       int
	ActiveRaids int
	Cooldowns   int
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	DropCompletionTotal uint64 `json:"drop_completion_total"`
	DropFailureTotal    uint64 `json:"drop_failure_total"`
	DropSnapshotTotal   uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS completions (
			raid_id TEXT PRIMARY KEY,
			dungeon_id TEXT NOT NULL,
			party_json TEXT NOT NULL,
			start_tick INTEGER NOT NULL,
			end_tick INTEGER NOT NULL,
			duration_ticks INTEGER NOT NULL,
			puzzles_solved INTEGER NOT NULL,
			xp INTEGER NOT NULL,
			spark INTEGER NOT NULL,
			loot_mode TEXT NOT NULL,
			loot_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_completions_dungeon_duration ON completions(dungeon_id, duration_ticks, end_tick);`,
		`CREATE TABLE IF NOT EXISTS history (
			player_id TEXT NOT NULL,
			raid_id TEXT NOT NULL,
			dungeon_id TEXT NOT NULL,
			completed_tick INTEGER NOT NULL,
			duration_ticks INTEGER NOT NULL,
			PRIMARY KEY (player_id, raid_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_player_tick ON history(player_id, completed_tick);`,
		`CREATE TABLE IF NOT EXISTS failures (
			raid_id TEXT PRIMARY KEY,
			dungeon_id TEXT NOT NULL,
			party_json TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL,
			tick INTEGER NOT NULL,
			floors_cleared INTEGER NOT NULL,
			xp INTEGER NOT NULL,
			spark INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			raids INTEGER NOT NULL,
			active_raids INTEGER NOT NULL,
			cooldowns INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropCompletionTotal: s.dropCompletion.Load(),
		DropFailureTotal:    s.dropFailure.Load(),
		DropSnapshotTotal:   s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) RecordCompletion(rec raid.CompletionRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqCompletion, completion: rec}:
	default:
		s.dropCompletion.Add(1)
	}
}

func (s *SQLiteIndex) RecordFailure(rec raid.FailureRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqFailure, failure: rec}:
	default:
		s.dropFailure.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, h snapshot.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:        h.Tick,
		Path:        path,
		Raids:       h.Raids,
		ActiveRaids: h.ActiveRaids,
		Cooldowns:   h.Cooldowns,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

// catalogRows renders every content table, plus the tuning actually in use,
// as canonical JSON keyed by table name.
func catalogRows(cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	add := func(name, digest string, v any) {
		if b, err := json.Marshal(v); err == nil && len(b) > 0 {
			rows = append(rows, catalogRow{name: name, digest: digest, json: b})
		}
	}
	add("dungeons", cats.Dungeons.Digest, cats.DungeonList())
	add("bosses", cats.Bosses.Digest, cats.BossList())
	add("encounters", cats.Encounters.Digest, cats.EncounterList())

	puzzles := make([]catalogs.PuzzleTypeDef, 0, len(cats.Puzzles.Order))
	for _, id := range cats.Puzzles.Order {
		puzzles = append(puzzles, cats.Puzzles.ByID[id])
	}
	add("puzzles", cats.Puzzles.Digest, puzzles)

	tables := make([]catalogs.LootTableDef, 0, len(cats.LootTables.ByID))
	for _, lt := range cats.LootTables.ByID {
		tables = append(tables, lt)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })
	add("loot_tables", cats.LootTables.Digest, tables)

	if b, err := json.Marshal(tune); err == nil {
		sum := sha256.Sum256(b)
		rows = append(rows, catalogRow{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}
	return rows
}

// UpsertCatalogs records the content and tuning the server booted with.
// It runs synchronously, before traffic.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('catalogs_digest',?)`, cats.Digest()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range catalogRows(cats, tune) {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertCompletion, _ := s.db.Prepare(`INSERT OR REPLACE INTO completions(raid_id,dungeon_id,party_json,start_tick,end_tick,duration_ticks,puzzles_solved,xp,spark,loot_mode,loot_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertHistory, _ := s.db.Prepare(`INSERT OR REPLACE INTO history(player_id,raid_id,dungeon_id,completed_tick,duration_ticks) VALUES(?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT OR REPLACE INTO failures(raid_id,dungeon_id,party_json,status,reason,tick,floors_cleared,xp,spark) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,raids,active_raids,cooldowns) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertCompletion, insertHistory, insertFailure, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqCompletion:
			c := r.completion
			party, _ := json.Marshal(c.Party)
			loot, _ := json.Marshal(c.Loot)
			if !exec(insertCompletion,
				c.RaidID, c.DungeonID, string(party),
				int64(c.StartTick), int64(c.EndTick), int64(c.DurationTicks),
				c.PuzzlesSolved, c.Reward.XP, c.Reward.Spark,
				string(c.LootMode), string(loot),
			) {
				continue
			}
			for _, p := range c.Party {
				if !exec(insertHistory, p, c.RaidID, c.DungeonID, int64(c.EndTick), int64(c.DurationTicks)) {
					break
				}
			}

		case reqFailure:
			f := r.failure
			party, _ := json.Marshal(f.Party)
			if !exec(insertFailure,
				f.RaidID, f.DungeonID, string(party), string(f.Status), f.Reason,
				int64(f.Tick), f.FloorsCleared, f.Reward.XP, f.Reward.Spark,
			) {
				continue
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Raids, sn.ActiveRaids, sn.Cooldowns) {
				continue
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}
