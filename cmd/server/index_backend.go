package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"raidforge.ai/internal/persistence/indexdb"
	"raidforge.ai/internal/persistence/snapshot"
	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	raid.ResultRecorder
	Close() error
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, h snapshot.Header)
}

func indexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "raids.sqlite")
}

func openRuntimeIndex(cfg serverConfig, logger *log.Logger) (runtimeIndex, error) {
	switch cfg.IndexBackend {
	case "", "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexPath(cfg.DataDir))
	case "d1":
		if cfg.D1.IngestURL == "" {
			return nil, fmt.Errorf("RAID_INDEX_BACKEND=d1 but RAID_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      cfg.D1.IngestURL,
			Token:         cfg.D1.Token,
			ShardID:       cfg.D1.ShardID,
			BatchSize:     cfg.D1.BatchSize,
			FlushInterval: time.Duration(cfg.D1.FlushMS) * time.Millisecond,
			HTTPTimeout:   cfg.D1.Timeout,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.IndexBackend)
	}
}

// multiResults fans terminal outcomes out to the results log and the index.
type multiResults struct {
	a raid.ResultRecorder
	b raid.ResultRecorder
}

func (m multiResults) RecordCompletion(rec raid.CompletionRecord) {
	if m.a != nil {
		m.a.RecordCompletion(rec)
	}
	if m.b != nil {
		m.b.RecordCompletion(rec)
	}
}

func (m multiResults) RecordFailure(rec raid.FailureRecord) {
	if m.a != nil {
		m.a.RecordFailure(rec)
	}
	if m.b != nil {
		m.b.RecordFailure(rec)
	}
}
