package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"raidforge.ai/internal/persistence/snapshot"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/transport/ws"
)

type snapshotter struct {
	store       *raid.Store
	clock       ws.Ticker
	dir         string
	keep        int
	catalogsSHA string
	idx         runtimeIndex
	log         *log.Logger

	mu sync.Mutex
}

// Take writes one snapshot of the store at the current tick. Two snapshots
// at the same tick write the same file.
func (s *snapshotter) Take() (string, snapshot.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tick := s.clock.Tick()
	snap := snapshot.New(tick, s.store.Export(), s.catalogsSHA)
	path := snapshot.PathFor(s.dir, tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", snap.Header, fmt.Errorf("write snapshot: %w", err)
	}
	if s.idx != nil {
		s.idx.RecordSnapshot(path, snap.Header)
	}
	if err := snapshot.Prune(s.dir, s.keep); err != nil {
		s.log.Printf("prune snapshots: %v", err)
	}
	return path, snap.Header, nil
}

// Run snapshots every interval until ctx ends, then takes a final one.
func (s *snapshotter) Run(ctx context.Context, every time.Duration) error {
	if every > 0 {
		t := time.NewTicker(every)
		defer t.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-t.C:
				if _, _, err := s.Take(); err != nil {
					s.log.Printf("%v", err)
				}
			}
		}
	} else {
		<-ctx.Done()
	}
	path, h, err := s.Take()
	if err != nil {
		return err
	}
	s.log.Printf("final snapshot=%s tick=%d raids=%d", path, h.Tick, h.Raids)
	return nil
}

// restoreLatest imports the newest snapshot in dir into store and returns
// its tick. ok is false when there is nothing to restore.
func restoreLatest(store *raid.Store, dir, catalogsSHA string, logger *log.Logger) (tick uint64, ok bool, err error) {
	path, _, found, err := snapshot.Latest(dir)
	if err != nil || !found {
		return 0, false, err
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return 0, false, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	if snap.Header.CatalogsSHA != "" && snap.Header.CatalogsSHA != catalogsSHA {
		logger.Printf("snapshot %s was taken with different content catalogs (%s != %s)", path, snap.Header.CatalogsSHA, catalogsSHA)
	}
	if err := store.Import(snap.State); err != nil {
		return 0, false, fmt.Errorf("import snapshot %s: %w", path, err)
	}
	logger.Printf("resumed from snapshot=%s tick=%d raids=%d active=%d", path, snap.Header.Tick, snap.Header.Raids, snap.Header.ActiveRaids)
	return snap.Header.Tick, true, nil
}
