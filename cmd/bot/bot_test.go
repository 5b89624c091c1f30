package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/catalogs"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/sim/tuning"
	"raidforge.ai/internal/transport/ws"
)

type fixedClock struct{}

func (fixedClock) Tick() uint64 { return 100 }
func (fixedClock) RateHz() int  { return 10 }

func startServer(t *testing.T) string {
	t.Helper()
	cats, err := catalogs.Load("../../configs/content")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	hub := ws.NewHub()
	e := raid.NewEngine(cats, tuning.Defaults(), nil, raid.WithEventLogger(hub))
	ts := httptest.NewServer(ws.NewServer(e, fixedClock{}, nil, ws.WithHub(hub)).Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestPlayRaid_CrystalCaverns(t *testing.T) {
	url := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	quiet := log.New(io.Discard, "", 0)

	alice, err := dial(ctx, url, "alice", "", quiet)
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	defer alice.Close()
	bob, err := dial(ctx, url, "bob", "", quiet)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	defer bob.Close()

	var events []raid.Event
	alice.onEvent = func(ev raid.Event) { events = append(events, ev) }

	rep, err := playRaid(ctx, alice, []*client{bob}, playOptions{
		Dungeon:    "crystal_caverns",
		Seed:       42,
		LootMode:   raid.LootRoundRobin,
		MaxAttacks: 3,
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if rep.Floors != 5 {
		t.Fatalf("floors=%d want 5", rep.Floors)
	}
	if rep.Boss.Name != "The Crystal King" || rep.Boss.MaxHealth != 1600 {
		t.Fatalf("boss: %+v", rep.Boss)
	}
	if rep.Attacks == 0 || rep.Attacks > 3 || (!rep.Defeated && rep.Attacks != 3) {
		t.Fatalf("attacks=%d defeated=%v", rep.Attacks, rep.Defeated)
	}
	if rep.Completion.RaidID != rep.RaidID || rep.Completion.LootMode != raid.LootRoundRobin {
		t.Fatalf("completion: %+v", rep.Completion)
	}
	if len(events) == 0 {
		t.Fatalf("leader saw no EVENT pushes")
	}
}

func TestClientCall_ReportsFailureCode(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	c, err := dial(ctx, url, "carol", "", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	err = c.call(ctx, protocol.OpJoin, protocol.RaidArgs{RaidID: "raid_404"}, nil)
	var cf *callFailed
	if !errors.As(err, &cf) || cf.Code != protocol.ErrNotFound {
		t.Fatalf("join missing raid: %v", err)
	}

	var dungeons []catalogs.DungeonDef
	if err := c.call(ctx, protocol.OpDungeons, struct{}{}, &dungeons); err != nil || len(dungeons) != 4 {
		t.Fatalf("dungeons: n=%d err=%v", len(dungeons), err)
	}
}
