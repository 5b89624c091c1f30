package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"raidforge.ai/internal/sim/raid"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		players    = flag.String("players", "alice,bob", "comma-separated party; the first player leads")
		dungeon    = flag.String("dungeon", "crystal_caverns", "dungeon id")
		seed       = flag.Uint("seed", 42, "seed for start, attacks and loot")
		loot       = flag.String("loot", string(raid.LootRoundRobin), "loot mode: round_robin|manual|roll")
		element    = flag.String("element", "", "attack element (optional)")
		maxAttacks = flag.Int("max_attacks", 200, "attacks before forcing completion")
		token      = flag.String("token", "", "auth token sent in HELLO")
		timeout    = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var party []*client
	for _, p := range strings.Split(*players, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		c, err := dial(ctx, *url, p, *token, log.New(os.Stdout, fmt.Sprintf("[bot %s] ", p), log.LstdFlags|log.Lmicroseconds))
		if err != nil {
			logger.Fatalf("%s: %v", p, err)
		}
		defer c.Close()
		party = append(party, c)
	}
	if len(party) == 0 {
		logger.Fatalf("no players")
	}
	party[0].onEvent = func(ev raid.Event) {
		logger.Printf("EVENT %s #%d %s player=%s amount=%d", ev.RaidID, ev.Seq, ev.Kind, ev.Player, ev.Amount)
	}

	rep, err := playRaid(ctx, party[0], party[1:], playOptions{
		Dungeon:    *dungeon,
		Seed:       uint32(*seed),
		LootMode:   raid.LootMode(*loot),
		MaxAttacks: *maxAttacks,
		Element:    *element,
	})
	if err != nil {
		logger.Fatalf("raid %s: %v", rep.RaidID, err)
	}
	for player, items := range rep.Completion.Loot {
		logger.Printf("loot %s: %d item(s)", player, len(items))
	}
}
