package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"raidforge.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/raids.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	dungeon := fs.String("dungeon", "", "dungeon id (leaderboard)")
	player := fs.String("player", "", "player id (history)")
	key := fs.String("key", "", "meta key (meta)")
	_ = fs.Parse(args)

	q := "completions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "raids.sqlite")
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out any
	switch q {
	case "leaderboard":
		if *dungeon == "" {
			fmt.Fprintln(os.Stderr, "missing -dungeon")
			os.Exit(2)
		}
		out, err = r.Leaderboard(ctx, *dungeon, *limit)
	case "history":
		if *player == "" {
			fmt.Fprintln(os.Stderr, "missing -player")
			os.Exit(2)
		}
		out, err = r.History(ctx, *player)
	case "completions":
		out, err = r.Completions(ctx, *limit)
	case "failures":
		out, err = r.Failures(ctx, *limit)
	case "snapshots":
		out, err = r.Snapshots(ctx, *limit)
	case "meta":
		if *key == "" {
			fmt.Fprintln(os.Stderr, "missing -key")
			os.Exit(2)
		}
		v, ok, merr := r.Meta(ctx, *key)
		out, err = map[string]any{"key": *key, "value": v, "set": ok}, merr
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	printRows(out)
}

// printRows prints slices one JSON object per line.
func printRows(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		os.Exit(1)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(b, &rows); err != nil {
		printJSON(v)
		return
	}
	for _, row := range rows {
		printJSON(row)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
