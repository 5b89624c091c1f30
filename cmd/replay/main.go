package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "raidforge.ai/internal/persistence/log"
	"raidforge.ai/internal/persistence/snapshot"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		raidID   = flag.String("raid", "", "only summarize this raid (optional)")
		snapPath = flag.String("snapshot", "", "snapshot to cross-check replayed statuses against (optional)")
		verbose  = flag.Bool("v", false, "print every event of the selected raids")
	)
	flag.Parse()

	rep := newReplay(*raidID)
	if *verbose {
		rep.onEvent = func(line string) { fmt.Println(line) }
	}
	n, err := rep.readDir(filepath.Join(*dataDir, "events"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if n == 0 {
		fmt.Fprintln(os.Stderr, "no event files under", filepath.Join(*dataDir, "events"))
		os.Exit(2)
	}
	for _, s := range rep.summaries() {
		fmt.Println(s.String())
	}
	for _, gap := range rep.gaps {
		fmt.Println("gap:", gap)
	}

	results, err := persistlog.Files(filepath.Join(*dataDir, "results"), "results")
	if err == nil && len(results) > 0 {
		var completions, failures int
		for _, f := range results {
			err := persistlog.ReadJSONL(f, func(e persistlog.ResultEntry) error {
				switch {
				case e.Completion != nil:
					completions++
				case e.Failure != nil:
					failures++
				}
				return nil
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "read", f+":", err)
				os.Exit(1)
			}
		}
		fmt.Printf("results: completions=%d failures=%d\n", completions, failures)
	}

	if *snapPath == "" {
		return
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d tick=%d raids=%d active=%d cooldowns=%d\n",
		snap.Header.Version, snap.Header.Tick, snap.Header.Raids, snap.Header.ActiveRaids, snap.Header.Cooldowns)
	mismatches := rep.crossCheck(snap.State.Raids)
	for _, m := range mismatches {
		fmt.Println("mismatch:", m)
	}
	if len(mismatches) > 0 {
		os.Exit(1)
	}
}
