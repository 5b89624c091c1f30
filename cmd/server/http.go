package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"raidforge.ai/internal/persistence/indexdb"
	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
	"raidforge.ai/internal/transport/ws"
)

// queryAPI serves the read-only engine queries over plain HTTP.
type queryAPI struct {
	engine *raid.Engine
	clock  ws.Ticker
}

func (q *queryAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/dungeons", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, q.engine.Dungeons())
	})
	mux.HandleFunc("GET /v1/bosses", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, q.engine.Bosses())
	})
	mux.HandleFunc("GET /v1/raids", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, q.engine.AvailableRaids(r.URL.Query().Get("dungeon")))
	})
	mux.HandleFunc("GET /v1/raids/{id}", func(rw http.ResponseWriter, r *http.Request) {
		st := q.engine.RaidState(r.PathValue("id"))
		if st == nil {
			writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "raid "+r.PathValue("id")+" not found")
			return
		}
		writeJSON(rw, http.StatusOK, st)
	})
	mux.HandleFunc("GET /v1/raids/{id}/stats", func(rw http.ResponseWriter, r *http.Request) {
		st, ok := q.engine.PartyStats(r.PathValue("id"))
		if !ok {
			writeError(rw, http.StatusNotFound, protocol.ErrNotFound, "raid "+r.PathValue("id")+" not found")
			return
		}
		writeJSON(rw, http.StatusOK, st)
	})
	mux.HandleFunc("GET /v1/leaderboard/{dungeon}", func(rw http.ResponseWriter, r *http.Request) {
		limit, err := intParam(r, "limit", 10)
		if err != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, err.Error())
			return
		}
		writeJSON(rw, http.StatusOK, q.engine.Leaderboard(r.PathValue("dungeon"), limit))
	})
	mux.HandleFunc("GET /v1/players/{id}/history", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, q.engine.RaidHistory(r.PathValue("id")))
	})
	mux.HandleFunc("GET /v1/players/{id}/cooldown", func(rw http.ResponseWriter, r *http.Request) {
		dungeon := r.URL.Query().Get("dungeon")
		if dungeon == "" {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadRequest, "dungeon is required")
			return
		}
		writeJSON(rw, http.StatusOK, q.engine.PlayerCooldown(r.PathValue("id"), dungeon, q.clock.Tick()))
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, reason string) {
	writeJSON(rw, status, map[string]any{"ok": false, "code": code, "reason": reason})
}

// metricsSource is what /metrics reports on.
type metricsSource struct {
	engine *raid.Engine
	clock  ws.Ticker
	hub    *ws.Hub
	idx    runtimeIndex
}

var statusOrder = []raid.Status{
	raid.StatusForming, raid.StatusInProgress, raid.StatusBossFight,
	raid.StatusCompleted, raid.StatusFailed, raid.StatusAbandoned,
}

func (m metricsSource) handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP raidforge_server_tick Current server tick.\n")
		fmt.Fprintf(rw, "# TYPE raidforge_server_tick gauge\n")
		fmt.Fprintf(rw, "raidforge_server_tick %d\n", m.clock.Tick())

		counts := m.engine.Store().StatusCounts()
		fmt.Fprintf(rw, "# HELP raidforge_raids Raids held in the store by status.\n")
		fmt.Fprintf(rw, "# TYPE raidforge_raids gauge\n")
		for _, st := range statusOrder {
			fmt.Fprintf(rw, "raidforge_raids{status=%q} %d\n", st, counts[st])
		}

		if m.hub != nil {
			fmt.Fprintf(rw, "# HELP raidforge_ws_events_dropped_total EVENT pushes dropped on full session queues.\n")
			fmt.Fprintf(rw, "# TYPE raidforge_ws_events_dropped_total counter\n")
			fmt.Fprintf(rw, "raidforge_ws_events_dropped_total %d\n", m.hub.Dropped())
		}
		writeIndexMetrics(rw, m.idx)
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx runtimeIndex) {
	type row struct {
		name  string
		value any
	}
	var rows []row
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := v.Stats()
		rows = []row{
			{"queue_depth", s.QueueDepth},
			{"queue_capacity", s.QueueCapacity},
			{"drop_completion_total", s.DropCompletionTotal},
			{"drop_failure_total", s.DropFailureTotal},
			{"drop_snapshot_total", s.DropSnapshotTotal},
		}
	case *indexdb.D1Index:
		s := v.Stats()
		rows = []row{
			{"queue_depth", s.QueueDepth},
			{"queue_capacity", s.QueueCapacity},
			{"queue_dropped_total", s.QueueDroppedTotal},
			{"flush_fail_total", s.FlushFailTotal},
			{"retain_drop_total", s.RetainDropTotal},
		}
	default:
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	fmt.Fprintf(rw, "# HELP raidforge_index Index backend queue statistics.\n")
	fmt.Fprintf(rw, "# TYPE raidforge_index gauge\n")
	for _, r := range rows {
		fmt.Fprintf(rw, "raidforge_index{stat=%q} %v\n", r.name, r.value)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// loopbackOnly rejects requests that do not originate from this host.
func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}
