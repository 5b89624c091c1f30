package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
)

type session struct {
	id     string
	player string
	out    chan []byte
}

// push queues b without blocking. A full queue drops the message.
func (s *session) push(b []byte) bool {
	select {
	case s.out <- b:
		return true
	default:
		return false
	}
}

// Hub pushes raid events to the sessions subscribed to each raid. It is
// installed as an engine EventLogger.
type Hub struct {
	mu     sync.RWMutex
	byRaid map[string]map[*session]struct{}
	bySess map[*session]map[string]struct{}

	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		byRaid: map[string]map[*session]struct{}{},
		bySess: map[*session]map[string]struct{}{},
	}
}

func (h *Hub) subscribe(s *session, raidID string) {
	if raidID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.byRaid[raidID]
	if subs == nil {
		subs = map[*session]struct{}{}
		h.byRaid[raidID] = subs
	}
	subs[s] = struct{}{}
	raids := h.bySess[s]
	if raids == nil {
		raids = map[string]struct{}{}
		h.bySess[s] = raids
	}
	raids[raidID] = struct{}{}
}

func (h *Hub) drop(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for raidID := range h.bySess[s] {
		subs := h.byRaid[raidID]
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.byRaid, raidID)
		}
	}
	delete(h.bySess, s)
}

func (h *Hub) WriteEvent(ev raid.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.byRaid[ev.RaidID]
	if len(subs) == 0 {
		return nil
	}
	b, err := json.Marshal(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           ev,
	})
	if err != nil {
		return err
	}
	for s := range subs {
		if !s.push(b) {
			h.dropped.Add(1)
		}
	}
	return nil
}

// Dropped counts EVENT messages discarded because a session queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns how many sessions follow raidID.
func (h *Hub) Subscribers(raidID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byRaid[raidID])
}
