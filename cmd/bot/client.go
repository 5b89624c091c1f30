package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
)

// client is one websocket session. Calls are serialized; EVENT frames that
// arrive while waiting for a RESULT go to onEvent.
type client struct {
	player  string
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.WelcomeMsg
	onEvent func(raid.Event)

	mu     sync.Mutex
	nextID int
}

type inbound struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Code   string          `json:"code"`
	Reason string          `json:"reason"`
	Tick   uint64          `json:"tick"`
	Data   json.RawMessage `json:"data"`
	Event  raid.Event      `json:"event"`
}

// callFailed is a RESULT with ok=false.
type callFailed struct {
	Op     string
	Code   string
	Reason string
}

func (e *callFailed) Error() string { return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Reason) }

func dial(ctx context.Context, url, player, token string, logger *log.Logger) (*client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerID: player}
	if token != "" {
		hello.Auth = &protocol.HelloAuth{Token: token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	if w.Type != protocol.TypeWelcome {
		conn.Close()
		return nil, fmt.Errorf("expected WELCOME, got %q", w.Type)
	}
	logger.Printf("WELCOME player=%s session=%s tick=%d rate=%d catalogs=%s", w.PlayerID, w.SessionID, w.ServerTick, w.TickRateHz, w.Catalogs.Digest)
	return &client{player: player, conn: conn, log: logger, welcome: w}, nil
}

func (c *client) Close() error { return c.conn.Close() }

// call sends one CALL and decodes the RESULT data into out (which may be nil).
func (c *client) call(ctx context.Context, op string, args, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.player + "-" + strconv.Itoa(c.nextID)
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	msg := protocol.CallMsg{Type: protocol.TypeCall, ProtocolVersion: protocol.Version, ID: id, Op: op, Args: raw}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var in inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			return fmt.Errorf("%s: read: %w", op, err)
		}
		switch in.Type {
		case protocol.TypeEvent:
			if c.onEvent != nil {
				c.onEvent(in.Event)
			}
			continue
		case protocol.TypeResult:
		default:
			continue
		}
		if in.ID != id {
			continue
		}
		if !in.OK {
			return &callFailed{Op: op, Code: in.Code, Reason: in.Reason}
		}
		if out == nil || len(in.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(in.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", op, err)
		}
		return nil
	}
}
