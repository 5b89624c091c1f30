package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	sessionQueue     = 64
)

type Server struct {
	engine *raid.Engine
	clock  Ticker
	hub    *Hub
	log    *log.Logger
	token  string

	upgrader websocket.Upgrader
}

type Option func(*Server)

// WithAuthToken requires HELLO.auth.token to equal token.
func WithAuthToken(token string) Option { return func(s *Server) { s.token = token } }

// WithHub shares an existing hub, typically one already installed as the
// engine's event sink.
func WithHub(h *Hub) Option { return func(s *Server) { s.hub = h } }

func NewServer(e *raid.Engine, clock Ticker, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s := &Server{
		engine: e,
		clock:  clock,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer s.hub.drop(sess)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			res, ok := s.handleCall(sess, msg)
			if !ok {
				continue
			}
			b, err := json.Marshal(res)
			if err != nil {
				s.log.Printf("session %s: encode result: %v", sess.id, err)
				continue
			}
			select {
			case sess.out <- b:
			case <-ctx.Done():
			}
		}
		s.log.Printf("session %s closed player=%s", sess.id, sess.player)
	}
}

// handleCall validates one inbound frame and dispatches it. Frames that are
// not CALLs are ignored.
func (s *Server) handleCall(sess *session, msg []byte) (protocol.ResultMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCall {
		return protocol.ResultMsg{}, false
	}
	var call protocol.CallMsg
	if err := json.Unmarshal(msg, &call); err != nil {
		return protoError(call, "malformed CALL: "+err.Error()), true
	}
	if call.ProtocolVersion != protocol.Version {
		return protoError(call, "bad protocol_version"), true
	}
	if err := protocol.Validate(protocol.TypeCall, msg); err != nil {
		return protoError(call, err.Error()), true
	}
	res, raidID := s.Dispatch(sess.player, call)
	s.hub.subscribe(sess, raidID)
	return res, true
}

func protoError(call protocol.CallMsg, reason string) protocol.ResultMsg {
	return protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ID:              call.ID,
		Op:              call.Op,
		Code:            protocol.ErrProtoBadRequest,
		Reason:          reason,
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closePolicy(conn, "bad HELLO")
		return nil
	}
	if s.token != "" {
		got := ""
		if hello.Auth != nil {
			got = strings.TrimSpace(hello.Auth.Token)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			closePolicy(conn, "bad token")
			return nil
		}
	}

	sess := &session{
		id:     uuid.NewString(),
		player: hello.PlayerID,
		out:    make(chan []byte, sessionQueue),
	}
	cats := s.engine.Catalogs()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.id,
		PlayerID:        sess.player,
		ServerTick:      s.clock.Tick(),
		TickRateHz:      s.clock.RateHz(),
		Catalogs: protocol.CatalogDigests{
			Digest:     cats.Digest(),
			Dungeons:   cats.Dungeons.Digest,
			Bosses:     cats.Bosses.Digest,
			Puzzles:    cats.Puzzles.Digest,
			LootTables: cats.LootTables.Digest,
			Encounters: cats.Encounters.Digest,
		},
	}
	if id, ok := s.engine.Store().ActiveRaid(sess.player); ok {
		welcome.ActiveRaidID = id
	}

	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}
	s.hub.subscribe(sess, welcome.ActiveRaidID)
	s.log.Printf("session %s open player=%s active=%s", sess.id, sess.player, welcome.ActiveRaidID)
	return sess
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
