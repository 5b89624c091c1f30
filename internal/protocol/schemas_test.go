package protocol_test

import (
	"encoding/json"
	"testing"

	"raidforge.ai/internal/protocol"
	"raidforge.ai/internal/sim/raid"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	samples := map[string]string{
		protocol.TypeHello: `{
		  "type":"HELLO",
		  "protocol_version":"1.0",
		  "player_id":"p1",
		  "auth":{"token":"secret"}
		}`,
		protocol.TypeWelcome: `{
		  "type":"WELCOME",
		  "protocol_version":"1.0",
		  "session_id":"2b7e1516-28ae-4d2a-a6d2-abf7158809cf",
		  "player_id":"p1",
		  "server_tick":120,
		  "tick_rate_hz":10,
		  "catalogs":{"digest":"aa","dungeons":"bb","bosses":"cc","puzzles":"dd","loot_tables":"ee","encounters":"ff"}
		}`,
		protocol.TypeCall: `{
		  "type":"CALL",
		  "protocol_version":"1.0",
		  "id":"c1",
		  "op":"attack_boss",
		  "args":{"raid_id":"raid_1","element":"fire","seed":7}
		}`,
		protocol.TypeResult: `{
		  "type":"RESULT",
		  "protocol_version":"1.0",
		  "id":"c1",
		  "op":"attack_boss",
		  "tick":121,
		  "ok":false,
		  "code":"E_INVALID_STATE",
		  "reason":"raid raid_1 is in_progress"
		}`,
		protocol.TypeEvent: `{
		  "type":"EVENT",
		  "protocol_version":"1.0",
		  "event":{"seq":3,"tick":121,"raid_id":"raid_1","kind":"boss_attacked","player":"p1","amount":45}
		}`,
	}
	for typ, raw := range samples {
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}
}

func TestSchemas_RejectInvalid(t *testing.T) {
	cases := []struct {
		name string
		typ  string
		raw  string
	}{
		{"hello without player", protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`},
		{"hello bad player id", protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0","player_id":"a b"}`},
		{"call without op", protocol.TypeCall, `{"type":"CALL","protocol_version":"1.0","id":"c1"}`},
		{"call args not object", protocol.TypeCall, `{"type":"CALL","protocol_version":"1.0","id":"c1","op":"get_dungeons","args":[1]}`},
		{"failed result without code", protocol.TypeResult, `{"type":"RESULT","protocol_version":"1.0","id":"c1","op":"x","tick":0,"ok":false}`},
		{"not json", protocol.TypeCall, `{`},
	}
	for _, c := range cases {
		if err := protocol.Validate(c.typ, []byte(c.raw)); err == nil {
			t.Fatalf("%s: expected rejection", c.name)
		}
	}
	if err := protocol.Validate("OBS", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown type rejected")
	}
}

func TestSchemas_EncodedMessagesConform(t *testing.T) {
	ev := raid.Event{Seq: 1, Tick: 5, RaidID: "raid_1", Kind: raid.EventCreated, Player: "p1"}
	msgs := map[string]any{
		protocol.TypeResult: protocol.ResultMsg{
			Type: protocol.TypeResult, ProtocolVersion: protocol.Version,
			ID: "c9", Op: protocol.OpDungeons, Tick: 5, OK: true, Data: []string{"crypt"},
		},
		protocol.TypeEvent: protocol.EventMsg{
			Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Event: ev,
		},
		protocol.TypeWelcome: protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version,
			SessionID: "s1", PlayerID: "p1", TickRateHz: 10,
		},
	}
	for typ, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal %s: %v", typ, err)
		}
		if err := protocol.Validate(typ, b); err != nil {
			t.Fatalf("%s does not match its schema: %v\n%s", typ, err, b)
		}
	}
}
