package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"addonhost/internal/protocol"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// validateGo round-trips v through JSON so the schema sees what goes on the wire.
func validateGo(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("validate %s: %v", b, err)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	var sub any
	_ = json.Unmarshal([]byte(`{
	  "type":"SUBSCRIBE",
	  "protocol_version":"1.0",
	  "client_name":"overlay",
	  "events":true
	}`), &sub)
	if err := compile(t, "subscribe.schema.json").Validate(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	validateGo(t, compile(t, "welcome.schema.json"), protocol.WelcomeMsg{
		Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "s-1",
	})

	validateGo(t, compile(t, "pets.schema.json"), protocol.PetsMsg{
		Type:            protocol.TypePets,
		ProtocolVersion: protocol.Version,
		Tick:            42,
		OwnerID:         7,
		PrimaryID:       8,
		Pets: []protocol.PetView{
			{ID: 9, Name: "Gobn", OwnerTag: 13, Class: "Magician", Resolved: true, Slot: 0},
			{ID: 11, OwnerTag: 13, Slot: -1},
		},
	})

	slot := 2
	validateGo(t, compile(t, "event.schema.json"), protocol.EventMsg{
		Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Tick: 3, Kind: "slot_assigned", PetID: 9, Slot: &slot,
	})

	validateGo(t, compile(t, "error.schema.json"), protocol.ErrorMsg{
		Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: protocol.ErrProtoBadRequest, Message: "expected SUBSCRIBE",
	})
}

func TestSchemas_RejectEmptyPetsList(t *testing.T) {
	s := compile(t, "pets.schema.json")
	var doc any
	_ = json.Unmarshal([]byte(`{"type":"PETS","protocol_version":"1.0","tick":1,"owner_id":1,"primary_id":0,"pets":[{"id":0,"owner_tag":0,"resolved":false,"slot":-2}]}`), &doc)
	if err := s.Validate(doc); err == nil {
		t.Fatalf("expected id 0 and slot -2 to be rejected")
	}
}
