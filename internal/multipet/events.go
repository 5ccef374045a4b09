package multipet

import "addonhost/internal/multipet/tracking"

type EventKind string

const (
	EventDetected         EventKind = "detected"
	EventResolved         EventKind = "resolved"
	EventSlotAssigned     EventKind = "slot_assigned"
	EventSlotReclaimed    EventKind = "slot_reclaimed"
	EventSlotReleased     EventKind = "slot_released"
	EventRemoved          EventKind = "removed"
	EventPromoted         EventKind = "promoted"
	EventPetList          EventKind = "petlist"
	EventPetListMalformed EventKind = "petlist_malformed"
	EventSessionReset     EventKind = "session_reset"
	EventDirectoryRebuilt EventKind = "directory_rebuilt"
)

// Event is one tracking transition. Slot is tracking.NoSlot when no slot is involved.
type Event struct {
	Tick    uint64    `json:"tick"`
	Session string    `json:"session,omitempty"`
	Kind    EventKind `json:"kind"`
	PetID   uint32    `json:"pet_id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Slot    int       `json:"slot"`
	Detail  string    `json:"detail,omitempty"`
}

// EventSink receives events on the host thread. Implementations must not block.
type EventSink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (ms MultiSink) Emit(e Event) {
	for _, s := range ms {
		if s != nil {
			s.Emit(e)
		}
	}
}

type discard struct{}

func (discard) Emit(Event) {}

func (m *Mod) emit(kind EventKind, petID uint32, name string, slot int, detail string) {
	// Spawn callbacks can fire before the first pulse has opened a session.
	if m.session == "" && m.ownerID == 0 && kind != EventSessionReset && m.host.InGame() {
		if owner, _, ok := m.localIDs(); ok && owner != 0 {
			m.startSession(owner)
		}
	}
	m.sink.Emit(Event{
		Tick:    m.tick,
		Session: m.session,
		Kind:    kind,
		PetID:   petID,
		Name:    name,
		Slot:    slot,
		Detail:  detail,
	})
}

func (m *Mod) emitPet(kind EventKind, e tracking.Entity, detail string) {
	m.emit(kind, e.ID, e.Name, e.Slot, detail)
}
