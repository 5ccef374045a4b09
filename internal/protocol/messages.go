package protocol

// SUBSCRIBE (observer -> host)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	// Events asks for the per-transition EVENT stream on top of PETS snapshots.
	Events bool `json:"events,omitempty"`
}

// WELCOME (host -> observer)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id,omitempty"`
}

// PETS (host -> observer): the tracked set as of Tick.
type PetsMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Tick            uint64    `json:"tick"`
	SessionID       string    `json:"session_id,omitempty"`
	OwnerID         uint32    `json:"owner_id"`
	PrimaryID       uint32    `json:"primary_id"`
	Pets            []PetView `json:"pets"`
}

type PetView struct {
	ID       uint32 `json:"id"`
	Name     string `json:"name,omitempty"`
	OwnerTag uint32 `json:"owner_tag"`
	Class    string `json:"class,omitempty"`
	Resolved bool   `json:"resolved"`
	// Slot is -1 when the pet is not published.
	Slot int `json:"slot"`
}

// EVENT (host -> observer): one tracking transition.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Kind            string `json:"kind"`
	PetID           uint32 `json:"pet_id,omitempty"`
	Slot            *int   `json:"slot,omitempty"`
	Detail          string `json:"detail,omitempty"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// BootstrapResponse is served over plain HTTP so a UI can size itself before
// opening the websocket.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	SessionID       string `json:"session_id,omitempty"`
	OwnerID         uint32 `json:"owner_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Slots           int    `json:"xtarget_slots"`
	Observers       int    `json:"observers"`
}
