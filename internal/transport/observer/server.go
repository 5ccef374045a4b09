// Package observer streams the tracked pet set to websocket clients such as
// overlays and debugging UIs. The host loop pushes state in; it never waits
// on a client.
package observer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"addonhost/internal/multipet"
	"addonhost/internal/protocol"
)

type client struct {
	id     string
	events atomic.Bool

	pets   chan []byte
	stream chan []byte
	cancel context.CancelFunc
}

type Hub struct {
	log        zerolog.Logger
	tickRateHz int

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
	latest  []byte
	state   protocol.BootstrapResponse
}

func NewHub(logger zerolog.Logger, tickRateHz int) *Hub {
	return &Hub{
		log:        logger,
		tickRateHz: tickRateHz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only, see isLoopbackRemote
		},
		clients: map[string]*client{},
	}
}

// Publish replaces the PETS snapshot every client will see next.
func (h *Hub) Publish(st multipet.State) {
	msg := protocol.PetsMsg{
		Type:            protocol.TypePets,
		ProtocolVersion: protocol.Version,
		Tick:            st.Tick,
		SessionID:       st.Session,
		OwnerID:         st.OwnerID,
		PrimaryID:       st.PrimaryID,
		Pets:            make([]protocol.PetView, 0, len(st.Pets)),
	}
	for _, p := range st.Pets {
		msg.Pets = append(msg.Pets, protocol.PetView{
			ID:       p.ID,
			Name:     p.Name,
			OwnerTag: p.OwnerTag,
			Class:    multipet.ClassName(p.OwnerTag),
			Resolved: p.Resolved(),
			Slot:     p.Slot,
		})
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal pets")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = b
	h.state.Tick = st.Tick
	h.state.SessionID = st.Session
	h.state.OwnerID = st.OwnerID
	h.state.Slots = len(st.Slots)
	for _, c := range h.clients {
		sendLatest(c.pets, b)
	}
}

// Emit forwards e to clients that asked for events. It makes Hub a
// multipet.EventSink. Slow clients lose events, never the host.
func (h *Hub) Emit(e multipet.Event) {
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            e.Tick,
		Kind:            string(e.Kind),
		PetID:           e.PetID,
		Detail:          e.Detail,
	}
	if e.Slot >= 0 {
		slot := e.Slot
		msg.Slot = &slot
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if !c.events.Load() {
			continue
		}
		select {
		case c.stream <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts events lost to full client queues.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every client. Hijacked connections are not closed by
// http.Server.Shutdown, so callers do this on the way out.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		c.cancel()
	}
}

func (h *Hub) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h.mu.Lock()
		resp := h.state
		resp.Observers = len(h.clients)
		h.mu.Unlock()
		resp.ProtocolVersion = protocol.Version
		resp.TickRateHz = h.tickRateHz

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (h *Hub) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, code, reason := parseSubscribe(msg)
		if code != "" {
			writeError(conn, code, reason)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		c := &client{
			id:     "O" + strconv.FormatUint(h.nextID.Add(1), 10),
			pets:   make(chan []byte, 1),
			stream: make(chan []byte, 256),
			cancel: cancel,
		}
		c.events.Store(sub.Events)

		h.mu.Lock()
		welcome, _ := json.Marshal(protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       h.state.SessionID,
		})
		if h.latest != nil {
			c.pets <- h.latest
		}
		h.clients[c.id] = c
		h.mu.Unlock()
		defer func() {
			h.mu.Lock()
			delete(h.clients, c.id)
			h.mu.Unlock()
		}()

		log := h.log.With().Str("observer", c.id).Str("client", sub.ClientName).Logger()
		log.Info().Bool("events", sub.Events).Msg("observer connected")
		defer log.Info().Msg("observer disconnected")

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-c.stream:
				case b = <-c.pets:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}()

		// Reader loop: a later SUBSCRIBE toggles the event stream.
		go func() {
			<-ctx.Done()
			_ = conn.SetReadDeadline(time.Now())
		}()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, code, _ := parseSubscribe(msg); code == "" {
				c.events.Store(sub.Events)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(b []byte) (protocol.SubscribeMsg, string, string) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, protocol.ErrProtoBadRequest, "bad subscribe"
	}
	if sub.Type != protocol.TypeSubscribe {
		return sub, protocol.ErrProtoBadRequest, "expected SUBSCRIBE"
	}
	if sub.ProtocolVersion != protocol.Version {
		return sub, protocol.ErrProtoVersion, "unsupported protocol_version"
	}
	return sub, "", ""
}

func writeError(conn *websocket.Conn, code, msg string) {
	b, _ := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
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
