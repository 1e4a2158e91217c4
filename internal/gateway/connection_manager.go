package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/despairhw/tourneycast/internal/dispatch"
	"github.com/despairhw/tourneycast/internal/metrics"
)

// AckFunc receives acknowledgements parsed off display connections.
type AckFunc func(displayID, messageID string, sequence uint64)

// ConnectionManager owns the WebSocket connections of the display clients.
// Each display id (a named TV or projector) has at most one live connection;
// a reconnect replaces the previous socket. The manager implements
// dispatch.Transport, so the dispatcher sees displays purely as recipient
// ids.
type ConnectionManager struct {
	mu       sync.RWMutex
	displays map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig
	onAck    AckFunc

	// lastAcks feeds the HTTP fallback decision for the pending-poll
	// endpoint; independent of the dispatcher's own ACK registry.
	statusMu      sync.Mutex
	lastBroadcast time.Time
	lastAcks      map[string]time.Time
}

// Connection represents one display client's WebSocket connection. The send
// channel is never closed; shutdown is signalled through done so that a Send
// holding a stale reference across a reconnect can never panic on a closed
// channel.
type Connection struct {
	ID        string
	DisplayID string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// shutdown signals the pumps to stop. Safe to call from multiple goroutines.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// ConnectionConfig holds configuration for display WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Displays live on the venue LAN; origin checks are the reverse
			// proxy's job.
			return true
		},
	}
}

// NewConnectionManager creates a manager for display connections.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		displays: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:   config,
		lastAcks: make(map[string]time.Time),
	}
}

// OnAck registers the handler that receives parsed acknowledgements. Must be
// called before any display connects.
func (cm *ConnectionManager) OnAck(fn AckFunc) {
	cm.onAck = fn
}

// Send implements dispatch.Transport. The message is queued on the display's
// outbound channel; a display whose buffer is full is treated as dead and
// evicted, the same way the dispatcher would eventually give up on it.
func (cm *ConnectionManager) Send(recipientID string, msg *dispatch.OutboundMessage) error {
	cm.mu.RLock()
	conn, ok := cm.displays[recipientID]
	cm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("display %s not connected", recipientID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case conn.send <- data:
		cm.statusMu.Lock()
		cm.lastBroadcast = time.Now()
		cm.statusMu.Unlock()
		return nil
	case <-conn.done:
		// The connection was replaced or torn down after the lookup above.
		return fmt.Errorf("display %s connection closed", recipientID)
	default:
		log.Warn().
			Str("display_id", recipientID).
			Str("connection_id", conn.ID).
			Msg("display send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.conn.Close()
		return fmt.Errorf("display %s send buffer full", recipientID)
	}
}

// RecipientIDs implements dispatch.Transport.
func (cm *ConnectionManager) RecipientIDs() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.displays))
	for id := range cm.displays {
		ids = append(ids, id)
	}
	return ids
}

// UpgradeConnection upgrades an HTTP request to a display WebSocket.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, displayID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		DisplayID:   displayID,
		conn:        conn,
		send:        make(chan []byte, 64),
		done:        make(chan struct{}),
		manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("display_id", displayID).
		Msg("display connected")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	if prev, ok := cm.displays[conn.DisplayID]; ok {
		// A display that reconnects supersedes its old socket.
		prev.shutdown()
		prev.conn.Close()
		log.Info().
			Str("display_id", conn.DisplayID).
			Str("old_connection_id", prev.ID).
			Msg("display reconnected, replacing connection")
	}
	cm.displays[conn.DisplayID] = conn
	total := len(cm.displays)
	cm.mu.Unlock()

	metrics.ConnectedDisplays.Set(float64(total))
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	current, ok := cm.displays[conn.DisplayID]
	if ok && current == conn {
		delete(cm.displays, conn.DisplayID)
		conn.shutdown()
		log.Info().
			Str("connection_id", conn.ID).
			Str("display_id", conn.DisplayID).
			Msg("display disconnected")
	}
	total := len(cm.displays)
	cm.mu.Unlock()

	metrics.ConnectedDisplays.Set(float64(total))
}

// ConnectionStats summarises the live display connections.
type ConnectionStats struct {
	ConnectedDisplays int      `json:"connected_displays"`
	DisplayIDs        []string `json:"display_ids"`
}

// GetConnectionStats returns statistics about active display connections.
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.displays))
	for id := range cm.displays {
		ids = append(ids, id)
	}
	return ConnectionStats{ConnectedDisplays: len(ids), DisplayIDs: ids}
}

// DeliveryStatus builds the point-in-time record the fallback predicate
// reads, covering the manager's whole display population.
func (cm *ConnectionManager) DeliveryStatus(fallbackDelay time.Duration) dispatch.DeliveryStatus {
	cm.statusMu.Lock()
	defer cm.statusMu.Unlock()

	acks := make(map[string]time.Time, len(cm.lastAcks))
	for id, t := range cm.lastAcks {
		acks[id] = t
	}
	return dispatch.DeliveryStatus{
		LastBroadcast: cm.lastBroadcast,
		LastAcks:      acks,
		FallbackDelay: fallbackDelay,
	}
}

func (cm *ConnectionManager) recordAck(displayID string) {
	cm.statusMu.Lock()
	cm.lastAcks[displayID] = time.Now()
	cm.statusMu.Unlock()
}

// writePump pushes queued messages to the socket and keeps the ping cadence.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to display")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to ping display")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes inbound frames. Displays only ever send acknowledgement
// frames; anything else is logged and dropped.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleAckFrame(message)
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

func (c *Connection) handleAckFrame(message []byte) {
	var ack dispatch.Ack
	if err := json.Unmarshal(message, &ack); err != nil || ack.MessageID == "" {
		log.Debug().
			Str("connection_id", c.ID).
			Str("display_id", c.DisplayID).
			Bytes("frame", message).
			Msg("ignoring non-ack frame from display")
		return
	}

	c.manager.recordAck(c.DisplayID)
	if c.manager.onAck != nil {
		c.manager.onAck(c.DisplayID, ack.MessageID, ack.Sequence)
	}
}
