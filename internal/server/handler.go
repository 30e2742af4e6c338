package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/afroash/engine-twin/internal/models"
	"github.com/afroash/engine-twin/internal/storage"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Handler manages WebSocket connections from vehicle twins
type Handler struct {
	upgrader        websocket.Upgrader
	authToken       string
	store           SnapshotStore
	dbWriter        *storage.DBWriter // optional, nil when persistence disabled
	logger          zerolog.Logger
	activeVehicles  map[string]*VehicleConnection
	connToVehicleID map[string]string // Maps conn.RemoteAddr().String() to actual vehicle ID
	allowedOrigins  []string
	mutex           sync.RWMutex
}

// VehicleConnection represents an active vehicle twin connection
type VehicleConnection struct {
	VehicleID   string `json:"vehicle_id"`
	Conn        *websocket.Conn
	LastSeen    time.Time
	ConnectedAt time.Time
}

// NewHandler creates a new WebSocket handler
func NewHandler(authToken string, store SnapshotStore, logger zerolog.Logger, allowedOrigins ...string) *Handler {
	h := &Handler{
		authToken:       authToken,
		store:           store,
		logger:          logger,
		activeVehicles:  make(map[string]*VehicleConnection),
		connToVehicleID: make(map[string]string),
		allowedOrigins:  allowedOrigins,
		mutex:           sync.RWMutex{},
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// SetDBWriter attaches an async database writer. Snapshots accepted after
// this call are also queued for persistence.
func (h *Handler) SetDBWriter(w *storage.DBWriter) {
	h.dbWriter = w
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Handler) checkOrigin(r *http.Request) bool {
	// If no allowed origins configured, reject all cross-origin requests
	if len(h.allowedOrigins) == 0 {
		// Allow same-origin requests (no Origin header means same-origin)
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: no allowed origins configured")
		return false
	}

	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	// Check against allowlist
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check auth token from header
	// Expected format: "Bearer <token>"
	token := r.Header.Get("Authorization")
	if !h.validateToken(token) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	// Upgrade connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	// Handle the connection
	h.handleConnection(conn)
}

// validateToken checks if the auth token is valid
func (h *Handler) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token != h.authToken {
		return false
	}
	return true
}

// handleConnection manages a single WebSocket connection
func (h *Handler) handleConnection(conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	vehicleConn := &VehicleConnection{
		VehicleID:   connKey, // Will be updated when we receive heartbeat with real vehicle ID
		Conn:        conn,
		LastSeen:    time.Now(),
		ConnectedAt: time.Now(),
	}

	h.mutex.Lock()
	h.activeVehicles[connKey] = vehicleConn
	h.mutex.Unlock()

	defer conn.Close()
	defer h.removeVehicle(connKey)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Read loop
	for {
		var msg models.Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		h.handleMessage(conn, connKey, &msg)
	}
}

// handleMessage processes a single message from the twin
func (h *Handler) handleMessage(conn *websocket.Conn, connKey string, msg *models.Message) {
	h.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")

	switch msg.Type {
	case models.MessageTypeSnapshot:
		h.handleSnapshot(msg)
	case models.MessageTypeBatch:
		h.handleBatch(msg)
	case models.MessageTypeHeartbeat:
		h.handleHeartbeat(connKey, msg)
	default:
		h.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
	}

	h.sendAck(conn)
}

// handleSnapshot processes a single engine snapshot
func (h *Handler) handleSnapshot(msg *models.Message) {
	var snapMsg models.SnapshotMessage
	if err := msg.UnmarshalPayload(&snapMsg); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal snapshot")
		return
	}
	if snapMsg.VehicleID == "" || !snapMsg.Readings.IsValid() {
		h.logger.Warn().Str("vehicle_id", snapMsg.VehicleID).Int("channels", len(snapMsg.Readings)).Msg("Snapshot ignored: invalid")
		return
	}
	h.accept(snapMsg.VehicleID, snapMsg.Mileage, snapMsg.Readings)
	h.logger.Info().
		Str("vehicle_id", snapMsg.VehicleID).
		Float64("mileage", snapMsg.Mileage).
		Int("channels", len(snapMsg.Readings)).
		Msg("Snapshot stored")
}

// handleBatch processes a batch of snapshots
func (h *Handler) handleBatch(msg *models.Message) {
	var batch models.BatchMessage
	if err := msg.UnmarshalPayload(&batch); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal batch")
		return
	}
	if batch.VehicleID == "" {
		h.logger.Warn().Msg("Batch ignored: missing vehicle id")
		return
	}
	stored := 0
	for _, snap := range batch.Snapshots {
		if snap.IsValid() {
			h.accept(batch.VehicleID, batch.Mileage, snap)
			stored++
		}
	}
	h.logger.Info().Str("vehicle_id", batch.VehicleID).Int("count", stored).Msg("Batch stored")
}

// accept stores a validated snapshot and queues it for persistence
func (h *Handler) accept(vehicleID string, mileage float64, readings models.Snapshot) {
	ts := &TelemetrySnapshot{
		VehicleID:  vehicleID,
		Mileage:    mileage,
		ReceivedAt: time.Now(),
		Readings:   readings,
	}
	h.store.Add(ts)
	if h.dbWriter != nil {
		h.dbWriter.Queue(vehicleID, mileage, readings)
	}
}

// handleHeartbeat processes a heartbeat message
func (h *Handler) handleHeartbeat(connKey string, msg *models.Message) {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return
	}

	// Update the mapping from connection key to actual vehicle ID
	h.mutex.Lock()
	if heartbeat.VehicleID != "" {
		if existingID, exists := h.connToVehicleID[connKey]; !exists || existingID != heartbeat.VehicleID {
			h.connToVehicleID[connKey] = heartbeat.VehicleID
			if vehicle, ok := h.activeVehicles[connKey]; ok {
				vehicle.VehicleID = heartbeat.VehicleID
			}
		}
	}
	h.mutex.Unlock()

	h.updateVehicleLastSeen(connKey)
	h.logger.Debug().Str("vehicle_id", heartbeat.VehicleID).Int64("uptime", heartbeat.Uptime).Msg("Heartbeat received")
}

// sendAck sends an acknowledgment message
func (h *Handler) sendAck(conn *websocket.Conn) {
	ack := models.AckMessage{Status: "ok"}
	msg, err := models.NewMessage(models.MessageTypeAck, ack)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create ack message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send ack")
	}
}

// updateVehicleLastSeen updates the last seen timestamp for a vehicle
func (h *Handler) updateVehicleLastSeen(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if vehicle, exists := h.activeVehicles[connKey]; exists {
		vehicle.LastSeen = time.Now()
	}
}

// removeVehicle removes a vehicle from the active vehicles map
func (h *Handler) removeVehicle(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	// Get the actual vehicle ID for logging before deletion
	vehicleID := connKey
	if realID, exists := h.connToVehicleID[connKey]; exists {
		vehicleID = realID
	}
	delete(h.activeVehicles, connKey)
	delete(h.connToVehicleID, connKey)
	h.logger.Info().Str("vehicle_id", vehicleID).Msg("Vehicle disconnected")
}

// GetActiveVehicles returns a list of currently connected vehicles
func (h *Handler) GetActiveVehicles() []VehicleConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	vehicles := make([]VehicleConnection, 0, len(h.activeVehicles))
	for _, vehicle := range h.activeVehicles {
		vehicles = append(vehicles, *vehicle)
	}
	return vehicles
}

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)
