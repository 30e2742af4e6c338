package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/afroash/engine-twin/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectionConfig holds dialing and keepalive settings
type ConnectionConfig struct {
	URL                  string
	AuthToken            string
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
}

// Connection streams telemetry to the twin consumer over WebSocket.
// Run handles reconnects; a registration heartbeat announces the vehicle
// on every successful dial so the server can key the connection.
type Connection struct {
	URL       string
	AuthToken string

	vehicle *models.VehicleInfo
	logger  zerolog.Logger

	mu    sync.RWMutex
	conn  *websocket.Conn
	state ConnectionState

	dialTimeout time.Duration
	baseDelay   time.Duration
	maxDelay    time.Duration
	delay       time.Duration

	pingInterval time.Duration
	pongTimeout  time.Duration

	ackMu   sync.RWMutex
	lastAck time.Time
}

// NewConnection creates a connection manager. It does not dial;
// call Connect once or Run for the reconnecting loop.
func NewConnection(config ConnectionConfig, vehicleInfo *models.VehicleInfo, logger zerolog.Logger) *Connection {
	return &Connection{
		URL:          config.URL,
		AuthToken:    config.AuthToken,
		vehicle:      vehicleInfo,
		logger:       logger,
		state:        StateDisconnected,
		dialTimeout:  config.ConnectTimeout,
		baseDelay:    config.ReconnectInterval,
		maxDelay:     config.MaxReconnectInterval,
		delay:        config.ReconnectInterval,
		pingInterval: config.PingInterval,
		pongTimeout:  config.PongTimeout,
	}
}

func (c *Connection) setState(state ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.logger.Info().Str("state", state.String()).Msg("Stream state changed")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the stream is up
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect dials the server, authenticates, and sends the registration
// heartbeat. On success the reconnect backoff resets to its base value.
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.URL).Msg("Dialing twin consumer")

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.AuthToken)

	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial failed: %w", err)
	}
	defer resp.Body.Close()

	c.mu.Lock()
	c.conn = conn
	c.delay = c.baseDelay
	c.mu.Unlock()
	c.setState(StateConnected)

	if err := c.sendHeartbeat(0); err != nil {
		c.logger.Warn().Err(err).Msg("Registration heartbeat failed")
		return err
	}

	c.logger.Info().Str("vehicle_id", c.vehicle.ID).Msg("Registered with twin consumer")
	return nil
}

// Run dials and re-dials with exponential backoff until ctx is cancelled.
// While connected it services the read and heartbeat loops.
func (c *Connection) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Connect attempt failed")
			c.backoff(ctx)
			continue
		}

		c.serve(ctx)
		c.logger.Info().Msg("Stream dropped, scheduling reconnect")
		c.backoff(ctx)
	}
}

// backoff sleeps for the current reconnect delay, then doubles it
// up to the configured maximum.
func (c *Connection) backoff(ctx context.Context) {
	c.mu.Lock()
	d := c.delay
	c.delay *= 2
	if c.delay > c.maxDelay {
		c.delay = c.maxDelay
	}
	c.mu.Unlock()

	c.logger.Info().Dur("delay", d).Msg("Backing off before reconnect")
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// serve runs the read and heartbeat loops until either one fails,
// then tears the connection down.
func (c *Connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() {
		c.readLoop(ctx)
		done <- struct{}{}
	}()
	go func() {
		c.heartbeatLoop(ctx)
		done <- struct{}{}
	}()

	<-done
	cancel()
	c.teardown()
	<-done
}

func (c *Connection) teardown() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.logger.Info().Msg("Stream torn down")
}

// SendSnapshot streams one snapshot with the vehicle's current mileage
func (c *Connection) SendSnapshot(snapshot models.Snapshot, mileage float64) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	msg, err := models.NewMessage(models.MessageTypeSnapshot, models.SnapshotMessage{
		VehicleID: c.vehicle.ID,
		Mileage:   mileage,
		Readings:  snapshot,
	})
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return c.write(msg)
}

// SendBatch streams buffered snapshots in one message. An empty batch
// is a no-op so callers can flush unconditionally.
func (c *Connection) SendBatch(snapshots []models.Snapshot, mileage float64) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	if len(snapshots) == 0 {
		return nil
	}

	msg, err := models.NewMessage(models.MessageTypeBatch, models.BatchMessage{
		VehicleID: c.vehicle.ID,
		Mileage:   mileage,
		Snapshots: snapshots,
		Count:     len(snapshots),
	})
	if err != nil {
		return fmt.Errorf("failed to create batch message: %w", err)
	}
	if err := c.write(msg); err != nil {
		return err
	}
	c.logger.Info().Int("count", len(snapshots)).Msg("Flushed snapshot batch")
	return nil
}

func (c *Connection) write(msg *models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *Connection) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var msg models.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.logger.Warn().Err(err).Msg("Stream read error")
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) handleMessage(msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeAck:
		c.markAck()
	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err == nil {
			c.logger.Warn().
				Str("code", errMsg.Code).
				Str("msg", errMsg.Message).
				Msg("Server reported error")
		}
	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("Ignoring message")
	}
}

func (c *Connection) markAck() {
	c.ackMu.Lock()
	c.lastAck = time.Now()
	c.ackMu.Unlock()
}

func (c *Connection) sinceLastAck() time.Duration {
	c.ackMu.RLock()
	defer c.ackMu.RUnlock()
	return time.Since(c.lastAck)
}

// heartbeatLoop sends periodic heartbeats and declares the connection
// dead when the server stops acking within the pong timeout.
func (c *Connection) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	c.markAck()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(0); err != nil {
				c.logger.Warn().Err(err).Msg("Heartbeat send failed")
				return
			}
			if c.sinceLastAck() > c.pongTimeout {
				c.logger.Warn().Msg("No ack within pong timeout, stream presumed dead")
				return
			}
		}
	}
}

func (c *Connection) sendHeartbeat(bufferSize int) error {
	msg, err := models.NewMessage(models.MessageTypeHeartbeat, models.HeartbeatMessage{
		VehicleID:  c.vehicle.ID,
		Uptime:     int64(c.vehicle.Uptime().Seconds()),
		BufferSize: bufferSize,
	})
	if err != nil {
		return err
	}
	return c.write(msg)
}

// Close sends a close frame and shuts the stream down
func (c *Connection) Close() error {
	c.logger.Info().Msg("Closing stream")

	c.mu.Lock()
	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	return nil
}
