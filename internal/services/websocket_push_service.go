package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/celery8911/InnerLedger/internal/events"
	"github.com/celery8911/InnerLedger/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsReadLimit  = 512
)

// ErrPushQueueFull the hub could not accept the event
var ErrPushQueueFull = errors.New("websocket push queue full")

// Connection one websocket subscriber. It follows a sender address, a transaction hash, or both.
type Connection struct {
	ID          string          `json:"id"`
	UserAddress string          `json:"user_address"`
	TxHash      string          `json:"tx_hash,omitempty"`
	Conn        *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	LastPing    time.Time       `json:"last_ping"`
}

// PushMessage envelope written to subscribers
type PushMessage struct {
	Type        string      `json:"type"`
	Timestamp   string      `json:"timestamp"`
	MessageID   string      `json:"message_id"`
	UserAddress string      `json:"user_address,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	Data        interface{} `json:"data"`
}

// WebSocketPushService pushes relay lifecycle events to browsers waiting on a transaction.
type WebSocketPushService struct {
	connections map[string]*Connection
	userConns   map[string][]*Connection // key: lowercase address
	txConns     map[string][]*Connection // key: lowercase tx hash
	hub         chan PushMessage
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *logrus.Logger
}

// NewWebSocketPushService allowedOrigins empty accepts any origin.
func NewWebSocketPushService(allowedOrigins []string, logger *logrus.Logger) *WebSocketPushService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &WebSocketPushService{
		connections: make(map[string]*Connection),
		userConns:   make(map[string][]*Connection),
		txConns:     make(map[string][]*Connection),
		hub:         make(chan PushMessage, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}

	go s.run()
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func (s *WebSocketPushService) run() {
	for {
		select {
		case conn := <-s.register:
			s.handleRegister(conn)
		case conn := <-s.unregister:
			s.handleUnregister(conn)
		case message := <-s.hub:
			s.handleBroadcast(message)
		case <-s.stop:
			return
		}
	}
}

// Close stops the hub. Open sockets are left to their read pumps.
func (s *WebSocketPushService) Close() {
	close(s.stop)
}

// RegisterConnection adds a subscriber
func (s *WebSocketPushService) RegisterConnection(conn *Connection) {
	select {
	case s.register <- conn:
	case <-s.stop:
	}
}

// UnregisterConnection removes a subscriber and closes it
func (s *WebSocketPushService) UnregisterConnection(conn *Connection) {
	select {
	case s.unregister <- conn:
	case <-s.stop:
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
}

func (s *WebSocketPushService) handleRegister(conn *Connection) {
	conn.UserAddress = strings.ToLower(conn.UserAddress)
	conn.TxHash = strings.ToLower(conn.TxHash)

	s.mutex.Lock()
	s.connections[conn.ID] = conn
	if conn.UserAddress != "" {
		s.userConns[conn.UserAddress] = append(s.userConns[conn.UserAddress], conn)
	}
	if conn.TxHash != "" {
		s.txConns[conn.TxHash] = append(s.txConns[conn.TxHash], conn)
	}
	s.mutex.Unlock()

	metrics.WebSocketConnections.Inc()
	s.logger.WithFields(logrus.Fields{"user": conn.UserAddress, "tx": conn.TxHash, "conn_id": conn.ID}).Debug("📱 WebSocket connection registered")

	if conn.Send != nil {
		s.sendToConnection(conn, PushMessage{
			Type:        "connection_established",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			MessageID:   uuid.NewString(),
			UserAddress: conn.UserAddress,
			TxHash:      conn.TxHash,
			Data: map[string]interface{}{
				"connection_id": conn.ID,
				"message":       "Real-time status connection established",
			},
		})
	}
}

func (s *WebSocketPushService) handleUnregister(conn *Connection) {
	s.mutex.Lock()
	if _, ok := s.connections[conn.ID]; !ok {
		s.mutex.Unlock()
		return
	}
	delete(s.connections, conn.ID)
	s.userConns[conn.UserAddress] = removeConn(s.userConns[conn.UserAddress], conn.ID)
	if len(s.userConns[conn.UserAddress]) == 0 {
		delete(s.userConns, conn.UserAddress)
	}
	s.txConns[conn.TxHash] = removeConn(s.txConns[conn.TxHash], conn.ID)
	if len(s.txConns[conn.TxHash]) == 0 {
		delete(s.txConns, conn.TxHash)
	}
	s.mutex.Unlock()

	metrics.WebSocketConnections.Dec()
	if conn.Send != nil {
		close(conn.Send)
	}
	if conn.Conn != nil {
		conn.Conn.Close()
	}
}

func removeConn(list []*Connection, id string) []*Connection {
	for i, c := range list {
		if c.ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (s *WebSocketPushService) handleBroadcast(message PushMessage) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	targets := make(map[string]*Connection)
	for _, c := range s.userConns[message.UserAddress] {
		targets[c.ID] = c
	}
	for _, c := range s.txConns[message.TxHash] {
		targets[c.ID] = c
	}
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.WithError(err).Error("❌ Failed to marshal push message")
		return
	}

	failed := 0
	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			failed++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"type":   message.Type,
		"tx":     message.TxHash,
		"sent":   len(targets) - failed,
		"failed": failed,
	}).Debug("📤 push delivered")
}

func (s *WebSocketPushService) sendToConnection(conn *Connection, message PushMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case conn.Send <- data:
	default:
		s.logger.WithField("conn_id", conn.ID).Warn("⚠️ Failed to send to connection")
	}
}

// Deliver implements events.Sink.
func (s *WebSocketPushService) Deliver(evt events.RelayEvent) error {
	msg := PushMessage{
		Type:        evt.Type,
		Timestamp:   evt.Timestamp.Format(time.RFC3339),
		MessageID:   uuid.NewString(),
		UserAddress: strings.ToLower(evt.Sender),
		TxHash:      strings.ToLower(evt.TxHash),
		Data:        evt,
	}
	select {
	case s.hub <- msg:
		return nil
	default:
		return ErrPushQueueFull
	}
}

// HandleWebSocket upgrades the request and subscribes it to userAddress and/or txHash.
func (s *WebSocketPushService) HandleWebSocket(w http.ResponseWriter, r *http.Request, userAddress, txHash string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		UserAddress: userAddress,
		TxHash:      txHash,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		LastPing:    time.Now(),
	}
	s.RegisterConnection(connection)

	go s.handleConnectionWrite(connection)
	go s.handleConnectionRead(connection)
}

func (s *WebSocketPushService) handleConnectionWrite(conn *Connection) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketPushService) handleConnectionRead(conn *Connection) {
	defer s.UnregisterConnection(conn)

	conn.Conn.SetReadLimit(wsReadLimit)
	conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

// GetActiveConnections number of open subscribers
func (s *WebSocketPushService) GetActiveConnections() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.connections)
}
