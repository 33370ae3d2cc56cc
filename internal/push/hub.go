package push

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"coffeenet/internal/models"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 256
	maxMessageSize = 512 * 1024
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers are served from other origins
	},
}

// SnapshotSource builds the state a viewer receives when it connects.
type SnapshotSource interface {
	Menu(ctx context.Context) ([]models.Product, error)
	CustomerOrders(ctx context.Context, customerID uint, window time.Duration) ([]models.Order, error)
	ActiveOrders(ctx context.Context) ([]models.Order, error)
}

// Recorder receives push metrics.
type Recorder interface {
	MessageSent(messageType string)
	ViewerConnected(role models.Role, delta int)
	SlowConsumer()
}

// Hub tracks open connections per identity and fans messages out to them.
// All writes to a connection's send channel happen under mu, which keeps
// per-order publication order intact across connections.
type Hub struct {
	source   SnapshotSource
	recorder Recorder
	log      *slog.Logger
	// window is how long a terminal order stays in a customer's snapshot.
	window time.Duration

	mu        sync.Mutex
	customers map[uint]map[*conn]struct{}
	kitchens  map[*conn]struct{}
}

// conn is one websocket connection. Until ready, published frames are
// parked in pending so they follow the snapshot instead of preceding it.
type conn struct {
	ws       *websocket.Conn
	identity models.Identity
	send     chan []byte
	pending  [][]byte
	ready    bool
	closed   bool
}

// NewHub creates an empty hub.
func NewHub(source SnapshotSource, recorder Recorder, log *slog.Logger, window time.Duration) *Hub {
	return &Hub{
		source:    source,
		recorder:  recorder,
		log:       log,
		window:    window,
		customers: make(map[uint]map[*conn]struct{}),
		kitchens:  make(map[*conn]struct{}),
	}
}

// Serve upgrades the request and runs the connection until it closes.
// The identity must already be authenticated.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", "error", err, "user_id", identity.UserID)
		return
	}

	c := &conn{
		ws:       ws,
		identity: identity,
		send:     make(chan []byte, sendBuffer),
	}
	h.register(c)
	h.log.Info("viewer connected", "user_id", identity.UserID, "role", identity.Role)

	frames, err := h.snapshot(r.Context(), identity)
	if err != nil {
		h.log.Error("failed to build snapshot", "error", err, "user_id", identity.UserID)
		h.unregister(c)
		ws.Close()
		return
	}
	h.activate(c, frames)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch c.identity.Role {
	case models.RoleKitchen:
		h.kitchens[c] = struct{}{}
	default:
		set, ok := h.customers[c.identity.UserID]
		if !ok {
			set = make(map[*conn]struct{})
			h.customers[c.identity.UserID] = set
		}
		set[c] = struct{}{}
	}
	h.recorder.ViewerConnected(c.identity.Role, 1)
}

// unregister removes c and closes its send channel exactly once.
func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *conn) {
	if c.closed {
		return
	}
	c.closed = true
	if c.identity.Role == models.RoleKitchen {
		delete(h.kitchens, c)
	} else if set, ok := h.customers[c.identity.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.customers, c.identity.UserID)
		}
	}
	close(c.send)
	h.recorder.ViewerConnected(c.identity.Role, -1)
}

// snapshot builds the frames a viewer gets on connect.
func (h *Hub) snapshot(ctx context.Context, identity models.Identity) ([][]byte, error) {
	if identity.Role == models.RoleKitchen {
		orders, err := h.source.ActiveOrders(ctx)
		if err != nil {
			return nil, err
		}
		frame, err := encode(TypeInitialState, nonNilOrders(orders))
		if err != nil {
			return nil, err
		}
		return [][]byte{frame}, nil
	}

	menu, err := h.source.Menu(ctx)
	if err != nil {
		return nil, err
	}
	if menu == nil {
		menu = []models.Product{}
	}
	orders, err := h.source.CustomerOrders(ctx, identity.UserID, h.window)
	if err != nil {
		return nil, err
	}
	menuFrame, err := encode(TypeMenu, menu)
	if err != nil {
		return nil, err
	}
	ordersFrame, err := encode(TypeActiveOrders, nonNilOrders(orders))
	if err != nil {
		return nil, err
	}
	return [][]byte{menuFrame, ordersFrame}, nil
}

func nonNilOrders(orders []models.Order) []models.Order {
	if orders == nil {
		return []models.Order{}
	}
	return orders
}

// activate queues the snapshot, then everything published meanwhile.
func (h *Hub) activate(c *conn, snapshot [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.ready = true
	for _, frame := range snapshot {
		h.enqueueLocked(c, frame)
	}
	for _, frame := range c.pending {
		h.enqueueLocked(c, frame)
	}
	c.pending = nil
}

// enqueueLocked never blocks. A connection that cannot keep up is closed so
// the viewer reconnects and re-snapshots instead of silently missing frames.
func (h *Hub) enqueueLocked(c *conn, frame []byte) {
	if c.closed {
		return
	}
	if !c.ready {
		if len(c.pending) >= sendBuffer {
			h.dropLocked(c)
			return
		}
		c.pending = append(c.pending, frame)
		return
	}
	select {
	case c.send <- frame:
	default:
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *conn) {
	h.log.Warn("push buffer full, closing connection", "user_id", c.identity.UserID, "role", c.identity.Role)
	h.recorder.SlowConsumer()
	h.removeLocked(c)
}

// OrderCreated sends new_order to kitchens and the first status_update to
// the owning customer.
func (h *Hub) OrderCreated(order models.Order) {
	newOrder, err := encode(TypeNewOrder, order)
	if err != nil {
		h.log.Error("failed to encode order", "error", err, "order_id", order.ID)
		return
	}
	update, err := encode(TypeStatusUpdate, order)
	if err != nil {
		h.log.Error("failed to encode order", "error", err, "order_id", order.ID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.toKitchensLocked(TypeNewOrder, newOrder)
	h.toCustomerLocked(order.CustomerID, TypeStatusUpdate, update)
}

// StatusChanged sends status_update to the owning customer and all kitchens.
func (h *Hub) StatusChanged(order models.Order) {
	update, err := encode(TypeStatusUpdate, order)
	if err != nil {
		h.log.Error("failed to encode order", "error", err, "order_id", order.ID)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.toCustomerLocked(order.CustomerID, TypeStatusUpdate, update)
	h.toKitchensLocked(TypeStatusUpdate, update)
}

func (h *Hub) toKitchensLocked(t MessageType, frame []byte) {
	for c := range h.kitchens {
		h.enqueueLocked(c, frame)
		h.recorder.MessageSent(string(t))
	}
}

func (h *Hub) toCustomerLocked(customerID uint, t MessageType, frame []byte) {
	for c := range h.customers[customerID] {
		h.enqueueLocked(c, frame)
		h.recorder.MessageSent(string(t))
	}
}

// Stats reports open connections for the health endpoint.
func (h *Hub) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	customers := 0
	for _, set := range h.customers {
		customers += len(set)
	}
	return map[string]int{
		"kitchen_connections":  len(h.kitchens),
		"customer_connections": customers,
		"connected_customers":  len(h.customers),
	}
}

// Close disconnects every viewer, for shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.kitchens {
		h.removeLocked(c)
	}
	for _, set := range h.customers {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

// readPump discards inbound frames; the channel is server-to-client only.
// It returns when the connection fails and then unregisters it.
func (h *Hub) readPump(c *conn) {
	defer func() {
		h.unregister(c)
		c.ws.Close()
		h.log.Info("viewer disconnected", "user_id", c.identity.UserID, "role", c.identity.Role)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump drains the send channel and keeps the connection alive with pings.
func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
