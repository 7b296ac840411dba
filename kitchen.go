// Kitchenrush
//
// Customers queue up with orders drawn from a fixed recipe catalog, each
// with a countdown. Players drag ingredient tiles into the preparation
// area; once the staged ingredients exactly match an order's recipe, that
// order can be served for points. Orders that time out cost points and
// the customer walks out.
//
// Features:
// - WebSockets per game ID: /path/:gameid and /path/:gameid/ws
// - Everyone on the same game URL shares one kitchen (score, orders, prep area)
// - Orders spawn at random intervals up to a configurable concurrent limit
// - Per-order countdown with normal/warning/danger urgency tiers
// - Exact-set recipe matching; serve buttons enable only when a match holds
// - Duplicate ingredient drops rejected with a transient notice
// - Players identified by cookie (playerID)
// - Games auto-reaped after configurable idle timeout
// - Random 8-char game IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`                 // "start", "add_ingredient", "serve", "reset"
	Ingredient string `json:"ingredient,omitempty"` // add_ingredient
	OrderID    int    `json:"order_id,omitempty"`   // serve
}

// OrderView is the wire representation of an order.
type OrderView struct {
	ID        int    `json:"id"`
	Recipe    Recipe `json:"recipe"`
	Remaining int    `json:"remaining"`
	Percent   int    `json:"percent"`
	Urgency   string `json:"urgency"`
}

// SessionInfoMessage is sent immediately on connect so the client can
// render the full kitchen before any further events arrive.
type SessionInfoMessage struct {
	Type        string      `json:"type"` // "session_info"
	Started     bool        `json:"started"`
	Score       int         `json:"score"`
	Selection   []string    `json:"selection"`
	Servable    []int       `json:"servable"`
	Orders      []OrderView `json:"orders"`
	Ingredients []string    `json:"ingredients"` // full catalog, for the tile rack
}

// OrderCreatedMessage announces a new customer order.
type OrderCreatedMessage struct {
	Type  string    `json:"type"` // "order_created"
	Order OrderView `json:"order"`
}

// OrderTickMessage carries one second of countdown for one order.
type OrderTickMessage struct {
	Type      string `json:"type"` // "order_tick"
	OrderID   int    `json:"order_id"`
	Remaining int    `json:"remaining"`
	Percent   int    `json:"percent"`
	Urgency   string `json:"urgency"`
}

// OrderResolvedMessage reports a served or expired order plus the score
// it produced.
type OrderResolvedMessage struct {
	Type    string `json:"type"` // "order_served" or "order_expired"
	OrderID int    `json:"order_id"`
	Score   int    `json:"score"`
}

// OrderRemovedMessage tells clients to tear down an order card once the
// exit animation delay has passed.
type OrderRemovedMessage struct {
	Type    string `json:"type"` // "order_removed"
	OrderID int    `json:"order_id"`
}

// SelectionMessage broadcasts the preparation area and which orders the
// current selection satisfies.
type SelectionMessage struct {
	Type      string   `json:"type"` // "selection"
	Selection []string `json:"selection"`
	Servable  []int    `json:"servable"`
}

// NoticeMessage is a transient, user-facing notice sent to a single
// client (duplicate ingredient, unknown ingredient).
type NoticeMessage struct {
	Type    string `json:"type"` // "notice"
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

// Hub owns one kitchen session. All game mutation happens on the run
// loop: player commands, the per-second countdown tick, the spawn timer,
// and the delayed-removal tasks all funnel into the same select, so the
// engine only ever has one writer.
type Hub struct {
	id      string
	clients map[*Client]bool
	game    *Game
	rules   Rules

	register chan *Client
	unreg    chan *Client
	commands chan command
	tasks    chan func()
	stop     chan struct{}

	removals map[int]*time.Timer

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newHub(gameID string, catalog *Catalog, rules Rules) (*Hub, error) {
	now := time.Now()
	h := &Hub{
		id:         gameID,
		clients:    make(map[*Client]bool),
		rules:      rules,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		tasks:      make(chan func(), 8),
		stop:       make(chan struct{}),
		removals:   make(map[int]*time.Timer),
		createdAt:  now,
		lastActive: now,
	}

	game, err := NewGame(catalog, rules, h, now.UnixNano())
	if err != nil {
		return nil, err
	}
	h.game = game

	return h, nil
}

func (h *Hub) run(cfg *Config) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Armed once the game starts.
	spawn := time.NewTimer(time.Hour)
	if !spawn.Stop() {
		<-spawn.C
	}
	defer spawn.Stop()

	for {
		select {
		case <-h.stop:
			return

		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			info := h.sessionInfoLocked()
			h.mu.Unlock()

			c.send <- info

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd, spawn)

		case <-ticker.C:
			h.mu.Lock()
			if h.game.Started() {
				for _, order := range h.game.Tick() {
					logf(cfg, "GAMES: Order %d (%s) expired in %s, score now %d",
						order.ID, order.Recipe.Name, h.id, h.game.Score())
					h.scheduleRemovalLocked(order.ID)
				}
			}
			h.mu.Unlock()

		case <-spawn.C:
			h.mu.Lock()
			if order := h.game.SpawnOrder(); order != nil {
				logf(cfg, "GAMES: Order %d (%s) created in %s", order.ID, order.Recipe.Name, h.id)
			}
			// Keep polling even when the kitchen is full.
			spawn.Reset(h.game.NextSpawnDelay())
			h.mu.Unlock()

		case task := <-h.tasks:
			h.mu.Lock()
			task()
			h.mu.Unlock()
		}
	}
}

// handleCommand processes a single player action.
func (h *Hub) handleCommand(cfg *Config, cmd command, spawn *time.Timer) {
	c := cmd.client
	msg := cmd.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch msg.Type {
	case "start":
		if !h.game.Start() {
			return
		}
		logf(cfg, "GAMES: Game %s started by %s", h.id, c.playerID)

		// First customer arrives immediately, the rest on the spawn timer.
		if order := h.game.SpawnOrder(); order != nil {
			logf(cfg, "GAMES: Order %d (%s) created in %s", order.ID, order.Recipe.Name, h.id)
		}
		spawn.Reset(h.game.NextSpawnDelay())

	case "add_ingredient":
		switch h.game.AddIngredient(msg.Ingredient) {
		case AddDuplicate:
			h.sendToLocked(c, NoticeMessage{
				Type:    "notice",
				Message: "That ingredient is already in the dish!",
			})
		case AddInvalid:
			h.sendToLocked(c, NoticeMessage{
				Type:    "notice",
				Message: "That is not an ingredient we stock.",
			})
		}

	case "serve":
		switch h.game.Serve(msg.OrderID) {
		case ServedOK:
			logf(cfg, "GAMES: Order %d served in %s, score now %d", msg.OrderID, h.id, h.game.Score())
			h.scheduleRemovalLocked(msg.OrderID)
		case ServeMismatch:
			h.sendToLocked(c, NoticeMessage{
				Type:    "notice",
				Message: "That is not what the customer ordered.",
			})
		case ServeStale:
			// Button click raced an expiry; nothing to do.
		}

	case "reset":
		h.game.ResetPreparation()
	}
}

// scheduleRemovalLocked arms the delayed removal of a finished order.
// The timer posts back to the run loop, so the removal mutates the game
// from the same place everything else does. Assumes h.mu is held.
func (h *Hub) scheduleRemovalLocked(orderID int) {
	if _, pending := h.removals[orderID]; pending {
		return
	}
	h.removals[orderID] = time.AfterFunc(h.rules.RemovalDelay, func() {
		select {
		case h.tasks <- func() {
			delete(h.removals, orderID)
			h.game.Remove(orderID)
		}:
		case <-h.stop:
		}
	})
}

// orderViewLocked renders an order for the wire. Assumes h.mu is held.
func (h *Hub) orderViewLocked(order *Order) OrderView {
	percent := order.Percent(h.rules.OrderDuration)
	return OrderView{
		ID:        order.ID,
		Recipe:    order.Recipe,
		Remaining: order.Remaining,
		Percent:   percent,
		Urgency:   h.rules.Urgency(percent).String(),
	}
}

// sessionInfoLocked builds the connect-time snapshot. Assumes h.mu is held.
func (h *Hub) sessionInfoLocked() SessionInfoMessage {
	orders := []OrderView{}
	for _, order := range h.game.Orders() {
		if order.Status != OrderActive {
			continue
		}
		orders = append(orders, h.orderViewLocked(order))
	}

	return SessionInfoMessage{
		Type:        "session_info",
		Started:     h.game.Started(),
		Score:       h.game.Score(),
		Selection:   h.game.Selection(),
		Servable:    h.game.ServableOrders(),
		Orders:      orders,
		Ingredients: h.game.catalog.Ingredients,
	}
}

// broadcastLocked fans a message out to every client, dropping clients
// whose send buffer is full. Assumes h.mu is held.
func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// sendToLocked delivers a message to a single client. Assumes h.mu is held.
func (h *Hub) sendToLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// GameEvents implementation. The engine calls these synchronously while
// the run loop holds h.mu, so they may touch the clients map directly.

func (h *Hub) OrderCreated(order *Order) {
	h.broadcastLocked(OrderCreatedMessage{
		Type:  "order_created",
		Order: h.orderViewLocked(order),
	})
}

func (h *Hub) OrderTick(id, remaining, percent int, urgency Urgency) {
	h.broadcastLocked(OrderTickMessage{
		Type:      "order_tick",
		OrderID:   id,
		Remaining: remaining,
		Percent:   percent,
		Urgency:   urgency.String(),
	})
}

func (h *Hub) OrderServed(id, score int) {
	h.broadcastLocked(OrderResolvedMessage{
		Type:    "order_served",
		OrderID: id,
		Score:   score,
	})
}

func (h *Hub) OrderExpired(id, score int) {
	h.broadcastLocked(OrderResolvedMessage{
		Type:    "order_expired",
		OrderID: id,
		Score:   score,
	})
}

func (h *Hub) OrderRemoved(id int) {
	h.broadcastLocked(OrderRemovedMessage{
		Type:    "order_removed",
		OrderID: id,
	})
}

func (h *Hub) SelectionChanged(selection []string, servable []int) {
	if selection == nil {
		selection = []string{}
	}
	if servable == nil {
		servable = []int{}
	}
	h.broadcastLocked(SelectionMessage{
		Type:      "selection",
		Selection: selection,
		Servable:  servable,
	})
}

// closeAll shuts down the run loop, cancels pending removals, and
// disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.stop:
	default:
		close(h.stop)
	}

	for id, timer := range h.removals {
		timer.Stop()
		delete(h.removals, id)
	}

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "kitchenrush_id"

func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cfg.playerTimeout.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated kitchen.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	catalog     *Catalog
	idleTimeout time.Duration
}

func newGameManager(catalog *Catalog, idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		catalog:     catalog,
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, gameID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[gameID]; ok {
		return hub, nil
	}

	hub, err := newHub(gameID, gm.catalog, cfg.rules())
	if err != nil {
		return nil, err
	}
	gm.hubs[gameID] = hub
	go hub.run(cfg)
	return hub, nil
}

// newGameID generates a crypto-random game ID and ensures it doesn't
// collide with existing games.
func (gm *GameManager) newGameID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[id]
		gm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for id, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(gm.hubs, id)
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(cfg, w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub, err := gm.getHub(cfg, gameID)
		if err != nil {
			log.Println("hub error:", err)
			http.Error(w, "unable to create game", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case hub.register <- client:
		case <-hub.stop:
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.stop:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "start", "add_ingredient", "serve", "reset":
			select {
			case h.commands <- command{client: c, msg: msg}:
			case <-h.stop:
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed kitchen/index.html
var indexHTML []byte

//go:embed kitchen/app.css
var kitchenCSS []byte

//go:embed kitchen/app.js
var kitchenJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(cfg, w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(kitchenCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(kitchenJS)
	}
}

// redirectNewGame handles GET /path by generating a new random game ID
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := gm.newGameID()
		logf(cfg, "GAMES: Created game %s/%s", path, gameID)
		http.Redirect(w, r, path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

// registerKitchenGame sets up routes so that:
//   - $path                  → redirects to new random game (8-char ID)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that game
//   - $path/:gameid/qr       → PNG QR code for that game URL
func registerKitchenGame(cfg *Config, path string, mux *httprouter.Router) {
	gm := newGameManager(defaultCatalog(), cfg.sessionTimeout)

	// Root path → redirect to new random game
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path, gm))

	// Per-game client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/kitchen/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/kitchen/app.js", getJsHandler(cfg))

	// Per-game websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
