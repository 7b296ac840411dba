package main

import (
	"fmt"
	"math/rand"
	"time"
)

// Rules enumerates every tunable constant of the game. Values come from
// the command-line flags and are validated before a Game is built.
type Rules struct {
	OrderDuration    int // seconds
	MaxActiveOrders  int
	MinOrderInterval time.Duration
	MaxOrderInterval time.Duration
	ServePoints      int
	ExpiryPenalty    int
	WarnThreshold    int // percent remaining at or below which an order is urgent
	DangerThreshold  int // percent remaining at or below which an order is critical
	RemovalDelay     time.Duration
}

func defaultRules() Rules {
	return Rules{
		OrderDuration:    30,
		MaxActiveOrders:  4,
		MinOrderInterval: 2 * time.Second,
		MaxOrderInterval: 5 * time.Second,
		ServePoints:      2,
		ExpiryPenalty:    10,
		WarnThreshold:    40,
		DangerThreshold:  20,
		RemovalDelay:     500 * time.Millisecond,
	}
}

// AddResult is the outcome of staging an ingredient.
type AddResult int

const (
	AddOK AddResult = iota
	AddDuplicate
	AddInvalid
)

// ServeOutcome is the outcome of a serve attempt.
type ServeOutcome int

const (
	// ServedOK means the order was active, the selection matched, and the
	// order transitioned to Served.
	ServedOK ServeOutcome = iota
	// ServeStale means the order is unknown or already terminal; the
	// attempt is treated as a benign race and ignored.
	ServeStale
	// ServeMismatch means the order is active but the selection does not
	// match its recipe. Well-behaved callers gate on ServableOrders and
	// never hit this.
	ServeMismatch
)

// GameEvents receives notifications as game state changes. Score changes
// ride along on the served/expired events that cause them. Implementations
// are called synchronously after the mutation has been fully applied.
type GameEvents interface {
	OrderCreated(order *Order)
	OrderTick(id, remaining, percent int, urgency Urgency)
	OrderServed(id, score int)
	OrderExpired(id, score int)
	OrderRemoved(id int)
	SelectionChanged(selection []string, servable []int)
}

type noopEvents struct{}

func (noopEvents) OrderCreated(*Order)              {}
func (noopEvents) OrderTick(int, int, int, Urgency) {}
func (noopEvents) OrderServed(int, int)             {}
func (noopEvents) OrderExpired(int, int)            {}
func (noopEvents) OrderRemoved(int)                 {}
func (noopEvents) SelectionChanged([]string, []int) {}

// Game is one kitchen session: the score, the active orders, and the
// ingredients currently staged in the preparation area.
//
// Game is not safe for concurrent use. The owning hub's run loop is the
// single writer; tests drive it from one goroutine.
type Game struct {
	catalog   *Catalog
	rules     Rules
	events    GameEvents
	rng       *rand.Rand
	score     int
	orders    []*Order
	selection []string
	nextID    int
	started   bool
}

// NewGame creates a session over the given catalog and rules. A nil or
// empty catalog is a configuration error.
func NewGame(catalog *Catalog, rules Rules, events GameEvents, seed int64) (*Game, error) {
	if catalog == nil || len(catalog.Recipes) == 0 {
		return nil, fmt.Errorf("cannot start a game without recipes")
	}
	if events == nil {
		events = noopEvents{}
	}
	return &Game{
		catalog: catalog,
		rules:   rules,
		events:  events,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Start begins the session. Returns false if it was already started.
func (g *Game) Start() bool {
	if g.started {
		return false
	}
	g.started = true
	return true
}

// Started reports whether the session has begun.
func (g *Game) Started() bool {
	return g.started
}

// Score returns the current score.
func (g *Game) Score() int {
	return g.score
}

// Selection returns a copy of the currently staged ingredients.
func (g *Game) Selection() []string {
	return append([]string(nil), g.selection...)
}

// Orders returns the orders still present in the session, including
// terminal ones awaiting removal.
func (g *Game) Orders() []*Order {
	return append([]*Order(nil), g.orders...)
}

func (g *Game) activeCount() int {
	n := 0
	for _, o := range g.orders {
		if o.Status == OrderActive {
			n++
		}
	}
	return n
}

func (g *Game) find(id int) *Order {
	for _, o := range g.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// SpawnOrder creates a new order from a random recipe, if the session has
// started and the active-order limit allows it. Returns nil when the
// attempt is a no-op; the caller re-arms its spawn timer either way.
func (g *Game) SpawnOrder() *Order {
	if !g.started || g.activeCount() >= g.rules.MaxActiveOrders {
		return nil
	}

	g.nextID++
	order := &Order{
		ID:        g.nextID,
		Recipe:    g.catalog.Recipes[g.rng.Intn(len(g.catalog.Recipes))],
		Remaining: g.rules.OrderDuration,
		Status:    OrderActive,
	}
	g.orders = append(g.orders, order)

	g.events.OrderCreated(order)
	return order
}

// NextSpawnDelay draws the delay before the next generation attempt,
// uniform across the configured interval.
func (g *Game) NextSpawnDelay() time.Duration {
	spread := g.rules.MaxOrderInterval - g.rules.MinOrderInterval
	if spread <= 0 {
		return g.rules.MinOrderInterval
	}
	return g.rules.MinOrderInterval + time.Duration(g.rng.Int63n(int64(spread)))
}

// AddIngredient stages an ingredient. Unknown ingredients and duplicates
// are rejected without changing state.
func (g *Game) AddIngredient(ingredient string) AddResult {
	if !g.catalog.Valid(ingredient) {
		return AddInvalid
	}
	for _, staged := range g.selection {
		if staged == ingredient {
			return AddDuplicate
		}
	}

	g.selection = append(g.selection, ingredient)
	g.events.SelectionChanged(g.Selection(), g.ServableOrders())
	return AddOK
}

// ResetPreparation empties the preparation area unconditionally.
func (g *Game) ResetPreparation() {
	g.selection = nil
	g.events.SelectionChanged(nil, nil)
}

// CanServe reports whether the staged selection exactly matches the
// recipe of the given order and the order is still active.
func (g *Game) CanServe(id int) bool {
	order := g.find(id)
	if order == nil || order.Status != OrderActive {
		return false
	}
	return matchesRecipe(g.selection, order.Recipe)
}

// ServableOrders returns the IDs of all active orders the current
// selection would satisfy.
func (g *Game) ServableOrders() []int {
	var ids []int
	for _, o := range g.orders {
		if o.Status == OrderActive && matchesRecipe(g.selection, o.Recipe) {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Serve resolves an order against the staged selection. Unknown or
// terminal orders are a stale no-op. The match is re-checked here even
// though callers are expected to gate on ServableOrders.
func (g *Game) Serve(id int) ServeOutcome {
	order := g.find(id)
	if order == nil || order.Status != OrderActive {
		return ServeStale
	}
	if !matchesRecipe(g.selection, order.Recipe) {
		return ServeMismatch
	}

	order.Status = OrderServed
	g.score += g.rules.ServePoints
	g.selection = nil

	g.events.OrderServed(order.ID, g.score)
	g.events.SelectionChanged(nil, nil)
	return ServedOK
}

// Expire times out an order: terminal states are left alone, otherwise
// the order transitions to Expired and the penalty is applied, floored
// at zero. Idempotent.
func (g *Game) Expire(id int) {
	order := g.find(id)
	if order == nil {
		return
	}
	g.expire(order)
}

func (g *Game) expire(order *Order) {
	if order.Status != OrderActive {
		return
	}

	order.Status = OrderExpired
	g.score -= g.rules.ExpiryPenalty
	if g.score < 0 {
		g.score = 0
	}

	g.events.OrderExpired(order.ID, g.score)
}

// Remove drops a terminal order from the session. Called once the
// presentation layer has had its removal delay; active orders are never
// removed this way.
func (g *Game) Remove(id int) {
	for i, o := range g.orders {
		if o.ID != id {
			continue
		}
		if o.Status == OrderActive {
			return
		}
		g.orders = append(g.orders[:i], g.orders[i+1:]...)
		g.events.OrderRemoved(id)
		return
	}
}

// Urgency maps a percent-remaining value onto its tier.
func (r Rules) Urgency(percent int) Urgency {
	switch {
	case percent <= r.DangerThreshold:
		return UrgencyDanger
	case percent <= r.WarnThreshold:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// Tick advances every active order by one second, emitting a tick event
// per order and expiring those that reach zero. Expired orders are
// returned so the caller can schedule their delayed removal.
func (g *Game) Tick() []*Order {
	var expired []*Order

	for _, order := range g.orders {
		if order.Status != OrderActive {
			continue
		}

		order.Remaining--
		if order.Remaining < 0 {
			order.Remaining = 0
		}

		percent := order.Percent(g.rules.OrderDuration)
		g.events.OrderTick(order.ID, order.Remaining, percent, g.rules.Urgency(percent))

		if order.Remaining <= 0 {
			g.expire(order)
			expired = append(expired, order)
		}
	}

	return expired
}
