package main

import (
	"testing"
	"time"
)

// recorder collects engine events for assertions.
type recorder struct {
	created    []int
	served     []int
	expired    []int
	removed    []int
	ticks      map[int][]int // order ID -> remaining values, in emission order
	selections [][]string
	lastScore  int
}

func newRecorder() *recorder {
	return &recorder{ticks: make(map[int][]int)}
}

func (r *recorder) OrderCreated(order *Order) {
	r.created = append(r.created, order.ID)
}

func (r *recorder) OrderTick(id, remaining, percent int, urgency Urgency) {
	r.ticks[id] = append(r.ticks[id], remaining)
}

func (r *recorder) OrderServed(id, score int) {
	r.served = append(r.served, id)
	r.lastScore = score
}

func (r *recorder) OrderExpired(id, score int) {
	r.expired = append(r.expired, id)
	r.lastScore = score
}

func (r *recorder) OrderRemoved(id int) {
	r.removed = append(r.removed, id)
}

func (r *recorder) SelectionChanged(selection []string, servable []int) {
	r.selections = append(r.selections, selection)
}

// pastaCatalog returns a single-recipe catalog so spawned orders are
// predictable.
func pastaCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := newCatalog(
		[]Recipe{
			{
				Name:        "Paturain Pasta",
				Description: "Creamy pasta",
				Ingredients: []string{"pasta", "paturain", "knoflook", "peterselie"},
			},
		},
		[]string{"pasta", "paturain", "knoflook", "peterselie", "ui", "paprika"},
	)
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return catalog
}

func newTestGame(t *testing.T, rules Rules) (*Game, *recorder) {
	t.Helper()
	rec := newRecorder()
	game, err := NewGame(pastaCatalog(t), rules, rec, 1)
	if err != nil {
		t.Fatalf("creating game: %v", err)
	}
	return game, rec
}

func spawnOne(t *testing.T, game *Game) *Order {
	t.Helper()
	game.Start()
	order := game.SpawnOrder()
	if order == nil {
		t.Fatal("expected an order to spawn")
	}
	return order
}

func TestNewGameRequiresCatalog(t *testing.T) {
	if _, err := NewGame(nil, defaultRules(), nil, 1); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestMatchesRecipe(t *testing.T) {
	recipe := Recipe{
		Name:        "Paturain Pasta",
		Ingredients: []string{"pasta", "paturain", "knoflook", "peterselie"},
	}

	tests := []struct {
		name      string
		selection []string
		want      bool
	}{
		{"exact in recipe order", []string{"pasta", "paturain", "knoflook", "peterselie"}, true},
		{"exact shuffled", []string{"peterselie", "knoflook", "paturain", "pasta"}, true},
		{"subset", []string{"pasta", "paturain"}, false},
		{"superset", []string{"pasta", "paturain", "knoflook", "peterselie", "ui"}, false},
		{"same size, wrong ingredient", []string{"pasta", "paturain", "knoflook", "ui"}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesRecipe(tt.selection, recipe); got != tt.want {
				t.Fatalf("matchesRecipe(%v) = %v, want %v", tt.selection, got, tt.want)
			}
		})
	}
}

func TestAddIngredient(t *testing.T) {
	game, _ := newTestGame(t, defaultRules())

	tests := []struct {
		name       string
		ingredient string
		want       AddResult
		wantSize   int
	}{
		{"valid ingredient", "paturain", AddOK, 1},
		{"duplicate rejected", "paturain", AddDuplicate, 1},
		{"second ingredient", "pasta", AddOK, 2},
		{"unknown ingredient", "cheddar", AddInvalid, 2},
		{"empty ingredient", "", AddInvalid, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := game.AddIngredient(tt.ingredient); got != tt.want {
				t.Fatalf("AddIngredient(%q) = %v, want %v", tt.ingredient, got, tt.want)
			}
			if len(game.Selection()) != tt.wantSize {
				t.Fatalf("selection size = %d, want %d", len(game.Selection()), tt.wantSize)
			}
		})
	}
}

func TestServeSuccess(t *testing.T) {
	game, rec := newTestGame(t, defaultRules())
	order := spawnOne(t, game)

	// Add the four required ingredients in a different order than the
	// recipe lists them.
	for _, ingredient := range []string{"knoflook", "pasta", "peterselie", "paturain"} {
		if got := game.AddIngredient(ingredient); got != AddOK {
			t.Fatalf("AddIngredient(%q) = %v", ingredient, got)
		}
	}

	if !game.CanServe(order.ID) {
		t.Fatal("expected order to be servable after staging its recipe")
	}
	if ids := game.ServableOrders(); len(ids) != 1 || ids[0] != order.ID {
		t.Fatalf("ServableOrders() = %v, want [%d]", ids, order.ID)
	}

	if got := game.Serve(order.ID); got != ServedOK {
		t.Fatalf("Serve() = %v, want ServedOK", got)
	}
	if order.Status != OrderServed {
		t.Fatalf("order status = %s, want served", order.Status)
	}
	if game.Score() != 2 {
		t.Fatalf("score = %d, want 2", game.Score())
	}
	if len(game.Selection()) != 0 {
		t.Fatalf("selection not cleared after serve: %v", game.Selection())
	}
	if len(rec.served) != 1 || rec.served[0] != order.ID {
		t.Fatalf("served events = %v, want [%d]", rec.served, order.ID)
	}
}

func TestSubsetIsNotServable(t *testing.T) {
	game, _ := newTestGame(t, defaultRules())
	order := spawnOne(t, game)

	game.AddIngredient("pasta")
	game.AddIngredient("paturain")

	if game.CanServe(order.ID) {
		t.Fatal("subset of the recipe must not be servable")
	}
	if got := game.Serve(order.ID); got != ServeMismatch {
		t.Fatalf("Serve() = %v, want ServeMismatch", got)
	}
	if game.Score() != 0 {
		t.Fatalf("score changed on mismatch: %d", game.Score())
	}
	if order.Status != OrderActive {
		t.Fatalf("order status = %s, want active", order.Status)
	}
}

func TestServeStaleOrder(t *testing.T) {
	game, _ := newTestGame(t, defaultRules())
	order := spawnOne(t, game)

	game.Expire(order.ID)
	scoreAfterExpiry := game.Score()

	for _, ingredient := range []string{"pasta", "paturain", "knoflook", "peterselie"} {
		game.AddIngredient(ingredient)
	}

	if got := game.Serve(order.ID); got != ServeStale {
		t.Fatalf("Serve() on expired order = %v, want ServeStale", got)
	}
	if game.Score() != scoreAfterExpiry {
		t.Fatalf("stale serve changed score: %d != %d", game.Score(), scoreAfterExpiry)
	}

	if got := game.Serve(999); got != ServeStale {
		t.Fatalf("Serve() on unknown order = %v, want ServeStale", got)
	}
}

func TestExpireIdempotent(t *testing.T) {
	rules := defaultRules()
	rules.ExpiryPenalty = 3
	game, rec := newTestGame(t, rules)
	game.score = 10
	order := spawnOne(t, game)

	game.Expire(order.ID)
	game.Expire(order.ID)

	if order.Status != OrderExpired {
		t.Fatalf("order status = %s, want expired", order.Status)
	}
	if game.Score() != 7 {
		t.Fatalf("score = %d, want 7 (penalty applied once)", game.Score())
	}
	if len(rec.expired) != 1 {
		t.Fatalf("expired events = %v, want exactly one", rec.expired)
	}
}

func TestTickCountdownAndExpiry(t *testing.T) {
	rules := defaultRules()
	rules.OrderDuration = 3
	game, rec := newTestGame(t, rules)
	order := spawnOne(t, game)

	for i := 0; i < 2; i++ {
		if expired := game.Tick(); len(expired) != 0 {
			t.Fatalf("tick %d: unexpected expiry", i+1)
		}
	}
	if order.Remaining != 1 {
		t.Fatalf("remaining = %d after 2 ticks, want 1", order.Remaining)
	}

	expired := game.Tick()
	if len(expired) != 1 || expired[0].ID != order.ID {
		t.Fatalf("expected order %d to expire on tick 3, got %v", order.ID, expired)
	}
	if order.Status != OrderExpired {
		t.Fatalf("order status = %s, want expired", order.Status)
	}
	if order.Remaining != 0 {
		t.Fatalf("remaining = %d at expiry, want 0", order.Remaining)
	}

	// Remaining must have decreased strictly by one each tick.
	want := []int{2, 1, 0}
	got := rec.ticks[order.ID]
	if len(got) != len(want) {
		t.Fatalf("tick events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tick events = %v, want %v", got, want)
		}
	}

	// Terminal orders no longer tick.
	game.Tick()
	if len(rec.ticks[order.ID]) != len(want) {
		t.Fatal("expired order kept ticking")
	}
	if len(rec.expired) != 1 {
		t.Fatalf("expired events = %v, want exactly one", rec.expired)
	}
}

func TestScoreFloorsAtZero(t *testing.T) {
	game, _ := newTestGame(t, defaultRules())
	first := spawnOne(t, game)

	game.Expire(first.ID)
	if game.Score() != 0 {
		t.Fatalf("score = %d, want 0 (floored)", game.Score())
	}

	game.Remove(first.ID)
	second := game.SpawnOrder()
	if second == nil {
		t.Fatal("expected a second order")
	}
	game.Expire(second.ID)
	if game.Score() != 0 {
		t.Fatalf("score = %d after repeated penalties, want 0", game.Score())
	}
}

func TestMaxActiveOrders(t *testing.T) {
	rules := defaultRules()
	rules.MaxActiveOrders = 2
	game, _ := newTestGame(t, rules)
	game.Start()

	first := game.SpawnOrder()
	second := game.SpawnOrder()
	if first == nil || second == nil {
		t.Fatal("expected two orders to spawn")
	}

	if extra := game.SpawnOrder(); extra != nil {
		t.Fatalf("spawn above the limit produced order %d", extra.ID)
	}

	// A terminal order frees its slot even before removal.
	game.Expire(first.ID)
	third := game.SpawnOrder()
	if third == nil {
		t.Fatal("expected a slot after expiry")
	}
	if third.ID == first.ID || third.ID == second.ID {
		t.Fatalf("order ID %d reused", third.ID)
	}
}

func TestSpawnRequiresStart(t *testing.T) {
	game, _ := newTestGame(t, defaultRules())
	if order := game.SpawnOrder(); order != nil {
		t.Fatal("order spawned before the game started")
	}
	if !game.Start() {
		t.Fatal("first Start() returned false")
	}
	if game.Start() {
		t.Fatal("second Start() returned true")
	}
}

func TestResetPreparation(t *testing.T) {
	game, rec := newTestGame(t, defaultRules())
	game.AddIngredient("pasta")
	game.AddIngredient("paturain")

	game.ResetPreparation()
	if len(game.Selection()) != 0 {
		t.Fatalf("selection not cleared: %v", game.Selection())
	}
	if len(rec.selections) != 3 {
		t.Fatalf("selection events = %d, want 3", len(rec.selections))
	}

	// Safe on an already-empty preparation area.
	game.ResetPreparation()
	if len(game.Selection()) != 0 {
		t.Fatal("reset should keep the selection empty")
	}
}

func TestRemove(t *testing.T) {
	game, rec := newTestGame(t, defaultRules())
	order := spawnOne(t, game)

	// Active orders are never removed.
	game.Remove(order.ID)
	if len(game.Orders()) != 1 {
		t.Fatal("active order was removed")
	}

	game.Expire(order.ID)
	game.Remove(order.ID)
	if len(game.Orders()) != 0 {
		t.Fatal("terminal order was not removed")
	}
	if len(rec.removed) != 1 || rec.removed[0] != order.ID {
		t.Fatalf("removed events = %v, want [%d]", rec.removed, order.ID)
	}

	// Removing twice is harmless.
	game.Remove(order.ID)
	if len(rec.removed) != 1 {
		t.Fatal("second removal emitted an event")
	}
}

func TestUrgencyTiers(t *testing.T) {
	rules := defaultRules()

	tests := []struct {
		percent int
		want    Urgency
	}{
		{100, UrgencyNormal},
		{41, UrgencyNormal},
		{40, UrgencyWarning},
		{21, UrgencyWarning},
		{20, UrgencyDanger},
		{0, UrgencyDanger},
	}

	for _, tt := range tests {
		if got := rules.Urgency(tt.percent); got != tt.want {
			t.Fatalf("Urgency(%d) = %s, want %s", tt.percent, got, tt.want)
		}
	}
}

func TestNextSpawnDelayRange(t *testing.T) {
	rules := defaultRules()
	rules.MinOrderInterval = 2 * time.Second
	rules.MaxOrderInterval = 5 * time.Second
	game, _ := newTestGame(t, rules)

	for i := 0; i < 100; i++ {
		d := game.NextSpawnDelay()
		if d < rules.MinOrderInterval || d >= rules.MaxOrderInterval {
			t.Fatalf("spawn delay %s outside [%s, %s)", d, rules.MinOrderInterval, rules.MaxOrderInterval)
		}
	}

	rules.MaxOrderInterval = rules.MinOrderInterval
	fixed, _ := newTestGame(t, rules)
	if d := fixed.NextSpawnDelay(); d != rules.MinOrderInterval {
		t.Fatalf("spawn delay %s with a zero-width interval, want %s", d, rules.MinOrderInterval)
	}
}
