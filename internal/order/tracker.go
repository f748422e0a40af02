package order

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotrader/internal/events"
	"autotrader/pkg/db"
	"autotrader/pkg/exchanges/common"
)

// Tracked is the local view of one order through its lifecycle.
type Tracked struct {
	ClientID        string
	ExchangeOrderID int64
	Request         common.OrderRequest
	Status          common.OrderStatus
	ExecutedQty     float64
	// Ambiguous marks orders whose venue state could not be confirmed during
	// reconciliation. They stay tracked until an operator or a later query
	// resolves them.
	Ambiguous bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tracker owns the order state machine: it submits through the gateway,
// applies acknowledgements and stream updates, and reconciles local state
// against the venue after a reconnect. Venue state always wins; local orders
// are never silently discarded.
type Tracker struct {
	gateway common.Gateway
	store   *db.Database // optional audit trail
	bus     *events.Bus

	mu           sync.RWMutex
	orders       map[string]*Tracked // by client order id
	byExchangeID map[int64]string
	reconciling  bool
}

// NewTracker creates an order lifecycle tracker. store and bus may be nil.
func NewTracker(gateway common.Gateway, store *db.Database, bus *events.Bus) *Tracker {
	return &Tracker{
		gateway:      gateway,
		store:        store,
		bus:          bus,
		orders:       make(map[string]*Tracked),
		byExchangeID: make(map[int64]string),
	}
}

// Place submits an order and tracks it. While a reconciliation pass is in
// flight new placements are refused, so orders never race a state merge.
func (t *Tracker) Place(ctx context.Context, req common.OrderRequest) (*Tracked, error) {
	t.mu.Lock()
	if t.reconciling {
		t.mu.Unlock()
		return nil, common.NewConnectionError("order placement suspended during reconciliation", nil)
	}
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if _, exists := t.orders[req.ClientID]; exists {
		t.mu.Unlock()
		return nil, common.NewValidationError("duplicate client order id " + req.ClientID)
	}
	now := time.Now()
	tracked := &Tracked{
		ClientID:  req.ClientID,
		Request:   req,
		Status:    common.StatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.orders[req.ClientID] = tracked
	t.mu.Unlock()

	res, err := t.gateway.PlaceOrder(ctx, req)
	switch {
	case err == nil:
		t.applyResult(ctx, req.ClientID, res)
	case common.IsKind(err, common.KindTimeout):
		// The venue may have accepted the order; keep it UNKNOWN and resolve
		// with an idempotent status query.
		log.Printf("[order] %s timed out, resolving via query", req.ClientID)
		if _, qerr := t.QueryStatus(ctx, req.ClientID); qerr != nil {
			log.Printf("[order] %s still unresolved: %v", req.ClientID, qerr)
		}
	case common.IsKind(err, common.KindRemote):
		t.setStatus(ctx, req.ClientID, common.StatusRejected)
	default:
		// Connection-level failure before any acknowledgement. The order may
		// or may not exist on the venue; keep it for reconciliation.
		log.Printf("[order] %s submit failed: %v", req.ClientID, err)
	}
	if err != nil {
		return t.Get(req.ClientID), err
	}
	return t.Get(req.ClientID), nil
}

// Cancel cancels a tracked order on the venue.
func (t *Tracker) Cancel(ctx context.Context, clientID string) (*Tracked, error) {
	tracked := t.Get(clientID)
	if tracked == nil {
		return nil, common.NewValidationError("unknown order " + clientID)
	}
	if tracked.Status.IsTerminal() {
		return tracked, common.NewValidationError("order " + clientID + " is already terminal")
	}

	res, err := t.gateway.CancelOrder(ctx, tracked.Request.Symbol, tracked.ExchangeOrderID)
	if err != nil {
		if common.IsKind(err, common.KindTimeout) {
			if resolved, qerr := t.QueryStatus(ctx, clientID); qerr == nil {
				return resolved, nil
			}
		}
		return t.Get(clientID), err
	}
	if res.ClientID == "" {
		res.ClientID = clientID
	}
	t.applyResult(ctx, clientID, res)
	return t.Get(clientID), nil
}

// QueryStatus fetches authoritative state from the venue and applies it.
func (t *Tracker) QueryStatus(ctx context.Context, clientID string) (*Tracked, error) {
	tracked := t.Get(clientID)
	if tracked == nil {
		return nil, common.NewValidationError("unknown order " + clientID)
	}

	res, err := t.gateway.QueryOrder(ctx, tracked.Request.Symbol, tracked.ExchangeOrderID, clientID)
	if err != nil {
		return tracked, err
	}
	if res.ClientID == "" {
		res.ClientID = clientID
	}
	t.applyResult(ctx, clientID, res)
	return t.Get(clientID), nil
}

// HandleUpdate applies an asynchronous order update, e.g. from a user data
// stream. Unknown orders are adopted rather than dropped.
func (t *Tracker) HandleUpdate(ctx context.Context, symbol string, res common.OrderResult) {
	t.mu.RLock()
	_, known := t.orders[res.ClientID]
	t.mu.RUnlock()

	if !known {
		t.adopt(ctx, symbol, res)
		return
	}
	t.applyResult(ctx, res.ClientID, res)
}

// Get returns a copy of the tracked order, or nil.
func (t *Tracker) Get(clientID string) *Tracked {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tracked, ok := t.orders[clientID]
	if !ok {
		return nil
	}
	cp := *tracked
	return &cp
}

// ByExchangeID resolves a venue order id to the tracked order.
func (t *Tracker) ByExchangeID(id int64) *Tracked {
	t.mu.RLock()
	clientID, ok := t.byExchangeID[id]
	t.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.Get(clientID)
}

// Active returns all orders that are not in a terminal state.
func (t *Tracker) Active() []Tracked {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Tracked, 0, len(t.orders))
	for _, tracked := range t.orders {
		if !tracked.Status.IsTerminal() {
			out = append(out, *tracked)
		}
	}
	return out
}

// Ambiguous returns orders flagged during reconciliation.
func (t *Tracker) Ambiguous() []Tracked {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Tracked
	for _, tracked := range t.orders {
		if tracked.Ambiguous {
			out = append(out, *tracked)
		}
	}
	return out
}

// Reconcile merges local state with the venue's open orders after a
// reconnect. Venue-only orders are adopted; local active orders missing from
// the venue are queried one by one, and flagged ambiguous when the venue
// cannot account for them.
func (t *Tracker) Reconcile(ctx context.Context) error {
	t.mu.Lock()
	if t.reconciling {
		t.mu.Unlock()
		return nil
	}
	t.reconciling = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.reconciling = false
		t.mu.Unlock()
	}()

	venueOrders, err := t.gateway.OpenOrders(ctx, "")
	if err != nil {
		return err
	}

	venueByClient := make(map[string]common.OrderResult, len(venueOrders))
	for _, res := range venueOrders {
		venueByClient[res.ClientID] = res
	}

	adopted, flagged := 0, 0
	for _, res := range venueOrders {
		t.mu.RLock()
		_, known := t.orders[res.ClientID]
		t.mu.RUnlock()
		if !known {
			t.adopt(ctx, "", res)
			adopted++
		} else {
			t.applyResult(ctx, res.ClientID, res)
		}
	}

	for _, tracked := range t.Active() {
		if _, onVenue := venueByClient[tracked.ClientID]; onVenue {
			continue
		}
		// Not in the open set: either it went terminal while we were away, or
		// the venue never saw it.
		res, err := t.gateway.QueryOrder(ctx, tracked.Request.Symbol, tracked.ExchangeOrderID, tracked.ClientID)
		if err == nil {
			if res.ClientID == "" {
				res.ClientID = tracked.ClientID
			}
			t.applyResult(ctx, tracked.ClientID, res)
			continue
		}
		if common.IsKind(err, common.KindRemote) {
			// The venue has no record of this order.
			t.flagAmbiguous(ctx, tracked.ClientID)
			flagged++
			continue
		}
		return err
	}

	log.Printf("[order] reconciled: %d venue orders, %d adopted, %d ambiguous", len(venueOrders), adopted, flagged)
	if t.bus != nil {
		t.bus.Publish(events.EventReconciled, map[string]int{
			"venue_open": len(venueOrders),
			"adopted":    adopted,
			"ambiguous":  flagged,
		})
	}
	return nil
}

// Reconciling reports whether a reconciliation pass is in flight.
func (t *Tracker) Reconciling() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reconciling
}

func (t *Tracker) adopt(ctx context.Context, symbol string, res common.OrderResult) {
	clientID := res.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if symbol == "" {
		symbol = res.Symbol
	}
	now := time.Now()

	t.mu.Lock()
	tracked := &Tracked{
		ClientID:        clientID,
		ExchangeOrderID: res.ExchangeOrderID,
		Request:         common.OrderRequest{Symbol: symbol, ClientID: clientID},
		Status:          res.Status,
		ExecutedQty:     res.ExecutedQty,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.orders[clientID] = tracked
	if res.ExchangeOrderID != 0 {
		t.byExchangeID[res.ExchangeOrderID] = clientID
	}
	t.mu.Unlock()

	log.Printf("[order] adopted venue order %s (%d) status=%s", clientID, res.ExchangeOrderID, res.Status)
	t.persist(ctx, t.Get(clientID))
	t.publishUpdate(clientID)
}

func (t *Tracker) applyResult(ctx context.Context, clientID string, res common.OrderResult) {
	t.mu.Lock()
	tracked, ok := t.orders[clientID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if res.ExchangeOrderID != 0 {
		tracked.ExchangeOrderID = res.ExchangeOrderID
		t.byExchangeID[res.ExchangeOrderID] = clientID
	}
	if res.Symbol != "" && tracked.Request.Symbol == "" {
		tracked.Request.Symbol = res.Symbol
	}
	if res.ExecutedQty > tracked.ExecutedQty {
		tracked.ExecutedQty = res.ExecutedQty
	}
	if canTransition(tracked.Status, res.Status) {
		tracked.Status = res.Status
	}
	tracked.Ambiguous = false
	tracked.UpdatedAt = time.Now()
	t.mu.Unlock()

	t.persist(ctx, t.Get(clientID))
	t.publishUpdate(clientID)
}

func (t *Tracker) setStatus(ctx context.Context, clientID string, status common.OrderStatus) {
	t.mu.Lock()
	tracked, ok := t.orders[clientID]
	if ok && canTransition(tracked.Status, status) {
		tracked.Status = status
		tracked.UpdatedAt = time.Now()
	}
	t.mu.Unlock()
	if ok {
		t.persist(ctx, t.Get(clientID))
		t.publishUpdate(clientID)
	}
}

func (t *Tracker) flagAmbiguous(ctx context.Context, clientID string) {
	t.mu.Lock()
	tracked, ok := t.orders[clientID]
	if ok {
		tracked.Ambiguous = true
		tracked.UpdatedAt = time.Now()
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	log.Printf("[order] %s has no venue record, flagged for manual review", clientID)
	t.persist(ctx, t.Get(clientID))
	if t.bus != nil {
		t.bus.Publish(events.EventOrderAmbiguous, *t.Get(clientID))
	}
}

func (t *Tracker) publishUpdate(clientID string) {
	if t.bus == nil {
		return
	}
	if tracked := t.Get(clientID); tracked != nil {
		t.bus.Publish(events.EventOrderUpdate, *tracked)
	}
}

func (t *Tracker) persist(ctx context.Context, tracked *Tracked) {
	if t.store == nil || tracked == nil {
		return
	}
	rec := db.OrderRecord{
		ClientID:        tracked.ClientID,
		ExchangeOrderID: tracked.ExchangeOrderID,
		Symbol:          tracked.Request.Symbol,
		Side:            string(tracked.Request.Side),
		OrderType:       string(tracked.Request.Type),
		Price:           tracked.Request.Price,
		Qty:             tracked.Request.Qty,
		ExecutedQty:     tracked.ExecutedQty,
		Status:          string(tracked.Status),
		Ambiguous:       tracked.Ambiguous,
	}
	if err := t.store.UpsertOrder(ctx, rec); err != nil {
		log.Printf("[order] audit write for %s failed: %v", tracked.ClientID, err)
	}
}

// canTransition enforces forward-only lifecycle moves: terminal states are
// final, and a fill never regresses to NEW.
func canTransition(from, to common.OrderStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	switch from {
	case common.StatusUnknown:
		return true
	case common.StatusNew:
		return to != common.StatusUnknown
	case common.StatusPartially:
		return to != common.StatusUnknown && to != common.StatusNew
	}
	return false
}
