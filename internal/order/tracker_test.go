package order

import (
	"context"
	"testing"

	"autotrader/internal/events"
	"autotrader/pkg/exchanges/common"
)

type fakeGateway struct {
	placeRes  common.OrderResult
	placeErr  error
	cancelRes common.OrderResult
	cancelErr error
	queryRes  common.OrderResult
	queryErr  error
	openRes   []common.OrderResult
	openErr   error

	placed  []common.OrderRequest
	queried []string
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.placed = append(f.placed, req)
	res := f.placeRes
	if res.ClientID == "" {
		res.ClientID = req.ClientID
	}
	return res, f.placeErr
}

func (f *fakeGateway) CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) (common.OrderResult, error) {
	return f.cancelRes, f.cancelErr
}

func (f *fakeGateway) QueryOrder(ctx context.Context, symbol string, exchangeOrderID int64, clientID string) (common.OrderResult, error) {
	f.queried = append(f.queried, clientID)
	res := f.queryRes
	if res.ClientID == "" {
		res.ClientID = clientID
	}
	return res, f.queryErr
}

func (f *fakeGateway) OpenOrders(ctx context.Context, symbol string) ([]common.OrderResult, error) {
	return f.openRes, f.openErr
}

func limitBuy(clientID string) common.OrderRequest {
	return common.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     common.SideBuy,
		Type:     common.OrderTypeLimit,
		Qty:      0.1,
		Price:    50000,
		ClientID: clientID,
	}
}

func TestPlaceTracksAcknowledgedOrder(t *testing.T) {
	gw := &fakeGateway{placeRes: common.OrderResult{
		ExchangeOrderID: 7, Status: common.StatusNew,
	}}
	tr := NewTracker(gw, nil, nil)

	tracked, err := tr.Place(context.Background(), limitBuy("c1"))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if tracked.Status != common.StatusNew {
		t.Errorf("status = %s, want NEW", tracked.Status)
	}
	if tracked.ExchangeOrderID != 7 {
		t.Errorf("exchange id = %d, want 7", tracked.ExchangeOrderID)
	}
	if got := tr.ByExchangeID(7); got == nil || got.ClientID != "c1" {
		t.Errorf("ByExchangeID(7) = %#v", got)
	}
	if len(tr.Active()) != 1 {
		t.Errorf("active = %d, want 1", len(tr.Active()))
	}
}

func TestPlaceAssignsClientID(t *testing.T) {
	gw := &fakeGateway{placeRes: common.OrderResult{Status: common.StatusNew}}
	tr := NewTracker(gw, nil, nil)

	tracked, err := tr.Place(context.Background(), limitBuy(""))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if tracked.ClientID == "" {
		t.Fatal("expected a generated client id")
	}
	if gw.placed[0].ClientID != tracked.ClientID {
		t.Error("generated client id must be sent to the venue")
	}
}

func TestPlaceTimeoutResolvesViaQuery(t *testing.T) {
	gw := &fakeGateway{
		placeErr: common.NewTimeoutError("order.place timed out"),
		queryRes: common.OrderResult{ExchangeOrderID: 9, Status: common.StatusFilled, ExecutedQty: 0.1},
	}
	tr := NewTracker(gw, nil, nil)

	tracked, err := tr.Place(context.Background(), limitBuy("c1"))
	if err == nil {
		t.Fatal("expected the timeout to surface")
	}
	if !common.IsKind(err, common.KindTimeout) {
		t.Fatalf("expected timeout kind, got %v", err)
	}
	if tracked.Status != common.StatusFilled {
		t.Errorf("status = %s, want FILLED after resolving query", tracked.Status)
	}
	if len(gw.queried) != 1 || gw.queried[0] != "c1" {
		t.Errorf("queried = %v, want [c1]", gw.queried)
	}
}

func TestPlaceTimeoutUnresolvedStaysUnknown(t *testing.T) {
	gw := &fakeGateway{
		placeErr: common.NewTimeoutError("order.place timed out"),
		queryErr: common.NewConnectionError("connection lost", nil),
	}
	tr := NewTracker(gw, nil, nil)

	tracked, _ := tr.Place(context.Background(), limitBuy("c1"))
	if tracked.Status != common.StatusUnknown {
		t.Errorf("status = %s, want UNKNOWN", tracked.Status)
	}
	if len(tr.Active()) != 1 {
		t.Error("unresolved order must stay tracked")
	}
}

func TestPlaceRemoteRejection(t *testing.T) {
	gw := &fakeGateway{placeErr: common.NewRemoteError(-2010, "insufficient balance")}
	tr := NewTracker(gw, nil, nil)

	tracked, err := tr.Place(context.Background(), limitBuy("c1"))
	if !common.IsKind(err, common.KindRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if tracked.Status != common.StatusRejected {
		t.Errorf("status = %s, want REJECTED", tracked.Status)
	}
}

func TestPlaceRejectsDuplicateClientID(t *testing.T) {
	gw := &fakeGateway{placeRes: common.OrderResult{Status: common.StatusNew}}
	tr := NewTracker(gw, nil, nil)

	if _, err := tr.Place(context.Background(), limitBuy("dup")); err != nil {
		t.Fatalf("first place: %v", err)
	}
	if _, err := tr.Place(context.Background(), limitBuy("dup")); !common.IsKind(err, common.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	gw := &fakeGateway{placeRes: common.OrderResult{Status: common.StatusFilled, ExecutedQty: 0.1}}
	tr := NewTracker(gw, nil, nil)

	if _, err := tr.Place(context.Background(), limitBuy("c1")); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := tr.Cancel(context.Background(), "c1"); !common.IsKind(err, common.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	gw := &fakeGateway{placeRes: common.OrderResult{Status: common.StatusNew}}
	tr := NewTracker(gw, nil, nil)

	if _, err := tr.Place(context.Background(), limitBuy("c1")); err != nil {
		t.Fatalf("Place: %v", err)
	}

	tr.HandleUpdate(context.Background(), "BTCUSDT", common.OrderResult{
		ClientID: "c1", Status: common.StatusFilled, ExecutedQty: 0.1,
	})
	// A late, out-of-order NEW update must not reopen the order.
	tr.HandleUpdate(context.Background(), "BTCUSDT", common.OrderResult{
		ClientID: "c1", Status: common.StatusNew,
	})

	if got := tr.Get("c1").Status; got != common.StatusFilled {
		t.Errorf("status = %s, want FILLED", got)
	}
}

func TestHandleUpdateAdoptsUnknownOrder(t *testing.T) {
	tr := NewTracker(&fakeGateway{}, nil, nil)

	tr.HandleUpdate(context.Background(), "ETHUSDT", common.OrderResult{
		ClientID: "external-1", ExchangeOrderID: 55, Status: common.StatusNew,
	})

	got := tr.Get("external-1")
	if got == nil {
		t.Fatal("expected the external order to be adopted")
	}
	if got.Request.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %s, want ETHUSDT", got.Request.Symbol)
	}
}

func TestReconcileAdoptsAndFlags(t *testing.T) {
	gw := &fakeGateway{
		placeRes: common.OrderResult{ExchangeOrderID: 1, Status: common.StatusNew},
		openRes: []common.OrderResult{
			{ClientID: "venue-only", ExchangeOrderID: 2, Symbol: "ETHUSDT", Status: common.StatusNew},
		},
		queryErr: common.NewRemoteError(-2013, "Order does not exist"),
	}
	bus := events.NewBus()
	ambiguousCh, unsub := bus.Subscribe(events.EventOrderAmbiguous, 1)
	defer unsub()

	tr := NewTracker(gw, nil, bus)
	if _, err := tr.Place(context.Background(), limitBuy("local-only")); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := tr.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// Venue-only order adopted, never dropped.
	if tr.Get("venue-only") == nil {
		t.Error("venue-only order was not adopted")
	}
	// Local order missing from the venue is flagged, never deleted.
	local := tr.Get("local-only")
	if local == nil {
		t.Fatal("local order must survive reconciliation")
	}
	if !local.Ambiguous {
		t.Error("local-only order should be flagged ambiguous")
	}
	select {
	case <-ambiguousCh:
	default:
		t.Error("expected an ambiguity event on the bus")
	}
}

func TestReconcileResolvesTerminalOrders(t *testing.T) {
	gw := &fakeGateway{
		placeRes: common.OrderResult{ExchangeOrderID: 1, Status: common.StatusNew},
		queryRes: common.OrderResult{ExchangeOrderID: 1, Status: common.StatusFilled, ExecutedQty: 0.1},
	}
	tr := NewTracker(gw, nil, nil)
	if _, err := tr.Place(context.Background(), limitBuy("c1")); err != nil {
		t.Fatalf("Place: %v", err)
	}

	if err := tr.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got := tr.Get("c1")
	if got.Status != common.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
	if got.Ambiguous {
		t.Error("resolved order must not be ambiguous")
	}
}

func TestPlaceGatedDuringReconciliation(t *testing.T) {
	tr := NewTracker(&fakeGateway{}, nil, nil)
	tr.mu.Lock()
	tr.reconciling = true
	tr.mu.Unlock()

	if _, err := tr.Place(context.Background(), limitBuy("c1")); !common.IsKind(err, common.KindConnection) {
		t.Fatalf("expected placement refusal during reconciliation, got %v", err)
	}
}
