package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"config", NewConfigError("missing key"), KindConfig},
		{"connection", NewConnectionError("dial", errors.New("refused")), KindConnection},
		{"validation", NewValidationError("qty <= 0"), KindValidation},
		{"remote", NewRemoteError(-2010, "insufficient balance"), KindRemote},
		{"timeout", NewTimeoutError("deadline"), KindTimeout},
		{"reconciliation", NewReconciliationError("unconfirmed"), KindReconciliation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !IsKind(tt.err, tt.kind) {
				t.Errorf("IsKind(%v, %s) = false", tt.err, tt.kind)
			}
			if KindOf(tt.err) != tt.kind {
				t.Errorf("KindOf = %s, want %s", KindOf(tt.err), tt.kind)
			}
		})
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors must not classify")
	}
	wrapped := fmt.Errorf("context: %w", NewTimeoutError("deadline"))
	if !IsKind(wrapped, KindTimeout) {
		t.Error("kind must survive wrapping")
	}
}

func TestRemoteErrorKeepsVenuePayload(t *testing.T) {
	err := NewRemoteError(-1102, "Mandatory parameter missing")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("not an *Error")
	}
	if e.Code != -1102 || e.Message != "Mandatory parameter missing" {
		t.Errorf("payload mangled: %+v", e)
	}
}

func TestOrderStatusClassification(t *testing.T) {
	terminal := []OrderStatus{StatusFilled, StatusCanceled, StatusRejected, StatusExpired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.IsActive() {
			t.Errorf("%s should not be active", s)
		}
	}
	if StatusUnknown.IsTerminal() {
		t.Error("UNKNOWN must stay resolvable")
	}
	if !StatusNew.IsActive() || !StatusPartially.IsActive() {
		t.Error("NEW and PARTIALLY_FILLED rest on the book")
	}
}

func TestRateLimiterTracksVenueReports(t *testing.T) {
	rl := NewRateLimiter(6000, time.Minute)

	rl.Update([]RateLimitStatus{
		{RateLimitType: "ORDERS", Count: 9999, Limit: 50}, // ignored type
		{RateLimitType: "REQUEST_WEIGHT", Count: 1200, Limit: 6000},
	})
	used, limit, pct := rl.Usage()
	if used != 1200 || limit != 6000 || pct != 20 {
		t.Errorf("usage = %d/%d (%.1f%%)", used, limit, pct)
	}
	if rl.ShouldDelay() {
		t.Error("20%% usage should not delay")
	}

	rl.Update([]RateLimitStatus{{RateLimitType: "REQUEST_WEIGHT", Count: 5700, Limit: 6000}})
	if !rl.ShouldDelay() {
		t.Error("95%% usage should delay")
	}
}

func TestRateLimiterDecaysAfterWindow(t *testing.T) {
	rl := NewRateLimiter(6000, 10*time.Millisecond)
	rl.Update([]RateLimitStatus{{RateLimitType: "REQUEST_WEIGHT", Count: 3000, Limit: 6000}})

	time.Sleep(20 * time.Millisecond)
	used, _, pct := rl.Usage()
	if used != 0 || pct != 0 {
		t.Errorf("usage did not decay: %d (%.1f%%)", used, pct)
	}
}

func TestTimeSyncOffset(t *testing.T) {
	ts := NewTimeSync(func(ctx context.Context) (int64, error) {
		return time.Now().UnixMilli() + 5000, nil
	})
	if err := ts.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	offset := ts.Offset()
	if offset < 4900 || offset > 5100 {
		t.Errorf("offset = %d, want about 5000", offset)
	}
	drift := ts.Now() - time.Now().UnixMilli()
	if drift < 4900 || drift > 5100 {
		t.Errorf("Now drift = %d, want about 5000", drift)
	}
}

func TestTimeSyncSurfacesFetchError(t *testing.T) {
	cause := errors.New("venue down")
	ts := NewTimeSync(func(ctx context.Context) (int64, error) {
		return 0, cause
	})
	if err := ts.Sync(context.Background()); !errors.Is(err, cause) {
		t.Errorf("err = %v, want %v", err, cause)
	}
	if ts.Offset() != 0 {
		t.Errorf("failed sync must not move the offset, got %d", ts.Offset())
	}
}
