package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// TestControllerStopsAfterBudget verifies rate-limited failures retry at most
// MaxAttempts times and then propagate.
func TestControllerStopsAfterBudget(t *testing.T) {
	calls := 0
	c := NewController(3, time.Second, time.Minute, nil)
	c.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	err := c.Do(context.Background(), "list-items", func(ctx context.Context) error {
		calls++
		return RateLimited("list-items", fmt.Errorf("429"))
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if KindOf(err) != KindRateLimited {
		t.Fatalf("kind = %s, want rate_limited", KindOf(err))
	}
}

// TestControllerBackoffDoubles checks the delay sequence between rate-limited
// attempts doubles from the base and stays below the cap.
func TestControllerBackoffDoubles(t *testing.T) {
	var delays []time.Duration
	c := NewController(4, 2*time.Second, 5*time.Second, nil)
	c.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_ = c.Do(context.Background(), "op", func(ctx context.Context) error {
		return RateLimited("op", fmt.Errorf("slow down"))
	})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d] = %s, want %s", i, delays[i], want[i])
		}
	}
}

// TestControllerFatalPropagatesImmediately ensures unclassified errors never
// consume more than one attempt.
func TestControllerFatalPropagatesImmediately(t *testing.T) {
	calls := 0
	c := NewController(5, time.Second, time.Minute, nil)
	c.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	base := errors.New("disk full")
	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return base
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, base) {
		t.Fatalf("err = %v, want wrapped %v", err, base)
	}
}

type fixedAuth struct {
	calls int
	fail  bool
}

func (a *fixedAuth) Authenticate(ctx context.Context) (Credential, error) {
	a.calls++
	if a.fail {
		return Credential{}, fmt.Errorf("key rejected")
	}
	return Credential{Token: fmt.Sprintf("tok-%d", a.calls), Expiry: time.Now().Add(time.Hour)}, nil
}

// TestControllerAuthExpiredRefreshesWithoutBudget verifies an auth-expired
// response re-authenticates and retries without consuming the retry budget.
func TestControllerAuthExpiredRefreshesWithoutBudget(t *testing.T) {
	auth := &fixedAuth{}
	sess := NewSession(auth)
	c := NewController(2, time.Second, time.Minute, sess)
	c.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	err := c.Do(context.Background(), "put-caption", func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return AuthExpired("put-caption", fmt.Errorf("401"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	// two free auth retries plus the success still fit in a budget of 2
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if auth.calls < 2 {
		t.Fatalf("authenticate calls = %d, want >= 2", auth.calls)
	}
}

// TestControllerAuthLoopBounded ensures a permanently broken credential path
// cannot retry forever.
func TestControllerAuthLoopBounded(t *testing.T) {
	c := NewController(2, time.Second, time.Minute, nil)
	c.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	calls := 0
	err := c.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return AuthExpired("op", fmt.Errorf("401"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls > maxAuthRefreshes+1 {
		t.Fatalf("calls = %d, want <= %d", calls, maxAuthRefreshes+1)
	}
}

// TestSessionRefreshOnStale checks the staleness window triggers exactly one
// re-auth and reuses the token afterwards.
func TestSessionRefreshOnStale(t *testing.T) {
	auth := &fixedAuth{}
	sess := NewSession(auth)

	tok1, err := sess.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tok2, err := sess.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok1 != tok2 {
		t.Fatalf("token changed while fresh: %s != %s", tok1, tok2)
	}
	if auth.calls != 1 {
		t.Fatalf("authenticate calls = %d, want 1", auth.calls)
	}

	sess.Invalidate()
	tok3, err := sess.Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok3 == tok1 {
		t.Fatal("expected new token after invalidate")
	}
}

// TestFromStatusClassification covers the HTTP status to kind mapping.
func TestFromStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{401, KindAuthExpired},
		{403, KindAuthExpired},
		{429, KindRateLimited},
		{503, KindRateLimited},
		{400, KindValidation},
		{422, KindValidation},
		{404, KindFatal},
	}
	for _, tc := range cases {
		err := FromStatus("op", tc.status, "body")
		if KindOf(err) != tc.kind {
			t.Fatalf("status %d: kind = %s, want %s", tc.status, KindOf(err), tc.kind)
		}
	}
	if err := FromStatus("op", 200, ""); err != nil {
		t.Fatalf("status 200: %v", err)
	}
}
