package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayGrowth(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2, Jitter: 0}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.DelayWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayClampedToMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 2 * time.Second, Factor: 10, Jitter: 0}
	if got := p.DelayWithRand(5, 0); got != 2*time.Second {
		t.Errorf("Delay(5) = %v, want clamp to %v", got, 2*time.Second)
	}
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: 0.5}

	lo := p.DelayWithRand(1, 0)
	hi := p.DelayWithRand(1, 0.999)
	if lo != 100*time.Millisecond {
		t.Errorf("zero random value should give base delay, got %v", lo)
	}
	if hi <= lo || hi > 150*time.Millisecond {
		t.Errorf("jittered delay %v outside (base, base*1.5]", hi)
	}
}

func TestDelayAttemptBelowOne(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2}
	if got := p.DelayWithRand(0, 0); got != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want initial delay", got)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}

	calls := 0
	got, err := Retry(context.Background(), p, 3, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}

	boom := errors.New("boom")
	_, err := Retry(context.Background(), p, 2, func(int) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("error = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped last error", err)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}

	calls := 0
	fatal := errors.New("bad request")
	_, err := Retry(context.Background(), p, 5, func(int) (int, error) {
		calls++
		return 0, Permanent(fatal)
	})
	if calls != 1 {
		t.Errorf("permanent error retried %d times", calls)
	}
	if !errors.Is(err, fatal) {
		t.Errorf("error = %v, want underlying permanent error", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("permanent failure should not report exhaustion")
	}
}

func TestRetryRespectsContextCancel(t *testing.T) {
	p := Policy{Initial: time.Hour, Max: time.Hour, Factor: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, p, 3, func(int) (int, error) {
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if IsPermanent(errors.New("plain")) {
		t.Error("plain error reported as permanent")
	}
}
