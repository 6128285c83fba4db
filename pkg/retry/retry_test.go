package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/logger"
)

func rateLimited() error { return errs.New(errs.ErrorTypeRateLimit, "too many requests").WithCode(429) }
func unavailable() error { return errs.New(errs.ErrorTypeServerError, "bad gateway").WithCode(502) }
func timeout() error     { return errs.Network(errors.New("i/o timeout")) }

// recordingSleep collects requested delays without sleeping
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestRunner(s *recordingSleep) *Runner {
	r := NewRunner(DefaultPolicy(), logger.NewNopLogger())
	r.Sleep = s.sleep
	return r
}

func TestConstantBackoff(t *testing.T) {
	backoff := &ConstantBackoff{Delay: 5 * time.Second}

	assert.Equal(t, time.Duration(0), backoff.NextDelay(0))
	assert.Equal(t, 5*time.Second, backoff.NextDelay(1))
	assert.Equal(t, 5*time.Second, backoff.NextDelay(3))
}

func TestMachineTransitions(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	assert.Equal(t, StateAttempt, m.State())

	state, delay := m.Observe(timeout())
	assert.Equal(t, StateBackoff, state)
	assert.Equal(t, 5*time.Second, delay)

	// Observing outside Attempt changes nothing
	state, _ = m.Observe(nil)
	assert.Equal(t, StateBackoff, state)

	m.Resume()
	assert.Equal(t, StateAttempt, m.State())
	assert.Equal(t, 2, m.Attempt())

	state, _ = m.Observe(nil)
	assert.Equal(t, StateSucceed, state)
}

func TestMachineNonRetryableFailsImmediately(t *testing.T) {
	for _, err := range []error{
		errs.New(errs.ErrorTypeAuth, "reauthenticate").WithCode(401),
		errs.Upstream("HTTP 404 - Not Found").WithCode(404),
		errors.New("untyped"),
	} {
		m := NewMachine(DefaultPolicy())
		state, delay := m.Observe(err)
		assert.Equal(t, StateFail, state)
		assert.Zero(t, delay)
		assert.Same(t, err, m.Err())
	}
}

func TestRunNetworkBudget(t *testing.T) {
	s := &recordingSleep{}
	calls := 0
	err := newTestRunner(s).Run(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return timeout()
	})

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, s.delays)
}

func TestRunRateLimitDoesNotConsumeNetworkBudget(t *testing.T) {
	s := &recordingSleep{}
	outcomes := []error{timeout(), rateLimited(), timeout(), rateLimited(), rateLimited(), nil}
	calls := 0
	err := newTestRunner(s).Run(context.Background(), "test", func(ctx context.Context, attempt int) error {
		e := outcomes[calls]
		calls++
		return e
	})

	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	assert.Equal(t, []time.Duration{
		5 * time.Second, 5 * time.Minute, 5 * time.Second, 5 * time.Minute, 5 * time.Minute,
	}, s.delays)
}

func TestRunRateLimitCap(t *testing.T) {
	s := &recordingSleep{}
	policy := DefaultPolicy()
	policy[errs.ErrorTypeRateLimit] = Rule{Attempts: 3, Backoff: &ConstantBackoff{Delay: time.Minute}}
	r := newTestRunner(s)
	r.Policy = policy

	calls := 0
	err := r.Run(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		return rateLimited()
	})

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeRateLimit))
	assert.Equal(t, 3, calls)
	assert.Len(t, s.delays, 2)
}

func TestRunServerErrorCooldown(t *testing.T) {
	s := &recordingSleep{}
	calls := 0
	err := newTestRunner(s).Run(context.Background(), "test", func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return unavailable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, s.delays)
}

func TestRunCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(DefaultPolicy(), nil)
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return Wait(ctx, d)
	}

	err := r.Run(ctx, "test", func(ctx context.Context, attempt int) error { return timeout() })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
