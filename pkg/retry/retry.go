package retry

import (
	"context"
	"fmt"
	"time"

	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/logger"
)

// State is a position in the per-call retry state machine
type State int

const (
	StateAttempt State = iota
	StateBackoff
	StateFail
	StateSucceed
)

func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateBackoff:
		return "backoff"
	case StateFail:
		return "fail"
	case StateSucceed:
		return "succeed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Rule bounds the failures of one error kind. Each kind keeps its own
// counter so rate-limit cooldowns never use up the network budget.
type Rule struct {
	// Attempts is how many failures of this kind end the call
	Attempts int
	Backoff  BackoffStrategy
}

// Policy maps retryable error kinds to their rules. Kinds without a rule
// fail immediately.
type Policy map[errs.ErrorType]Rule

// PolicyFromConfig builds the request policy from rate limit settings
func PolicyFromConfig(cfg config.RateLimitConfig) Policy {
	return Policy{
		errs.ErrorTypeNetwork: {
			Attempts: cfg.NetworkRetries,
			Backoff:  &ConstantBackoff{Delay: cfg.NetworkRetryDelay},
		},
		errs.ErrorTypeRateLimit: {
			Attempts: cfg.MaxCooldowns + 1,
			Backoff:  &ConstantBackoff{Delay: cfg.RateLimitCooldown},
		},
		errs.ErrorTypeServerError: {
			Attempts: cfg.ServerRetries,
			Backoff:  &ConstantBackoff{Delay: cfg.ServerErrorCooldown},
		},
	}
}

// DefaultPolicy returns the policy for the default rate limit settings
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.DefaultConfig().RateLimit)
}

// Machine tracks one logical call through Attempt, Backoff, Fail and Succeed
type Machine struct {
	policy   Policy
	state    State
	attempt  int
	failures map[errs.ErrorType]int
	lastErr  error
}

// NewMachine starts a machine in the Attempt state
func NewMachine(policy Policy) *Machine {
	return &Machine{
		policy:   policy,
		state:    StateAttempt,
		attempt:  1,
		failures: make(map[errs.ErrorType]int),
	}
}

// State returns the current state
func (m *Machine) State() State { return m.state }

// Attempt returns the 1-based number of the current or last attempt
func (m *Machine) Attempt() int { return m.attempt }

// Failures returns how many failures of the given kind were observed
func (m *Machine) Failures(t errs.ErrorType) int { return m.failures[t] }

// Err returns the error that moved the machine into Fail
func (m *Machine) Err() error { return m.lastErr }

// Observe records the outcome of the current attempt and returns the next
// state. On Backoff the returned delay must elapse before Resume.
func (m *Machine) Observe(err error) (State, time.Duration) {
	if m.state != StateAttempt {
		return m.state, 0
	}
	if err == nil {
		m.state = StateSucceed
		return m.state, 0
	}

	m.lastErr = err
	kind := errs.TypeOf(err)
	rule, ok := m.policy[kind]
	if !ok {
		m.state = StateFail
		return m.state, 0
	}

	m.failures[kind]++
	n := m.failures[kind]
	if n >= rule.Attempts {
		m.state = StateFail
		return m.state, 0
	}

	m.state = StateBackoff
	var delay time.Duration
	if rule.Backoff != nil {
		delay = rule.Backoff.NextDelay(n)
	}
	return m.state, delay
}

// Resume moves a backed-off machine to its next attempt
func (m *Machine) Resume() {
	if m.state == StateBackoff {
		m.state = StateAttempt
		m.attempt++
	}
}

// Runner drives a Machine against an operation, sleeping between attempts
type Runner struct {
	Policy Policy
	Logger logger.Logger
	// Sleep waits out a backoff; defaults to Wait
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner with the given policy
func NewRunner(policy Policy, log logger.Logger) *Runner {
	return &Runner{Policy: policy, Logger: logger.OrNop(log), Sleep: Wait}
}

// Run calls op until it succeeds or the machine fails. The returned error is
// the terminal error of the last attempt, unchanged, so callers can inspect
// its type.
func (r *Runner) Run(ctx context.Context, origin string, op func(ctx context.Context, attempt int) error) error {
	m := NewMachine(r.Policy)
	sleep := r.Sleep
	if sleep == nil {
		sleep = Wait
	}
	log := logger.OrNop(r.Logger)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		state, delay := m.Observe(op(ctx, m.Attempt()))
		switch state {
		case StateSucceed:
			if m.Attempt() > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"origin":  origin,
					"attempt": m.Attempt(),
				})
			}
			return nil
		case StateFail:
			return m.Err()
		case StateBackoff:
			logger.LogCooldown(log, origin, string(errs.TypeOf(m.Err())), m.Attempt(), delay)
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
			m.Resume()
		}
	}
}
