// Package retry wraps remote model calls with bounded backoff on quota errors
// and credential re-selection on not-found errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	goretry "github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
	"github.com/mpkisan/kisan-ai/server/internal/observability"
)

const (
	defaultMaxAttempts       = 3
	defaultInitialDelay      = 1000 * time.Millisecond
	defaultBackoffMultiplier = 2.0

	// notFoundMarker is what the model API says when the key is missing or revoked.
	notFoundMarker = "Requested entity was not found"
)

var (
	// ErrQuotaExhausted marks a call that kept hitting rate limits until attempts ran out.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrCredential marks a call rejected for a missing or invalid credential.
	ErrCredential = errors.New("credential rejected")
	// ErrMissingCredential can be returned by adapters that have no key at all.
	ErrMissingCredential = errors.New("no API credential configured")
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
}

// DefaultPolicy is 3 attempts, 1s initial delay, doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       defaultMaxAttempts,
		InitialDelay:      defaultInitialDelay,
		BackoffMultiplier: defaultBackoffMultiplier,
	}
}

// ValidatePolicy validates the Policy
func ValidatePolicy(p Policy) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial delay must not be negative, got %s", p.InitialDelay)
	}
	if p.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff multiplier must be greater than 1, got %f", p.BackoffMultiplier)
	}
	return nil
}

// Delay is the wait after failed attempt i (1-based) and before attempt i+1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1)))
}

// Class is how the invoker treats a failed attempt.
type Class int

const (
	ClassOther Class = iota
	ClassQuota
	ClassCredential
)

func (c Class) String() string {
	switch c {
	case ClassQuota:
		return "quota"
	case ClassCredential:
		return "credential"
	default:
		return "other"
	}
}

// Classify inspects err for the quota and credential markers.
func Classify(err error) Class {
	if err == nil {
		return ClassOther
	}
	if errors.Is(err, ErrMissingCredential) {
		return ClassCredential
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
		return ClassQuota
	}
	if apiErr.Status == "NOT_FOUND" && strings.Contains(apiErr.Message, notFoundMarker) {
		return ClassCredential
	}

	msg := err.Error()
	if strings.Contains(msg, notFoundMarker) {
		return ClassCredential
	}
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "quota") {
		return ClassQuota
	}
	return ClassOther
}

// InvocationError is the terminal error of every failed invocation.
type InvocationError struct {
	Capability string
	Class      Class
	Attempts   int
	Err        error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", e.Capability, e.Attempts, e.Class, e.Err)
}

func (e *InvocationError) Unwrap() []error {
	switch e.Class {
	case ClassQuota:
		return []error{ErrQuotaExhausted, e.Err}
	case ClassCredential:
		return []error{ErrCredential, e.Err}
	default:
		return []error{e.Err}
	}
}

// Invoker executes remote calls under a Policy.
type Invoker struct {
	policy   Policy
	selector repositories.CredentialSelector
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewInvoker creates an invoker. selector may be nil when the host has no way
// to re-select a credential; metrics may be nil.
func NewInvoker(policy Policy, selector repositories.CredentialSelector, metrics *observability.Metrics, logger *zap.Logger) (*Invoker, error) {
	if policy == (Policy{}) {
		policy = DefaultPolicy()
		logger.Info("Using default retry policy",
			zap.Int("maxAttempts", policy.MaxAttempts),
			zap.Duration("initialDelay", policy.InitialDelay),
			zap.Float64("backoffMultiplier", policy.BackoffMultiplier))
	}
	if err := ValidatePolicy(policy); err != nil {
		return nil, err
	}
	return &Invoker{
		policy:   policy,
		selector: selector,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Policy returns the policy the invoker runs with.
func (inv *Invoker) Policy() Policy {
	return inv.policy
}

// Do runs fn until it succeeds, fails with a non-quota error, or attempts run
// out. Every failure path returns an *InvocationError.
func Do[T any](ctx context.Context, inv *Invoker, capability string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		attempts  int
		lastClass Class
		retries   atomic.Int64
	)
	start := time.Now()
	defer func() { inv.metrics.ObserveCall(capability, time.Since(start)) }()

	var backoff goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) {
		n := int(retries.Add(1))
		delay := inv.policy.Delay(n)
		inv.logger.Warn("Quota exceeded, retrying",
			zap.String("capability", capability),
			zap.Int("attempt", n),
			zap.Int("maxAttempts", inv.policy.MaxAttempts),
			zap.Duration("delay", delay))
		inv.metrics.ObserveRetry(capability)
		return delay, false
	})
	backoff = goretry.WithMaxRetries(uint64(inv.policy.MaxAttempts-1), backoff)

	result, err := goretry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		attempts++
		v, err := fn(ctx)
		if err == nil {
			inv.metrics.ObserveAttempt(capability, "success")
			return v, nil
		}

		lastClass = Classify(err)
		inv.metrics.ObserveAttempt(capability, lastClass.String())

		switch lastClass {
		case ClassQuota:
			return v, goretry.RetryableError(err)
		case ClassCredential:
			inv.reselectCredential(ctx, capability, err)
			return v, err
		default:
			return v, err
		}
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return zero, &InvocationError{Capability: capability, Class: ClassOther, Attempts: attempts, Err: err}
	}
	inv.logger.Error("Remote call failed",
		zap.String("capability", capability),
		zap.String("class", lastClass.String()),
		zap.Int("attempts", attempts),
		zap.Error(err))
	return zero, &InvocationError{Capability: capability, Class: lastClass, Attempts: attempts, Err: err}
}

// reselectCredential triggers the host's credential picker. The caller still
// gets the original error and is expected to resubmit.
func (inv *Invoker) reselectCredential(ctx context.Context, capability string, cause error) {
	inv.metrics.ObserveReselect()
	if inv.selector == nil {
		inv.logger.Warn("Credential rejected and no selector configured",
			zap.String("capability", capability),
			zap.Error(cause))
		return
	}
	inv.logger.Warn("Credential rejected, requesting a new one",
		zap.String("capability", capability),
		zap.Error(cause))
	if err := inv.selector.Select(ctx); err != nil {
		inv.logger.Error("Credential re-selection failed",
			zap.String("capability", capability),
			zap.Error(err))
	}
}
