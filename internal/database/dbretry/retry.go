package dbretry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// Policy controls how transient database failures are retried.
type Policy struct {
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
	Logger          *zap.Logger
}

// DefaultPolicy is used until Configure is called.
var DefaultPolicy = Policy{
	MaxElapsedTime:  30 * time.Second,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxRetries:      5,
	Logger:          zap.NewNop(),
}

var current atomic.Pointer[Policy]

// Configure replaces the retry policy used by all operations.
// Zero fields fall back to DefaultPolicy.
func Configure(p Policy) {
	if p.MaxElapsedTime <= 0 {
		p.MaxElapsedTime = DefaultPolicy.MaxElapsedTime
	}

	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultPolicy.InitialInterval
	}

	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultPolicy.MaxInterval
	}

	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	current.Store(&p)
}

func policy() *Policy {
	if p := current.Load(); p != nil {
		return p
	}

	return &DefaultPolicy
}

// IsRetryableError checks if the given error is retryable.
// Only connection-level and transient server failures qualify; constraint
// violations and other logical errors are returned to the caller untouched.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Check for specific PostgreSQL error codes
	var pgerr pgdriver.Error
	if errors.As(err, &pgerr) {
		switch pgerr.Field('C') {
		case "08000", // connection_exception
			"08003", // connection_does_not_exist
			"08006", // connection_failure
			"08001", // sqlclient_unable_to_establish_sqlconnection
			"08004", // sqlserver_rejected_establishment_of_sqlconnection
			"08007", // transaction_resolution_unknown
			"08P01", // protocol_violation
			"40001", // serialization_failure
			"40P01", // deadlock_detected
			"53000", // insufficient_resources
			"53100", // disk_full
			"53200", // out_of_memory
			"53300", // too_many_connections
			"53400", // configuration_limit_exceeded
			"57000", // operator_intervention
			"57P01", // admin_shutdown
			"57P02", // crash_shutdown
			"57P03", // cannot_connect_now
			"57P04", // database_dropped
			"55006", // object_in_use
			"55P03": // lock_not_available
			return true
		}

		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Check for common network error strings
	errMsg := err.Error()
	if strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "no connection") ||
		strings.Contains(errMsg, "i/o timeout") ||
		strings.Contains(errMsg, "database is locked") ||
		strings.HasSuffix(errMsg, "EOF") {
		return true
	}

	return false
}

func newBackOff(ctx context.Context, p *Policy) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(p.MaxElapsedTime),
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
	), p.MaxRetries)

	return backoff.WithContext(b, ctx)
}

// Operation wraps a database operation with retry logic.
func Operation[T any](ctx context.Context, operation func(context.Context) (T, error)) (T, error) {
	var result T

	err := NoResult(ctx, func(ctx context.Context) error {
		var err error
		result, err = operation(ctx)

		return err
	})

	return result, err
}

// NoResult wraps a database operation that doesn't return a result.
// Retries are logged; non-retryable errors are returned on the first attempt.
func NoResult(ctx context.Context, operation func(context.Context) error) error {
	p := policy()

	attempts := 0

	err := backoff.RetryNotify(func() error {
		attempts++

		err := operation(ctx)
		if err != nil && !IsRetryableError(err) {
			return backoff.Permanent(err)
		}

		return err
	}, newBackOff(ctx, p), func(err error, wait time.Duration) {
		p.Logger.Warn("Retrying database operation",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil && attempts > 1 {
		return fmt.Errorf("database operation failed after %d attempts: %w", attempts, err)
	}

	return err
}

// Transaction wraps a database transaction with retry logic.
// The whole transaction is replayed on a retryable failure, so fn must not have side effects
// outside of tx.
func Transaction(ctx context.Context, db bun.IDB, fn func(context.Context, bun.Tx) error) error {
	return NoResult(ctx, func(ctx context.Context) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	})
}
