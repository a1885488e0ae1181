// Package lifecycle holds the consent and authorisation state machines.
//
// Both machines mutate a copy of the entity, persist it through the guarded
// store and only then publish the new state to the caller's pointer, so a
// refused or failed transition leaves the caller's value untouched.
package lifecycle

import (
	"context"
	"log/slog"

	"cms/internal/consent/metrics"
	"cms/internal/consent/models"
)

// ConsentWriter is the guarded consent write path.
type ConsentWriter interface {
	VerifyAndUpdate(ctx context.Context, consent *models.Consent) (*models.Consent, error)
}

// AuthorisationWriter is the guarded authorisation write path.
type AuthorisationWriter interface {
	VerifyAndUpdateAuthorisation(ctx context.Context, auth *models.Authorisation) (*models.Authorisation, error)
}

type options struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a state machine.
type Option func(*options)

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Log(ctx, level, msg, args...)
}
