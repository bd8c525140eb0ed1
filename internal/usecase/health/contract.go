package health

import (
	"context"
	"errors"
)

// StorePinger checks the default collection's store.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks the default model's provider.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ErrNotChecked is returned by checkers that have nothing to probe yet, such as
// a model that has not been loaded. It is reported as skipped, not failed.
var ErrNotChecked = errors.New("not checked")
