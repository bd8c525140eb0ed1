package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad signals that an embedding model could not be constructed.
	ErrModelLoad = errors.New("model load failed")
	// ErrStoreConnection signals that a vector store was unreachable or misconfigured.
	ErrStoreConnection = errors.New("store connection failed")
	// ErrQuery signals a failed similarity search.
	ErrQuery = errors.New("query failed")

	// ErrUnknownModel signals a model name missing from the catalog.
	ErrUnknownModel = errors.New("unknown model")
	// ErrInvalidArgument signals a caller-side argument error (bad k, mismatched ids).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupportedTarget signals an unparseable or unsupported connection target.
	ErrUnsupportedTarget = errors.New("unsupported connection target")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ModelLoadError is returned when a model cannot be loaded. Nothing is cached on failure.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("%s: model %q: %v", ErrModelLoad.Error(), e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() []error { return []error{ErrModelLoad, e.Err} }

// StoreConnectionError is returned when a collection client cannot reach its store.
type StoreConnectionError struct {
	Collection string
	Target     string
	Err        error
}

func (e *StoreConnectionError) Error() string {
	return fmt.Sprintf("%s: collection %q at %s: %v",
		ErrStoreConnection.Error(), e.Collection, e.Target, e.Err)
}

func (e *StoreConnectionError) Unwrap() []error { return []error{ErrStoreConnection, e.Err} }

// QueryError is returned when a similarity search fails. Nothing is cached on failure.
type QueryError struct {
	Collection string
	Query      string
	Err        error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: collection %q query %q: %v",
		ErrQuery.Error(), e.Collection, e.Query, e.Err)
}

func (e *QueryError) Unwrap() []error { return []error{ErrQuery, e.Err} }
