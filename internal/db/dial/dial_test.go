package dial

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cvcontext/internal/domain"
)

func TestOpen_MemorySharedPerName(t *testing.T) {
	d := New(0, zap.NewNop())
	ctx := context.Background()

	a, err := d.Open(ctx, "memory://cv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := d.Open(ctx, "memory://cv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	other, err := d.Open(ctx, "memory://other")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a != b {
		t.Error("same memory name must resolve to the same store")
	}
	if a == other {
		t.Error("different memory names must resolve to different stores")
	}
}

func TestOpen_MemoryIsolatedPerDialer(t *testing.T) {
	ctx := context.Background()
	a, _ := New(0, zap.NewNop()).Open(ctx, "memory://cv")
	b, _ := New(0, zap.NewNop()).Open(ctx, "memory://cv")
	if a == b {
		t.Error("dialers must not share in-process stores")
	}
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	d := New(0, zap.NewNop())
	for _, target := range []string{"postgres://localhost/db", "localhost:6379", "::bad"} {
		_, err := d.Open(context.Background(), target)
		if !errors.Is(err, domain.ErrUnsupportedTarget) {
			t.Errorf("Open(%q): expected ErrUnsupportedTarget, got %v", target, err)
		}
	}
}
