package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/JoeShih716/go-mem-bank/internal/app/core/domain"
)

func TestTrustedHeader(t *testing.T) {
	ctx := context.Background()

	open := NewTrustedHeader(nil)
	if id, err := open.ResolveUser(ctx, " alice "); err != nil || id != "alice" {
		t.Fatalf("passthrough = %q, %v", id, err)
	}
	if _, err := open.ResolveUser(ctx, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("empty handle err = %v", err)
	}

	mapped := NewTrustedHeader(map[string]string{"sess-1": "bob"})
	if id, err := mapped.ResolveUser(ctx, "sess-1"); err != nil || id != "bob" {
		t.Fatalf("mapped = %q, %v", id, err)
	}
	if _, err := mapped.ResolveUser(ctx, "sess-2"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("unknown session err = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := open.ResolveUser(canceled, "alice"); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled err = %v", err)
	}
}
