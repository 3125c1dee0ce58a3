package db

import (
	"context"
	"testing"
)

func TestAfterCommit_RunsImmediatelyOutsideTransaction(t *testing.T) {
	ran := false
	deferred := AfterCommit(context.Background(), func(ctx context.Context) { ran = true })

	if deferred {
		t.Error("no transaction open, hook must not be deferred")
	}
	if !ran {
		t.Error("hook must run immediately outside a transaction")
	}
}

func TestAfterCommit_DefersInsideTransaction(t *testing.T) {
	state := &txState{}
	ctx := context.WithValue(context.Background(), txKey{}, state)

	ran := false
	deferred := AfterCommit(ctx, func(ctx context.Context) { ran = true })

	if !deferred {
		t.Error("hook must be deferred inside a transaction")
	}
	if ran {
		t.Error("hook must not run before commit")
	}
	if len(state.afterCommit) != 1 {
		t.Fatalf("expected 1 registered hook, got %d", len(state.afterCommit))
	}

	state.afterCommit[0](context.Background())
	if !ran {
		t.Error("registered hook did not run")
	}
}

func TestAfterCommit_AccumulatesHooksInOrder(t *testing.T) {
	state := &txState{}
	ctx := context.WithValue(context.Background(), txKey{}, state)

	var order []int
	AfterCommit(ctx, func(ctx context.Context) { order = append(order, 1) })
	AfterCommit(ctx, func(ctx context.Context) { order = append(order, 2) })

	for _, hook := range state.afterCommit {
		hook(context.Background())
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("hooks ran out of order: %v", order)
	}
}
