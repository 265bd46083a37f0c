package core

import (
	"context"
	"testing"
)

func TestLocalTransactionManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	manager := NewLocalTransactionManager()

	tx, err := manager.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if manager.Active() != 1 {
		t.Fatalf("expected one active transaction")
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.Commit(ctx); err == nil {
		t.Fatalf("expected second commit to fail")
	}
	if err := tx.Rollback(ctx); err == nil {
		t.Fatalf("expected rollback after commit to fail")
	}
	if manager.Active() != 0 {
		t.Fatalf("expected finished transaction to leave the active set")
	}
}

func TestLocalTransaction_RollbackOnlyCommitFails(t *testing.T) {
	ctx := context.Background()
	manager := NewLocalTransactionManager()
	tx, _ := manager.Begin(ctx)
	tx.SetRollbackOnly()

	if err := tx.Commit(ctx); err == nil {
		t.Fatalf("expected commit of rollback-only transaction to fail")
	}
	if status := tx.(*LocalTransaction).Status(); status != TxStateRolledBack {
		t.Fatalf("expected rolled back status, got %q", status)
	}
}

func TestLocalTransactionManager_SuspendResume(t *testing.T) {
	ctx := context.Background()
	manager := NewLocalTransactionManager()
	tx, _ := manager.Begin(ctx)

	handle, err := manager.Suspend(ctx, tx)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := manager.Suspend(ctx, tx); err == nil {
		t.Fatalf("expected double suspend to fail")
	}
	resumed, err := manager.Resume(ctx, handle)
	if err != nil || resumed != tx {
		t.Fatalf("expected resume to return the suspended transaction, got %v %v", resumed, err)
	}
	if _, err := manager.Resume(ctx, handle); err == nil {
		t.Fatalf("expected double resume to fail")
	}
	if _, err := manager.Suspend(ctx, nil); err == nil {
		t.Fatalf("expected nil suspend to fail")
	}
}
