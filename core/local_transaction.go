package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LocalTransactionManager is an in-process resource manager that tracks
// transaction lifecycle without an underlying store. It is the default when
// no manager is configured.
type LocalTransactionManager struct {
	mu        sync.Mutex
	active    map[string]*LocalTransaction
	suspended map[string]bool
}

func NewLocalTransactionManager() *LocalTransactionManager {
	return &LocalTransactionManager{
		active:    map[string]*LocalTransaction{},
		suspended: map[string]bool{},
	}
}

func (m *LocalTransactionManager) Begin(context.Context) (Transaction, error) {
	tx := &LocalTransaction{id: uuid.NewString(), manager: m}
	m.mu.Lock()
	m.active[tx.id] = tx
	m.mu.Unlock()
	return tx, nil
}

func (m *LocalTransactionManager) Suspend(_ context.Context, tx Transaction) (SuspendedTransaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("core: cannot suspend nil transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suspended[tx.ID()] {
		return nil, fmt.Errorf("core: transaction %s already suspended", tx.ID())
	}
	m.suspended[tx.ID()] = true
	return suspendedTransaction{tx: tx}, nil
}

func (m *LocalTransactionManager) Resume(_ context.Context, handle SuspendedTransaction) (Transaction, error) {
	if handle == nil || handle.Transaction() == nil {
		return nil, fmt.Errorf("core: cannot resume nil transaction")
	}
	tx := handle.Transaction()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.suspended[tx.ID()] {
		return nil, fmt.Errorf("core: transaction %s is not suspended", tx.ID())
	}
	delete(m.suspended, tx.ID())
	return tx, nil
}

// Active reports the number of begun transactions not yet finished.
func (m *LocalTransactionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *LocalTransactionManager) finish(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// LocalTransaction is a transaction handed out by LocalTransactionManager.
type LocalTransaction struct {
	mu           sync.Mutex
	id           string
	manager      *LocalTransactionManager
	rollbackOnly bool
	status       TxState
}

func (t *LocalTransaction) ID() string { return t.id }

func (t *LocalTransaction) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != "" {
		return fmt.Errorf("core: transaction %s already %s", t.id, t.status)
	}
	if t.rollbackOnly {
		t.status = TxStateRolledBack
		t.manager.finish(t.id)
		return fmt.Errorf("core: transaction %s marked rollback-only", t.id)
	}
	t.status = TxStateCommitted
	t.manager.finish(t.id)
	return nil
}

func (t *LocalTransaction) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != "" {
		return fmt.Errorf("core: transaction %s already %s", t.id, t.status)
	}
	t.status = TxStateRolledBack
	t.manager.finish(t.id)
	return nil
}

func (t *LocalTransaction) SetRollbackOnly() {
	t.mu.Lock()
	t.rollbackOnly = true
	t.mu.Unlock()
}

func (t *LocalTransaction) IsRollbackOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

// Status is empty while the transaction is running.
func (t *LocalTransaction) Status() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

type suspendedTransaction struct {
	tx Transaction
}

func (s suspendedTransaction) Transaction() Transaction { return s.tx }
