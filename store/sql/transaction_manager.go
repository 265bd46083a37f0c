package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/goliatone/go-container/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TransactionManager backs container transactions with bun database
// transactions so business methods can share one connection per bracket.
type TransactionManager struct {
	db      *bun.DB
	options *sql.TxOptions

	mu        sync.Mutex
	active    map[string]*Transaction
	suspended map[string]bool
}

type TransactionManagerOption func(*TransactionManager)

func WithTxOptions(options *sql.TxOptions) TransactionManagerOption {
	return func(m *TransactionManager) {
		m.options = options
	}
}

func NewTransactionManager(db *bun.DB, opts ...TransactionManagerOption) (*TransactionManager, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	manager := &TransactionManager{
		db:        db,
		active:    map[string]*Transaction{},
		suspended: map[string]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

func (m *TransactionManager) Begin(ctx context.Context) (core.Transaction, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("sqlstore: transaction manager is not configured")
	}
	// Waiting for a connection honors the caller's deadline; the bracket
	// itself outlives cancellation until commit or rollback.
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: acquire connection: %w", err)
	}
	tx, err := conn.BeginTx(context.WithoutCancel(ctx), m.options)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sqlstore: begin transaction: %w", err)
	}
	wrapped := &Transaction{id: uuid.NewString(), tx: tx, conn: conn, manager: m}
	m.mu.Lock()
	m.active[wrapped.id] = wrapped
	m.mu.Unlock()
	return wrapped, nil
}

func (m *TransactionManager) Suspend(_ context.Context, tx core.Transaction) (core.SuspendedTransaction, error) {
	wrapped, ok := tx.(*Transaction)
	if !ok || wrapped == nil {
		return nil, fmt.Errorf("sqlstore: cannot suspend foreign transaction %T", tx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suspended[wrapped.id] {
		return nil, fmt.Errorf("sqlstore: transaction %s already suspended", wrapped.id)
	}
	m.suspended[wrapped.id] = true
	return suspendedTransaction{tx: wrapped}, nil
}

func (m *TransactionManager) Resume(_ context.Context, handle core.SuspendedTransaction) (core.Transaction, error) {
	if handle == nil {
		return nil, fmt.Errorf("sqlstore: cannot resume nil transaction")
	}
	wrapped, ok := handle.Transaction().(*Transaction)
	if !ok || wrapped == nil {
		return nil, fmt.Errorf("sqlstore: cannot resume foreign transaction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.suspended[wrapped.id] {
		return nil, fmt.Errorf("sqlstore: transaction %s is not suspended", wrapped.id)
	}
	delete(m.suspended, wrapped.id)
	return wrapped, nil
}

// Active reports transactions begun and not yet finished.
func (m *TransactionManager) Active() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *TransactionManager) isSuspended(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended[id]
}

func (m *TransactionManager) finish(id string) {
	m.mu.Lock()
	delete(m.active, id)
	delete(m.suspended, id)
	m.mu.Unlock()
}

// Transaction wraps a bun.Tx with rollback-only marking.
type Transaction struct {
	id      string
	tx      bun.Tx
	conn    bun.Conn
	manager *TransactionManager

	mu           sync.Mutex
	rollbackOnly bool
	done         bool
}

func (t *Transaction) ID() string { return t.id }

// Tx exposes the underlying bun transaction.
func (t *Transaction) Tx() bun.Tx { return t.tx }

func (t *Transaction) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return fmt.Errorf("sqlstore: transaction %s already finished", t.id)
	}
	t.done = true
	defer t.release()
	if t.rollbackOnly {
		if err := t.tx.Rollback(); err != nil {
			return fmt.Errorf("sqlstore: rollback-only transaction %s: %w", t.id, err)
		}
		return fmt.Errorf("sqlstore: transaction %s marked rollback-only", t.id)
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit transaction %s: %w", t.id, err)
	}
	return nil
}

func (t *Transaction) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return fmt.Errorf("sqlstore: transaction %s already finished", t.id)
	}
	t.done = true
	defer t.release()
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("sqlstore: rollback transaction %s: %w", t.id, err)
	}
	return nil
}

func (t *Transaction) release() {
	if t.conn.Conn != nil {
		_ = t.conn.Close()
	}
	t.manager.finish(t.id)
}

func (t *Transaction) SetRollbackOnly() {
	t.mu.Lock()
	t.rollbackOnly = true
	t.mu.Unlock()
}

func (t *Transaction) IsRollbackOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbackOnly
}

type suspendedTransaction struct {
	tx *Transaction
}

func (s suspendedTransaction) Transaction() core.Transaction { return s.tx }

// TxFromContext returns the bun transaction bound to the current call, or
// db when the call runs without one.
func TxFromContext(ctx context.Context, db *bun.DB) bun.IDB {
	current, ok := core.CurrentTransaction(ctx)
	if !ok {
		return db
	}
	wrapped, ok := current.(*Transaction)
	if !ok || wrapped == nil || wrapped.manager.isSuspended(wrapped.id) {
		return db
	}
	return wrapped.tx
}
