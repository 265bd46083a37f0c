package core

import (
	"sync"
)

// TxState tracks one call's transaction bracket.
type TxState string

const (
	TxStateNone       TxState = "none"
	TxStateStarted    TxState = "started"
	TxStateJoined     TxState = "joined"
	TxStateSuspended  TxState = "suspended"
	TxStateCommitted  TxState = "committed"
	TxStateRolledBack TxState = "rolled_back"
	TxStateResumed    TxState = "resumed"
)

// TransactionContext is created per business invocation and lives between
// BeforeInvoke and AfterInvoke.
type TransactionContext struct {
	mu          sync.Mutex
	manager     TransactionManager
	callContext *CallContext
	method      Method
	clientTx    Transaction
	currentTx   Transaction
	suspended   SuspendedTransaction
	started     bool
	history     []TxState
	appFault    error
	sysFault    error
	completed   bool
}

func NewTransactionContext(
	callCtx *CallContext,
	manager TransactionManager,
	method Method,
	clientTx Transaction,
) *TransactionContext {
	return &TransactionContext{
		manager:     manager,
		callContext: callCtx,
		method:      method,
		clientTx:    clientTx,
		history:     []TxState{TxStateNone},
	}
}

func (t *TransactionContext) CallContext() *CallContext {
	if t == nil {
		return nil
	}
	return t.callContext
}

func (t *TransactionContext) Method() Method {
	if t == nil {
		return Method{}
	}
	return t.method
}

func (t *TransactionContext) Manager() TransactionManager {
	if t == nil {
		return nil
	}
	return t.manager
}

// Client is the inbound transaction the caller arrived with, if any.
func (t *TransactionContext) Client() Transaction {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clientTx
}

// Current is the transaction started or joined for this call, if any.
func (t *TransactionContext) Current() Transaction {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentTx
}

// StartedHere reports whether the current transaction was begun for this call.
func (t *TransactionContext) StartedHere() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *TransactionContext) State() TxState {
	if t == nil {
		return TxStateNone
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history[len(t.history)-1]
}

// History returns every state the bracket passed through, oldest first.
func (t *TransactionContext) History() []TxState {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TxState(nil), t.history...)
}

func (t *TransactionContext) transition(state TxState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, state)
}

func (t *TransactionContext) setCurrent(tx Transaction, started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentTx = tx
	t.started = started
}

func (t *TransactionContext) setSuspended(handle SuspendedTransaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suspended = handle
}

func (t *TransactionContext) takeSuspended() SuspendedTransaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	handle := t.suspended
	t.suspended = nil
	return handle
}

func (t *TransactionContext) recordApplicationFault(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appFault = err
}

func (t *TransactionContext) recordSystemFault(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sysFault = err
}

func (t *TransactionContext) systemFaulted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sysFault != nil
}

// complete returns false when the bracket was already closed.
func (t *TransactionContext) complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return false
	}
	t.completed = true
	return true
}

func (t *TransactionContext) rollbackTrigger(err error) bool {
	if t == nil || t.callContext == nil {
		return false
	}
	component := t.callContext.Component()
	if component == nil {
		return false
	}
	return component.IsRollbackTrigger(t.method, err)
}
