package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Operation is the lifecycle phase a call context is currently executing.
type Operation string

const (
	OperationNone     Operation = ""
	OperationCreate   Operation = "create"
	OperationBusiness Operation = "business"
	OperationRemove   Operation = "remove"
)

// CallContext is the per-invocation record. It travels explicitly inside the
// context.Context handed to the pool, the policy and the business method, and
// is cleared when the invocation returns.
type CallContext struct {
	mu        sync.RWMutex
	callID    string
	component ComponentMetadata
	targetKey any
	identity  SecurityIdentity
	operation Operation
	tx        *TransactionContext
	active    bool

	deferredAudit []deferredRecord
	auditDrained  bool
}

type callContextKey struct{}

type clientTransactionKey struct{}

// BindCallContext creates and activates a call context for one invocation.
func BindCallContext(
	ctx context.Context,
	component ComponentMetadata,
	targetKey any,
	identity SecurityIdentity,
) (context.Context, *CallContext) {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx := &CallContext{
		callID:    uuid.NewString(),
		component: component,
		targetKey: targetKey,
		identity:  cloneIdentity(identity),
		active:    true,
	}
	return context.WithValue(ctx, callContextKey{}, callCtx), callCtx
}

// CallContextFrom returns the active call context carried by ctx.
func CallContextFrom(ctx context.Context) (*CallContext, bool) {
	if ctx == nil {
		return nil, false
	}
	callCtx, ok := ctx.Value(callContextKey{}).(*CallContext)
	if !ok || callCtx == nil || !callCtx.Active() {
		return nil, false
	}
	return callCtx, true
}

func (c *CallContext) CallID() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callID
}

func (c *CallContext) Component() ComponentMetadata {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.component
}

func (c *CallContext) TargetKey() any {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.targetKey
}

func (c *CallContext) Identity() SecurityIdentity {
	if c == nil {
		return SecurityIdentity{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneIdentity(c.identity)
}

func (c *CallContext) Operation() Operation {
	if c == nil {
		return OperationNone
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.operation
}

func (c *CallContext) SetOperation(op Operation) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.operation = op
}

// TransactionContext is non-nil only inside the BeforeInvoke/AfterInvoke bracket.
func (c *CallContext) TransactionContext() *TransactionContext {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tx
}

func (c *CallContext) Active() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Clear deactivates the context. It is safe to call more than once.
func (c *CallContext) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.operation = OperationNone
	c.tx = nil
	c.targetKey = nil
	c.identity = SecurityIdentity{}
}

// deferredRecord is an audit record waiting for the outermost call to finish.
type deferredRecord struct {
	recorder InvocationRecorder
	record   InvocationRecord
}

// deferAudit hands audit records of a nested call to the enclosing call so
// they are written once its transaction bracket has closed. It reports false
// when the enclosing call has already finished.
func (c *CallContext) deferAudit(records ...deferredRecord) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.auditDrained {
		return false
	}
	c.deferredAudit = append(c.deferredAudit, records...)
	return true
}

func (c *CallContext) drainAudit() []deferredRecord {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auditDrained = true
	records := c.deferredAudit
	c.deferredAudit = nil
	return records
}

func (c *CallContext) attachTransaction(txCtx *TransactionContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.tx = txCtx
}

func (c *CallContext) detachTransaction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = nil
}

// ContextWithTransaction marks tx as the caller's inbound transaction.
func ContextWithTransaction(ctx context.Context, tx Transaction) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientTransactionKey{}, tx)
}

// CurrentTransaction returns the transaction visible to code running on ctx:
// the active transaction of the enclosing invocation, or the one attached by
// ContextWithTransaction.
func CurrentTransaction(ctx context.Context) (Transaction, bool) {
	if callCtx, ok := CallContextFrom(ctx); ok {
		if txCtx := callCtx.TransactionContext(); txCtx != nil {
			if tx := txCtx.Current(); tx != nil {
				return tx, true
			}
			return nil, false
		}
	}
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(clientTransactionKey{}).(Transaction)
	if !ok || tx == nil {
		return nil, false
	}
	return tx, true
}

// SetRollbackOnly marks the active container transaction for rollback.
func SetRollbackOnly(ctx context.Context) error {
	callCtx, ok := CallContextFrom(ctx)
	if !ok {
		return badInputError("core: no active call context", nil)
	}
	txCtx := callCtx.TransactionContext()
	if txCtx == nil || txCtx.Current() == nil {
		return badInputError("core: no active transaction", map[string]any{"call_id": callCtx.CallID()})
	}
	txCtx.Current().SetRollbackOnly()
	return nil
}

func cloneIdentity(identity SecurityIdentity) SecurityIdentity {
	return SecurityIdentity{
		Principal: identity.Principal,
		Roles:     append([]string(nil), identity.Roles...),
	}
}
