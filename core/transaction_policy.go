package core

import (
	"context"
	"fmt"
	"strings"
)

// TransactionAttribute selects the transaction policy for a method.
type TransactionAttribute string

const (
	TxRequired     TransactionAttribute = "required"
	TxRequiresNew  TransactionAttribute = "requires_new"
	TxMandatory    TransactionAttribute = "mandatory"
	TxSupports     TransactionAttribute = "supports"
	TxNotSupported TransactionAttribute = "not_supported"
	TxNever        TransactionAttribute = "never"
)

func ParseTransactionAttribute(value string) (TransactionAttribute, error) {
	normalized := strings.TrimSpace(strings.ToLower(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch TransactionAttribute(normalized) {
	case TxRequired, TxRequiresNew, TxMandatory, TxSupports, TxNotSupported, TxNever:
		return TransactionAttribute(normalized), nil
	case "":
		return "", fmt.Errorf("core: transaction attribute is required")
	default:
		return "", fmt.Errorf("core: invalid transaction attribute %q", value)
	}
}

// TransactionPolicy brackets one business call. AfterInvoke runs exactly once
// per call, including when BeforeInvoke failed.
type TransactionPolicy interface {
	Attribute() TransactionAttribute
	BeforeInvoke(ctx context.Context, worker *Instance, txCtx *TransactionContext) error
	HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error
	HandleSystemException(ctx context.Context, err error, worker *Instance, txCtx *TransactionContext) error
	AfterInvoke(ctx context.Context, worker *Instance, txCtx *TransactionContext) error
}

// PolicyFor returns the built-in policy for attr, defaulting to required.
func PolicyFor(attr TransactionAttribute) TransactionPolicy {
	switch attr {
	case TxRequiresNew:
		return RequiresNewPolicy{}
	case TxMandatory:
		return MandatoryPolicy{}
	case TxSupports:
		return SupportsPolicy{}
	case TxNotSupported:
		return NotSupportedPolicy{}
	case TxNever:
		return NeverPolicy{}
	default:
		return RequiredPolicy{}
	}
}

// RequiredPolicy joins the caller's transaction or begins a new one.
type RequiredPolicy struct{}

func (RequiredPolicy) Attribute() TransactionAttribute { return TxRequired }

func (RequiredPolicy) BeforeInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	if client := txCtx.Client(); client != nil {
		joinTransaction(txCtx, client)
		return nil
	}
	return beginTransaction(ctx, txCtx)
}

func (RequiredPolicy) HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error {
	return handleApplicationException(ctx, err, txCtx)
}

func (RequiredPolicy) HandleSystemException(ctx context.Context, err error, _ *Instance, txCtx *TransactionContext) error {
	return handleSystemException(ctx, err, txCtx)
}

func (RequiredPolicy) AfterInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	return completeBracket(ctx, txCtx)
}

// RequiresNewPolicy always begins a new transaction, suspending the caller's.
type RequiresNewPolicy struct{}

func (RequiresNewPolicy) Attribute() TransactionAttribute { return TxRequiresNew }

func (RequiresNewPolicy) BeforeInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	if client := txCtx.Client(); client != nil {
		if err := suspendTransaction(ctx, txCtx, client); err != nil {
			return err
		}
	}
	return beginTransaction(ctx, txCtx)
}

func (RequiresNewPolicy) HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error {
	return handleApplicationException(ctx, err, txCtx)
}

func (RequiresNewPolicy) HandleSystemException(ctx context.Context, err error, _ *Instance, txCtx *TransactionContext) error {
	return handleSystemException(ctx, err, txCtx)
}

func (RequiresNewPolicy) AfterInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	return completeBracket(ctx, txCtx)
}

// MandatoryPolicy joins the caller's transaction and rejects calls without one.
type MandatoryPolicy struct{}

func (MandatoryPolicy) Attribute() TransactionAttribute { return TxMandatory }

func (MandatoryPolicy) BeforeInvoke(_ context.Context, _ *Instance, txCtx *TransactionContext) error {
	client := txCtx.Client()
	if client == nil {
		return systemFaultWithCode(
			nil,
			fmt.Sprintf("core: method %s requires a caller transaction", txCtx.Method()),
			ContainerErrorTransactionRequired,
			nil,
		)
	}
	joinTransaction(txCtx, client)
	return nil
}

func (MandatoryPolicy) HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error {
	return handleApplicationException(ctx, err, txCtx)
}

func (MandatoryPolicy) HandleSystemException(ctx context.Context, err error, _ *Instance, txCtx *TransactionContext) error {
	return handleSystemException(ctx, err, txCtx)
}

func (MandatoryPolicy) AfterInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	return completeBracket(ctx, txCtx)
}

// SupportsPolicy joins the caller's transaction when present and runs
// without one otherwise.
type SupportsPolicy struct{}

func (SupportsPolicy) Attribute() TransactionAttribute { return TxSupports }

func (SupportsPolicy) BeforeInvoke(_ context.Context, _ *Instance, txCtx *TransactionContext) error {
	if client := txCtx.Client(); client != nil {
		joinTransaction(txCtx, client)
	}
	return nil
}

func (SupportsPolicy) HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error {
	return handleApplicationException(ctx, err, txCtx)
}

func (SupportsPolicy) HandleSystemException(ctx context.Context, err error, _ *Instance, txCtx *TransactionContext) error {
	return handleSystemException(ctx, err, txCtx)
}

func (SupportsPolicy) AfterInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	return completeBracket(ctx, txCtx)
}

// NotSupportedPolicy suspends the caller's transaction for the call.
type NotSupportedPolicy struct{}

func (NotSupportedPolicy) Attribute() TransactionAttribute { return TxNotSupported }

func (NotSupportedPolicy) BeforeInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	if client := txCtx.Client(); client != nil {
		return suspendTransaction(ctx, txCtx, client)
	}
	return nil
}

func (NotSupportedPolicy) HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error {
	return handleApplicationException(ctx, err, txCtx)
}

func (NotSupportedPolicy) HandleSystemException(ctx context.Context, err error, _ *Instance, txCtx *TransactionContext) error {
	return handleSystemException(ctx, err, txCtx)
}

func (NotSupportedPolicy) AfterInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	return completeBracket(ctx, txCtx)
}

// NeverPolicy rejects calls that arrive with a transaction.
type NeverPolicy struct{}

func (NeverPolicy) Attribute() TransactionAttribute { return TxNever }

func (NeverPolicy) BeforeInvoke(_ context.Context, _ *Instance, txCtx *TransactionContext) error {
	if txCtx.Client() != nil {
		return systemFaultWithCode(
			nil,
			fmt.Sprintf("core: method %s must not be called within a transaction", txCtx.Method()),
			ContainerErrorTransactionNotAllowed,
			nil,
		)
	}
	return nil
}

func (NeverPolicy) HandleApplicationException(ctx context.Context, err error, txCtx *TransactionContext) error {
	return handleApplicationException(ctx, err, txCtx)
}

func (NeverPolicy) HandleSystemException(ctx context.Context, err error, _ *Instance, txCtx *TransactionContext) error {
	return handleSystemException(ctx, err, txCtx)
}

func (NeverPolicy) AfterInvoke(ctx context.Context, _ *Instance, txCtx *TransactionContext) error {
	return completeBracket(ctx, txCtx)
}

func joinTransaction(txCtx *TransactionContext, tx Transaction) {
	txCtx.setCurrent(tx, false)
	txCtx.transition(TxStateJoined)
}

func beginTransaction(ctx context.Context, txCtx *TransactionContext) error {
	manager := txCtx.Manager()
	if manager == nil {
		return systemFaultWithCode(nil, "core: transaction manager is not configured", ContainerErrorResourceManagerFailure, nil)
	}
	tx, err := manager.Begin(ctx)
	if err != nil {
		return systemFaultWithCode(err, "core: begin transaction failed", ContainerErrorResourceManagerFailure, nil)
	}
	txCtx.setCurrent(tx, true)
	txCtx.transition(TxStateStarted)
	return nil
}

func suspendTransaction(ctx context.Context, txCtx *TransactionContext, tx Transaction) error {
	manager := txCtx.Manager()
	if manager == nil {
		return systemFaultWithCode(nil, "core: transaction manager is not configured", ContainerErrorResourceManagerFailure, nil)
	}
	handle, err := manager.Suspend(ctx, tx)
	if err != nil {
		return systemFaultWithCode(err, "core: suspend transaction failed", ContainerErrorResourceManagerFailure, nil)
	}
	txCtx.setSuspended(handle)
	txCtx.transition(TxStateSuspended)
	return nil
}

// handleApplicationException leaves the transaction running unless the
// component marks this fault as rollback-triggering.
func handleApplicationException(_ context.Context, err error, txCtx *TransactionContext) error {
	txCtx.recordApplicationFault(err)
	if current := txCtx.Current(); current != nil && txCtx.rollbackTrigger(err) {
		current.SetRollbackOnly()
	}
	return applicationFault(err, nil)
}

// handleSystemException always marks the active transaction for rollback and
// always returns a system fault.
func handleSystemException(_ context.Context, err error, txCtx *TransactionContext) error {
	txCtx.recordSystemFault(err)
	current := txCtx.Current()
	if current == nil {
		return systemFault(err, "core: system fault during business method", nil)
	}
	current.SetRollbackOnly()
	if !txCtx.StartedHere() {
		return systemFaultWithCode(
			err,
			"core: caller transaction marked for rollback after system fault",
			ContainerErrorTransactionRolledBack,
			map[string]any{"transaction_id": current.ID()},
		)
	}
	return systemFault(err, "core: system fault during business method", map[string]any{"transaction_id": current.ID()})
}

// completeBracket commits or rolls back what BeforeInvoke started and then
// resumes any suspended caller transaction.
func completeBracket(ctx context.Context, txCtx *TransactionContext) error {
	if !txCtx.complete() {
		return nil
	}
	var outcome error
	if current := txCtx.Current(); current != nil && txCtx.StartedHere() {
		if current.IsRollbackOnly() || txCtx.systemFaulted() {
			if err := current.Rollback(ctx); err != nil {
				outcome = systemFaultWithCode(err, "core: rollback failed", ContainerErrorResourceManagerFailure, map[string]any{
					"transaction_id": current.ID(),
				})
			}
			txCtx.transition(TxStateRolledBack)
		} else if err := current.Commit(ctx); err != nil {
			outcome = systemFaultWithCode(err, "core: commit failed, transaction rolled back", ContainerErrorTransactionRolledBack, map[string]any{
				"transaction_id": current.ID(),
			})
			txCtx.transition(TxStateRolledBack)
		} else {
			txCtx.transition(TxStateCommitted)
		}
		txCtx.setCurrent(nil, false)
	}

	if handle := txCtx.takeSuspended(); handle != nil {
		manager := txCtx.Manager()
		if _, err := manager.Resume(ctx, handle); err != nil {
			if outcome == nil {
				outcome = systemFaultWithCode(err, "core: resume transaction failed", ContainerErrorResourceManagerFailure, nil)
			}
		} else {
			txCtx.transition(TxStateResumed)
		}
	}
	return outcome
}
