package core

import (
	"context"
	"errors"
	"fmt"
)

// OutcomeKind tags how a business call finished.
type OutcomeKind int

const (
	OutcomeReturned OutcomeKind = iota
	OutcomeApplicationFault
	OutcomeSystemFault
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReturned:
		return "returned"
	case OutcomeApplicationFault:
		return "application_fault"
	case OutcomeSystemFault:
		return "system_fault"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the tagged result of one business call. Err is set for both
// fault variants.
type Outcome struct {
	Kind  OutcomeKind
	Value any
	Err   error
}

func Returned(value any) Outcome {
	return Outcome{Kind: OutcomeReturned, Value: value}
}

func ApplicationFault(err error) Outcome {
	return Outcome{Kind: OutcomeApplicationFault, Err: err}
}

func SystemFault(err error) Outcome {
	return Outcome{Kind: OutcomeSystemFault, Err: err}
}

// DirectInvoker calls the resolved handle on the calling goroutine.
type DirectInvoker struct{}

func (DirectInvoker) Invoke(ctx context.Context, worker *Instance, handle MethodHandle, args []any) (outcome Outcome) {
	if worker == nil || handle == nil {
		return SystemFault(fmt.Errorf("core: invoke requires a worker and a handle"))
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = SystemFault(panicError{value: recovered})
		}
	}()
	value, err := handle(ctx, worker.Worker, append([]any(nil), args...))
	return ClassifyResult(value, err)
}

// ClassifyResult maps a handle's return into an Outcome. SystemError values
// are platform faults; every other error is an application fault.
func ClassifyResult(value any, err error) Outcome {
	if err == nil {
		return Returned(value)
	}
	var sysErr *SystemError
	if errors.As(err, &sysErr) {
		return SystemFault(err)
	}
	var panicErr panicError
	if errors.As(err, &panicErr) {
		return SystemFault(err)
	}
	return ApplicationFault(err)
}
