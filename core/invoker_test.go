package core

import (
	"context"
	"errors"
	"testing"
)

func TestDirectInvoker_ClassifiesOutcomes(t *testing.T) {
	ctx := context.Background()
	worker := &Instance{ID: "i-1", Worker: &accountWorker{}}
	invoker := DirectInvoker{}

	outcome := invoker.Invoke(ctx, worker, func(context.Context, any, []any) (any, error) {
		return "ok", nil
	}, nil)
	if outcome.Kind != OutcomeReturned || outcome.Value != "ok" {
		t.Fatalf("expected returned outcome, got %#v", outcome)
	}

	outcome = invoker.Invoke(ctx, worker, func(context.Context, any, []any) (any, error) {
		return nil, errors.New("rule")
	}, nil)
	if outcome.Kind != OutcomeApplicationFault || outcome.Err == nil {
		t.Fatalf("expected application fault, got %#v", outcome)
	}

	outcome = invoker.Invoke(ctx, worker, func(context.Context, any, []any) (any, error) {
		return nil, NewSystemError(errors.New("io"))
	}, nil)
	if outcome.Kind != OutcomeSystemFault {
		t.Fatalf("expected system fault, got %s", outcome.Kind)
	}

	outcome = invoker.Invoke(ctx, worker, func(context.Context, any, []any) (any, error) {
		panic("nil map")
	}, nil)
	if outcome.Kind != OutcomeSystemFault || outcome.Err == nil {
		t.Fatalf("expected recovered panic to be a system fault, got %#v", outcome)
	}

	if outcome := invoker.Invoke(ctx, nil, nil, nil); outcome.Kind != OutcomeSystemFault {
		t.Fatalf("expected missing worker to be a system fault")
	}
}

func TestDirectInvoker_CopiesArguments(t *testing.T) {
	args := []any{1, 2}
	DirectInvoker{}.Invoke(context.Background(), &Instance{Worker: &accountWorker{}}, func(_ context.Context, _ any, got []any) (any, error) {
		got[0] = 99
		return nil, nil
	}, args)
	if args[0] != 1 {
		t.Fatalf("expected caller arguments to stay untouched")
	}
}
