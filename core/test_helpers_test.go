package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any)                 {}
func (stubLogger) Debug(string, ...any)                 {}
func (stubLogger) Info(string, ...any)                  {}
func (stubLogger) Warn(string, ...any)                  {}
func (stubLogger) Error(string, ...any)                 {}
func (stubLogger) Fatal(string, ...any)                 {}
func (l stubLogger) WithContext(context.Context) Logger { return l }

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger { return p.logger }

// accountWorker is a small business object used across dispatcher tests.
type accountWorker struct {
	id       int64
	inits    atomic.Int32
	removes  atomic.Int32
	balance  int
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (w *accountWorker) Init(context.Context) error {
	w.inits.Add(1)
	return nil
}

func (w *accountWorker) Remove(context.Context) error {
	w.removes.Add(1)
	return nil
}

var errInsufficientFunds = errors.New("insufficient funds")

type workerFactory struct {
	mu       sync.Mutex
	next     int64
	created  []*accountWorker
	fail     error
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *workerFactory) New(context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.next++
	worker := &accountWorker{id: f.next, inFlight: &f.inFlight, peak: &f.peak}
	f.created = append(f.created, worker)
	return worker, nil
}

func (f *workerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *workerFactory) worker(index int) *accountWorker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[index]
}

func enter(w *accountWorker) func() {
	current := w.inFlight.Add(1)
	for {
		peak := w.peak.Load()
		if current <= peak || w.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	return func() { w.inFlight.Add(-1) }
}

type seenWorker struct {
	id        int64
	callID    string
	operation Operation
	txID      string
}

func accountMethods() []MethodSpec {
	return []MethodSpec{
		{
			Name: "deposit",
			Handle: Handler1(func(ctx context.Context, w *accountWorker, amount int) (int, error) {
				defer enter(w)()
				w.balance += amount
				return w.balance, nil
			}),
		},
		{
			Name: "withdraw",
			Handle: Handler1(func(ctx context.Context, w *accountWorker, amount int) (int, error) {
				defer enter(w)()
				if amount > w.balance {
					return w.balance, NewApplicationError(errInsufficientFunds, map[string]any{"balance": w.balance})
				}
				w.balance -= amount
				return w.balance, nil
			}),
		},
		{
			Name:       "withdraw_strict",
			RollbackOn: func(err error) bool { return errors.Is(err, errInsufficientFunds) },
			Handle: Handler1(func(ctx context.Context, w *accountWorker, amount int) (int, error) {
				return 0, errInsufficientFunds
			}),
		},
		{
			Name: "whoami",
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (seenWorker, error) {
				seen := seenWorker{id: w.id}
				if call, ok := CallContextFrom(ctx); ok {
					seen.callID = call.CallID()
					seen.operation = call.Operation()
				}
				if tx, ok := CurrentTransaction(ctx); ok {
					seen.txID = tx.ID()
				}
				return seen, nil
			}),
		},
		{
			Name: "crash",
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (int, error) {
				panic("corrupted ledger")
			}),
		},
		{
			Name: "platform_failure",
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (int, error) {
				return 0, NewSystemError(fmt.Errorf("storage offline"))
			}),
		},
		{
			Name: "slow",
			Handle: Handler1(func(ctx context.Context, w *accountWorker, hold chan struct{}) (int64, error) {
				defer enter(w)()
				<-hold
				return w.id, nil
			}),
		},
		{
			Name:  "close_account",
			Roles: []string{"admin"},
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (bool, error) {
				return true, nil
			}),
		},
		{
			Name:     "audit_dump",
			Excluded: true,
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (bool, error) {
				return true, nil
			}),
		},
		{
			Name:        "report",
			Transaction: TxNever,
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (bool, error) {
				_, inTx := CurrentTransaction(ctx)
				return inTx, nil
			}),
		},
		{
			Name:        "transfer",
			Transaction: TxMandatory,
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (string, error) {
				tx, _ := CurrentTransaction(ctx)
				return tx.ID(), nil
			}),
		},
		{
			Name:        "isolated",
			Transaction: TxRequiresNew,
			Handle: Handler0(func(ctx context.Context, w *accountWorker) (string, error) {
				tx, _ := CurrentTransaction(ctx)
				return tx.ID(), nil
			}),
		},
		{Name: "create", Facet: FacetHome},
		{Name: "remove", Facet: FacetObject},
	}
}

type testFixture struct {
	container *Container
	factory   *workerFactory
	txManager *recordingTxManager
	logger    *captureLogger
	metrics   *captureMetricsRecorder
	audit     *captureInvocationRecorder
}

func newTestFixture(t *testing.T, pool PoolConfig, opts ...Option) *testFixture {
	t.Helper()
	fixture := &testFixture{
		factory:   &workerFactory{},
		txManager: newRecordingTxManager(),
		logger:    newCaptureLogger(),
		metrics:   &captureMetricsRecorder{},
		audit:     &captureInvocationRecorder{},
	}
	all := append([]Option{
		WithLogger(fixture.logger),
		WithMetricsRecorder(fixture.metrics),
		WithTransactionManager(fixture.txManager),
		WithInvocationRecorder(fixture.audit),
	}, opts...)
	container, err := NewContainer(DefaultConfig(), all...)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	if _, err := container.Deploy(context.Background(), DeploymentSpec{
		ID:      "accounts",
		Factory: fixture.factory.New,
		Methods: accountMethods(),
		Pool:    pool,
	}); err != nil {
		t.Fatalf("deploy accounts: %v", err)
	}
	fixture.container = container
	t.Cleanup(container.Close)
	return fixture
}

func (f *testFixture) invoke(ctx context.Context, method string, args ...any) (InvokeResult, error) {
	return f.container.Invoke(ctx, InvokeRequest{
		ComponentID: "accounts",
		Method:      BusinessMethod(method),
		Args:        args,
		Identity:    SecurityIdentity{Principal: "alice", Roles: []string{"teller"}},
	})
}

// recordingTxManager wraps LocalTransactionManager and keeps every
// transaction it handed out.
type recordingTxManager struct {
	*LocalTransactionManager
	mu       sync.Mutex
	begun    []*LocalTransaction
	suspends int
	resumes  int
	beginErr error
}

func newRecordingTxManager() *recordingTxManager {
	return &recordingTxManager{LocalTransactionManager: NewLocalTransactionManager()}
}

func (m *recordingTxManager) Begin(ctx context.Context) (Transaction, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	tx, err := m.LocalTransactionManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.begun = append(m.begun, tx.(*LocalTransaction))
	m.mu.Unlock()
	return tx, nil
}

func (m *recordingTxManager) Suspend(ctx context.Context, tx Transaction) (SuspendedTransaction, error) {
	m.mu.Lock()
	m.suspends++
	m.mu.Unlock()
	return m.LocalTransactionManager.Suspend(ctx, tx)
}

func (m *recordingTxManager) Resume(ctx context.Context, handle SuspendedTransaction) (Transaction, error) {
	m.mu.Lock()
	m.resumes++
	m.mu.Unlock()
	return m.LocalTransactionManager.Resume(ctx, handle)
}

func (m *recordingTxManager) transactions() []*LocalTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*LocalTransaction(nil), m.begun...)
}

type captureInvocationRecorder struct {
	mu      sync.Mutex
	records []InvocationRecord
}

func (r *captureInvocationRecorder) RecordInvocation(_ context.Context, record InvocationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *captureInvocationRecorder) snapshot() []InvocationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InvocationRecord(nil), r.records...)
}

type countingAuthorizer struct {
	calls   atomic.Int32
	allowed bool
	err     error
}

func (a *countingAuthorizer) IsAuthorized(context.Context, SecurityIdentity, []string) (bool, error) {
	a.calls.Add(1)
	return a.allowed, a.err
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func faultMetadata(err error) map[string]any {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}
	return richErr.Metadata
}
