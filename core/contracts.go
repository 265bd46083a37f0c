package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Facet names the client-visible interface a call method was declared on.
type Facet string

const (
	FacetBusiness    Facet = "business"
	FacetHome        Facet = "home"
	FacetLocalHome   Facet = "local_home"
	FacetObject      Facet = "object"
	FacetLocalObject Facet = "local_object"
)

// MethodCreate is the home lifecycle method that yields a new reference.
const MethodCreate = "create"

// Method is the call method descriptor produced by the remote/local proxy layer.
type Method struct {
	Facet Facet
	Name  string
}

func BusinessMethod(name string) Method {
	return Method{Facet: FacetBusiness, Name: name}
}

func (m Method) String() string {
	facet := m.Facet
	if facet == "" {
		facet = FacetBusiness
	}
	return string(facet) + "." + m.Name
}

func (m Method) isHome() bool {
	return m.Facet == FacetHome || m.Facet == FacetLocalHome
}

func (m Method) isObject() bool {
	return m.Facet == FacetObject || m.Facet == FacetLocalObject
}

func (m Method) isLocal() bool {
	return m.Facet == FacetLocalHome || m.Facet == FacetLocalObject
}

// SecurityIdentity is the authenticated caller as seen by the container.
type SecurityIdentity struct {
	Principal string
	Roles     []string
}

// InvokeRequest is the call descriptor accepted by Container.Invoke.
type InvokeRequest struct {
	ComponentID string
	Method      Method
	Args        []any
	TargetKey   any
	Identity    SecurityIdentity
}

// InvokeResult carries a business return value or a lifecycle reference.
// Handled is false for lifecycle methods this layer does not process.
type InvokeResult struct {
	CallID  string
	Value   any
	Handled bool
}

// Reference is the logical handle returned by a home create call.
type Reference struct {
	ID          string
	ComponentID string
	TargetKey   any
	Local       bool
	ContainerID string
}

// MethodHandle is a business method resolved at deployment time.
type MethodHandle func(ctx context.Context, worker any, args []any) (any, error)

// WorkerFactory allocates the business object backing one pooled instance.
type WorkerFactory func(ctx context.Context) (any, error)

// Initializer is implemented by workers that need a create lifecycle callback.
type Initializer interface {
	Init(ctx context.Context) error
}

// Remover is implemented by workers that release resources on discard.
type Remover interface {
	Remove(ctx context.Context) error
}

// ComponentMetadata is the read-only view of a deployed component.
type ComponentMetadata interface {
	ID() string
	AuthorizedRoles(method Method) (roles []string, excluded bool)
	TransactionAttribute(method Method) TransactionAttribute
	IsRollbackTrigger(method Method, err error) bool
	Resolve(method Method) (MethodHandle, error)
	NewWorker(ctx context.Context) (any, error)
	PoolConfig() PoolConfig
	ConvertResult(method Method, value any) any
}

// Registry is the deployed-component lookup consumed by the dispatcher.
type Registry interface {
	Lookup(componentID string) (ComponentMetadata, bool)
	Deployments() []ComponentMetadata
}

// Authorizer decides whether an identity holds one of the required roles.
type Authorizer interface {
	IsAuthorized(ctx context.Context, identity SecurityIdentity, roles []string) (bool, error)
}

// Transaction is a unit of work owned by a TransactionManager.
type Transaction interface {
	ID() string
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	SetRollbackOnly()
	IsRollbackOnly() bool
}

// SuspendedTransaction is the opaque handle returned by Suspend.
type SuspendedTransaction interface {
	Transaction() Transaction
}

// TransactionManager is the transactional resource manager contract.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
	Suspend(ctx context.Context, tx Transaction) (SuspendedTransaction, error)
	Resume(ctx context.Context, handle SuspendedTransaction) (Transaction, error)
}

// BusinessInvoker executes one resolved method on a worker.
type BusinessInvoker interface {
	Invoke(ctx context.Context, worker *Instance, handle MethodHandle, args []any) Outcome
}

// InvocationRecord is the audit entry emitted once per call.
type InvocationRecord struct {
	CallID      string
	ComponentID string
	Method      string
	Principal   string
	Outcome     string
	TxState     string
	Duration    time.Duration
	Error       string
	CreatedAt   time.Time
}

type InvocationRecorder interface {
	RecordInvocation(ctx context.Context, record InvocationRecord) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
