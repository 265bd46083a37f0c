package container

import (
	"context"

	"github.com/goliatone/go-container/core"
)

type Config = core.Config
type PoolConfig = core.PoolConfig
type TransactionConfig = core.TransactionConfig
type AuditConfig = core.AuditConfig

type Option = core.Option

type Container = core.Container
type ContainerDependencies = core.ContainerDependencies

type DeploymentSpec = core.DeploymentSpec
type MethodSpec = core.MethodSpec
type MethodHandle = core.MethodHandle
type Deployment = core.Deployment
type DeploymentInfo = core.DeploymentInfo
type PoolStats = core.PoolStats

type InvokeRequest = core.InvokeRequest
type InvokeResult = core.InvokeResult
type Method = core.Method
type SecurityIdentity = core.SecurityIdentity
type TransactionAttribute = core.TransactionAttribute
type FaultKind = core.FaultKind

type Authorizer = core.Authorizer
type TransactionManager = core.TransactionManager
type Transaction = core.Transaction
type InvocationRecorder = core.InvocationRecorder
type InvocationRecord = core.InvocationRecord
type MetricsRecorder = core.MetricsRecorder

const (
	TxRequired     = core.TxRequired
	TxRequiresNew  = core.TxRequiresNew
	TxMandatory    = core.TxMandatory
	TxSupports     = core.TxSupports
	TxNotSupported = core.TxNotSupported
	TxNever        = core.TxNever

	ExhaustedBlock = core.ExhaustedBlock
	ExhaustedFail  = core.ExhaustedFail
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithRegistry           = core.WithRegistry
	WithAuthorizer         = core.WithAuthorizer
	WithTransactionManager = core.WithTransactionManager
	WithTransactionPolicy  = core.WithTransactionPolicy
	WithInvoker            = core.WithInvoker
	WithInvocationRecorder = core.WithInvocationRecorder

	NewApplicationError = core.NewApplicationError
	NewSystemError      = core.NewSystemError
	FaultKindOf         = core.FaultKindOf
	BusinessMethod      = core.BusinessMethod
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewContainer(cfg Config, opts ...Option) (*Container, error) {
	return core.NewContainer(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Container, error) {
	return core.Setup(cfg, opts...)
}

// CurrentTransaction returns the transaction bound to a running call.
func CurrentTransaction(ctx context.Context) (Transaction, bool) {
	return core.CurrentTransaction(ctx)
}

func Handler0[W any, R any](fn func(ctx context.Context, worker W) (R, error)) MethodHandle {
	return core.Handler0(fn)
}

func Handler1[W any, A any, R any](fn func(ctx context.Context, worker W, arg A) (R, error)) MethodHandle {
	return core.Handler1(fn)
}

func Handler2[W any, A any, B any, R any](fn func(ctx context.Context, worker W, a A, b B) (R, error)) MethodHandle {
	return core.Handler2(fn)
}
