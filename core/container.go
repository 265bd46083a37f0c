package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// DeploymentWriter is implemented by registries the container can deploy to.
type DeploymentWriter interface {
	Deploy(component ComponentMetadata) error
	Undeploy(componentID string) (ComponentMetadata, bool)
}

// Container dispatches invocations to pooled workers of deployed components.
// It holds no per-call state; every call gets its own CallContext and
// TransactionContext.
type Container struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	registry           Registry
	authorizer         Authorizer
	transactionManager TransactionManager
	invoker            BusinessInvoker
	invocationRecorder InvocationRecorder
	policies           map[TransactionAttribute]TransactionPolicy

	poolsMu sync.Mutex
	pools   map[string]*poolEntry
	closed  atomic.Bool
}

type poolEntry struct {
	component ComponentMetadata
	pool      *InstancePool
}

type ContainerDependencies struct {
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetricsRecorder    MetricsRecorder
	ConfigProvider     ConfigProvider
	OptionsResolver    OptionsResolver
	Registry           Registry
	Authorizer         Authorizer
	TransactionManager TransactionManager
	Invoker            BusinessInvoker
	InvocationRecorder InvocationRecorder
}

// DeploymentInfo summarizes one deployed component.
type DeploymentInfo struct {
	ComponentID string    `json:"component_id"`
	Methods     []string  `json:"methods,omitempty"`
	Pool        PoolStats `json:"pool"`
}

func NewContainer(cfg Config, opts ...Option) (*Container, error) {
	builder := defaultContainerBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("container", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("container"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewDeploymentRegistry()
	}
	if builder.authorizer == nil {
		builder.authorizer = NewRoleAuthorizer()
	}
	if builder.transactionManager == nil {
		builder.transactionManager = NewLocalTransactionManager()
	}
	if builder.invoker == nil {
		builder.invoker = DirectInvoker{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, badInputError(fmt.Sprintf("core: load config: %v", err), nil)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, badInputError(fmt.Sprintf("core: resolve config: %v", err), nil)
	}

	policies := map[TransactionAttribute]TransactionPolicy{}
	for _, attr := range []TransactionAttribute{TxRequired, TxRequiresNew, TxMandatory, TxSupports, TxNotSupported, TxNever} {
		policies[attr] = PolicyFor(attr)
	}
	for attr, policy := range builder.policies {
		policies[attr] = policy
	}

	return &Container{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		configProvider:     builder.configProvider,
		optionsResolver:    builder.optionsResolver,
		registry:           builder.registry,
		authorizer:         builder.authorizer,
		transactionManager: builder.transactionManager,
		invoker:            builder.invoker,
		invocationRecorder: builder.invocationRecorder,
		policies:           policies,
		pools:              map[string]*poolEntry{},
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Container, error) {
	return NewContainer(cfg, opts...)
}

func (c *Container) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Container) Dependencies() ContainerDependencies {
	if c == nil {
		return ContainerDependencies{}
	}
	return ContainerDependencies{
		Logger:             c.logger,
		LoggerProvider:     c.loggerProvider,
		MetricsRecorder:    c.metricsRecorder,
		ConfigProvider:     c.configProvider,
		OptionsResolver:    c.optionsResolver,
		Registry:           c.registry,
		Authorizer:         c.authorizer,
		TransactionManager: c.transactionManager,
		Invoker:            c.invoker,
		InvocationRecorder: c.invocationRecorder,
	}
}

// Invoke runs one call: lookup, call context binding, authorization, method
// classification, checkout, the transaction bracket, and release or discard.
// The call context is cleared on every return path.
func (c *Container) Invoke(ctx context.Context, req InvokeRequest) (result InvokeResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now().UTC()
	method := normalizeMethod(req.Method)
	componentID := strings.TrimSpace(req.ComponentID)
	trace := &invocationTrace{
		componentID: componentID,
		method:      method,
		principal:   req.Identity.Principal,
		txState:     TxStateNone,
	}
	defer func() {
		err = withFaultMetadata(err, map[string]any{
			"component_id": componentID,
			"method":       method.String(),
			"call_id":      trace.callID,
		})
		c.observeInvocation(ctx, startedAt, trace, err)
	}()

	if c.closed.Load() {
		return InvokeResult{}, resourceUnavailableError(nil, "core: container is closed", nil)
	}
	if componentID == "" {
		return InvokeResult{}, badInputError("core: component id is required", nil)
	}
	if method.Name == "" {
		return InvokeResult{}, badInputError("core: method name is required", nil)
	}

	component, ok := c.registry.Lookup(componentID)
	if !ok || component == nil {
		return InvokeResult{}, notFoundError(componentID, nil)
	}

	// The inbound transaction is read before binding so an enclosing
	// invocation's transaction propagates into nested calls.
	clientTx, _ := CurrentTransaction(ctx)

	callCtx, call := BindCallContext(ctx, component, req.TargetKey, req.Identity)
	defer call.Clear()
	trace.callID = call.CallID()
	trace.call = call
	result.CallID = trace.callID

	allowed, authErr := AuthorizeMethod(callCtx, c.authorizer, component, method, req.Identity)
	if authErr != nil {
		return result, systemFault(authErr, "core: authorization check failed", nil)
	}
	if !allowed {
		return result, unauthorizedError(req.Identity.Principal, nil)
	}

	switch {
	case method.isHome() && method.Name == MethodCreate:
		result.Value = c.newReference(component, method)
		result.Handled = true
		trace.handled = true
		return result, nil
	case method.isHome() || method.isObject():
		return result, nil
	case method.Facet != FacetBusiness:
		return result, badInputError(fmt.Sprintf("core: unknown method facet %q", method.Facet), nil)
	}

	pool, err := c.poolFor(callCtx, component)
	if err != nil {
		return result, err
	}
	lease, err := pool.Checkout(callCtx)
	if err != nil {
		return result, err
	}
	call.SetOperation(OperationBusiness)

	value, err := c.invokeBusiness(callCtx, call, component, method, pool, lease, req.Args, clientTx, trace)
	if err != nil {
		return result, err
	}
	result.Value = value
	result.Handled = true
	trace.handled = true
	return result, nil
}

func (c *Container) invokeBusiness(
	ctx context.Context,
	call *CallContext,
	component ComponentMetadata,
	method Method,
	pool *InstancePool,
	lease *Lease,
	args []any,
	clientTx Transaction,
	trace *invocationTrace,
) (any, error) {
	worker := lease.Instance()
	settled := false
	defer func() {
		// a panic escaping a policy leaves the worker in an unknown state
		if !settled {
			_ = pool.Discard(context.WithoutCancel(ctx), lease)
		}
	}()

	handle, resolveErr := component.Resolve(method)
	if resolveErr != nil {
		settled = true
		c.releaseWorker(ctx, pool, lease, trace)
		return nil, systemFault(resolveErr, "core: method resolution failed", nil)
	}

	policy := c.policyFor(component.TransactionAttribute(method))
	txCtx := NewTransactionContext(call, c.transactionManager, method, clientTx)
	call.attachTransaction(txCtx)
	afterInvoke := func() error {
		afterErr := policy.AfterInvoke(ctx, worker, txCtx)
		call.detachTransaction()
		trace.txState = txCtx.State()
		return afterErr
	}

	if beforeErr := policy.BeforeInvoke(ctx, worker, txCtx); beforeErr != nil {
		if afterErr := afterInvoke(); afterErr != nil {
			trace.note("after_invoke_error", afterErr.Error())
		}
		settled = true
		c.releaseWorker(ctx, pool, lease, trace)
		return nil, asFault(beforeErr, FaultSystem)
	}

	outcome := c.invoker.Invoke(ctx, worker, handle, args)

	switch outcome.Kind {
	case OutcomeReturned:
		afterErr := afterInvoke()
		settled = true
		c.releaseWorker(ctx, pool, lease, trace)
		if afterErr != nil {
			return nil, asFault(afterErr, FaultSystem)
		}
		return component.ConvertResult(method, outcome.Value), nil

	case OutcomeApplicationFault:
		// The worker is still healthy and goes back before the policy reacts.
		settled = true
		c.releaseWorker(ctx, pool, lease, trace)
		fault := asFault(policy.HandleApplicationException(ctx, outcome.Err, txCtx), FaultApplication)
		if afterErr := afterInvoke(); afterErr != nil {
			trace.note("after_invoke_error", afterErr.Error())
			fault = withFaultMetadata(fault, map[string]any{"after_invoke_error": afterErr.Error()})
		}
		return nil, fault

	default:
		handled := policy.HandleSystemException(ctx, outcome.Err, worker, txCtx)
		if handled == nil {
			handled = outcome.Err
		}
		fault := asFault(handled, FaultSystem)
		if afterErr := afterInvoke(); afterErr != nil {
			trace.note("after_invoke_error", afterErr.Error())
			fault = withFaultMetadata(fault, map[string]any{"after_invoke_error": afterErr.Error()})
		}
		settled = true
		if discardErr := pool.Discard(ctx, lease); discardErr != nil {
			trace.note("discard_error", discardErr.Error())
		}
		trace.note("instance_discarded", worker.ID)
		return nil, fault
	}
}

func (c *Container) releaseWorker(ctx context.Context, pool *InstancePool, lease *Lease, trace *invocationTrace) {
	if err := pool.Release(ctx, lease); err != nil {
		trace.note("release_error", err.Error())
	}
}

// asFault keeps err's classification when it already is want, and wraps it
// otherwise, so a fault is classified exactly once.
func asFault(err error, want FaultKind) error {
	if err == nil {
		if want == FaultApplication {
			return applicationFault(nil, nil)
		}
		return systemFault(nil, "", nil)
	}
	if FaultKindOf(err) == want {
		return err
	}
	if want == FaultApplication {
		return applicationFault(err, nil)
	}
	return systemFault(err, err.Error(), nil)
}

func (c *Container) policyFor(attr TransactionAttribute) TransactionPolicy {
	if attr == "" {
		attr = c.config.Transaction.DefaultAttribute
	}
	if policy, ok := c.policies[attr]; ok && policy != nil {
		return policy
	}
	return PolicyFor(attr)
}

func (c *Container) newReference(component ComponentMetadata, method Method) Reference {
	return Reference{
		ID:          uuid.NewString(),
		ComponentID: component.ID(),
		Local:       method.isLocal(),
		ContainerID: c.config.ContainerID,
	}
}

func (c *Container) poolFor(ctx context.Context, component ComponentMetadata) (*InstancePool, error) {
	id := component.ID()
	c.poolsMu.Lock()
	defer c.poolsMu.Unlock()
	// A call that looked up a component before it was undeployed or replaced
	// must not build a pool for it.
	if current, ok := c.registry.Lookup(id); !ok || current != component {
		return nil, notFoundError(id, nil)
	}
	if entry, ok := c.pools[id]; ok {
		if entry.component == component {
			return entry.pool, nil
		}
		go entry.pool.Close()
		delete(c.pools, id)
	}
	cfg := c.config.Pool.Merge(component.PoolConfig())
	pool, err := NewInstancePool(id, cfg, component.NewWorker)
	if err != nil {
		return nil, systemFault(err, "core: instance pool setup failed", map[string]any{"component_id": id})
	}
	c.pools[id] = &poolEntry{component: component, pool: pool}
	return pool, nil
}

// Deploy registers a component described by spec and pre-warms its pool.
func (c *Container) Deploy(ctx context.Context, spec DeploymentSpec) (*Deployment, error) {
	deployment, err := NewDeployment(spec)
	if err != nil {
		return nil, err
	}
	if err := c.DeployComponent(ctx, deployment); err != nil {
		return nil, err
	}
	return deployment, nil
}

func (c *Container) DeployComponent(ctx context.Context, component ComponentMetadata) (err error) {
	startedAt := time.Now().UTC()
	componentID := ""
	if component != nil {
		componentID = component.ID()
	}
	defer func() {
		c.observeLifecycle(ctx, startedAt, "deploy", componentID, err)
	}()

	writer, ok := c.registry.(DeploymentWriter)
	if !ok {
		return badInputError("core: registry does not accept deployments", nil)
	}
	if err = writer.Deploy(component); err != nil {
		return err
	}
	pool, err := c.poolFor(ctx, component)
	if err == nil {
		err = pool.Prewarm(ctx)
	}
	if err != nil {
		writer.Undeploy(componentID)
		c.dropPool(componentID)
		return err
	}
	return nil
}

// Undeploy removes a component and drains its pool. It waits for checked-out
// workers to come back.
func (c *Container) Undeploy(ctx context.Context, componentID string) (err error) {
	startedAt := time.Now().UTC()
	componentID = strings.TrimSpace(componentID)
	defer func() {
		c.observeLifecycle(ctx, startedAt, "undeploy", componentID, err)
	}()

	writer, ok := c.registry.(DeploymentWriter)
	if !ok {
		return badInputError("core: registry does not accept deployments", nil)
	}
	if _, removed := writer.Undeploy(componentID); !removed {
		return notFoundError(componentID, nil)
	}
	c.dropPool(componentID)
	return nil
}

func (c *Container) PoolStats(componentID string) (PoolStats, error) {
	componentID = strings.TrimSpace(componentID)
	component, ok := c.registry.Lookup(componentID)
	if !ok {
		return PoolStats{}, notFoundError(componentID, nil)
	}
	c.poolsMu.Lock()
	entry, ok := c.pools[componentID]
	c.poolsMu.Unlock()
	if !ok || entry.component != component {
		cfg := c.config.Pool.Merge(component.PoolConfig())
		return PoolStats{ComponentID: componentID, Max: cfg.MaxSize}, nil
	}
	return entry.pool.Stats(), nil
}

func (c *Container) ListDeployments() []DeploymentInfo {
	components := c.registry.Deployments()
	out := make([]DeploymentInfo, 0, len(components))
	for _, component := range components {
		info := DeploymentInfo{ComponentID: component.ID()}
		if lister, ok := component.(interface{ Methods() []Method }); ok {
			for _, method := range lister.Methods() {
				info.Methods = append(info.Methods, method.String())
			}
		}
		if stats, err := c.PoolStats(component.ID()); err == nil {
			info.Pool = stats
		}
		out = append(out, info)
	}
	return out
}

// Close rejects new invocations and drains every pool.
func (c *Container) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.poolsMu.Lock()
	entries := c.pools
	c.pools = map[string]*poolEntry{}
	c.poolsMu.Unlock()
	for _, entry := range entries {
		entry.pool.Close()
	}
}

func (c *Container) dropPool(componentID string) {
	c.poolsMu.Lock()
	entry, ok := c.pools[componentID]
	delete(c.pools, componentID)
	c.poolsMu.Unlock()
	if ok {
		entry.pool.Close()
	}
}

func (c *Container) observeLifecycle(ctx context.Context, startedAt time.Time, operation string, componentID string, err error) {
	fields := map[string]any{
		"component_id": componentID,
		"duration_ms":  time.Since(startedAt).Milliseconds(),
	}
	tags := map[string]string{"component_id": componentID, "status": "success"}
	if err != nil {
		fields["error"] = err.Error()
		tags["status"] = "failure"
		c.recordCounter(ctx, "container."+operation+".total", 1, tags)
		c.logError(ctx, operation+" failed", fields)
		return
	}
	c.recordCounter(ctx, "container."+operation+".total", 1, tags)
	c.logInfo(ctx, operation+" succeeded", fields)
}
