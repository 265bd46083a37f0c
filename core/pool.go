package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/jackc/puddle/v2"
)

// ExhaustedStrategy controls checkout behavior when every instance is lent out.
type ExhaustedStrategy string

const (
	ExhaustedBlock ExhaustedStrategy = "block"
	ExhaustedFail  ExhaustedStrategy = "fail"
)

const (
	defaultPoolMaxSize        = 10
	defaultPoolAcquireTimeout = 30 * time.Second
)

type PoolConfig struct {
	MinSize        int               `koanf:"min_size" mapstructure:"min_size"`
	MaxSize        int               `koanf:"max_size" mapstructure:"max_size"`
	AcquireTimeout time.Duration     `koanf:"acquire_timeout" mapstructure:"acquire_timeout"`
	Exhausted      ExhaustedStrategy `koanf:"exhausted" mapstructure:"exhausted"`
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinSize:        0,
		MaxSize:        defaultPoolMaxSize,
		AcquireTimeout: defaultPoolAcquireTimeout,
		Exhausted:      ExhaustedBlock,
	}
}

func (c PoolConfig) Validate() error {
	if c.MaxSize < 1 {
		return fmt.Errorf("core: pool.max_size must be >= 1")
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("core: pool.min_size must be between 0 and pool.max_size")
	}
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("core: pool.acquire_timeout must not be negative")
	}
	switch c.Exhausted {
	case ExhaustedBlock, ExhaustedFail:
	default:
		return fmt.Errorf("core: invalid pool.exhausted strategy %q", c.Exhausted)
	}
	return nil
}

// Merge overlays the non-zero fields of override on c.
func (c PoolConfig) Merge(override PoolConfig) PoolConfig {
	out := c
	if override.MinSize > 0 {
		out.MinSize = override.MinSize
	}
	if override.MaxSize > 0 {
		out.MaxSize = override.MaxSize
	}
	if override.AcquireTimeout > 0 {
		out.AcquireTimeout = override.AcquireTimeout
	}
	if strings.TrimSpace(string(override.Exhausted)) != "" {
		out.Exhausted = override.Exhausted
	}
	if out.MinSize > out.MaxSize {
		out.MinSize = out.MaxSize
	}
	return out
}

// Instance is one pooled worker. It is owned by the pool while idle and by
// exactly one call while checked out.
type Instance struct {
	ID        string
	Worker    any
	CreatedAt time.Time

	removed atomic.Bool
}

type leaseState int

const (
	leaseHeld leaseState = iota
	leaseReleased
	leaseDiscarded
)

// Lease is one checkout of an Instance. Release and Discard act on the lease,
// so a lease that was already returned cannot touch a later borrower's
// checkout of the same instance.
type Lease struct {
	pool     *InstancePool
	instance *Instance
	res      *puddle.Resource[*Instance]
	state    leaseState
}

// Instance returns the leased instance.
func (l *Lease) Instance() *Instance {
	if l == nil {
		return nil
	}
	return l.instance
}

// PoolStats is a point-in-time view of one component's pool.
type PoolStats struct {
	ComponentID string `json:"component_id"`
	Idle        int    `json:"idle"`
	Acquired    int    `json:"acquired"`
	Total       int    `json:"total"`
	Max         int    `json:"max"`
	Created     int64  `json:"created"`
	Discarded   int64  `json:"discarded"`
	Released    int64  `json:"released"`
}

// InstancePool lends worker instances of one component to concurrent callers.
type InstancePool struct {
	componentID string
	config      PoolConfig
	factory     WorkerFactory
	pool        *puddle.Pool[*Instance]

	mu       sync.Mutex
	reserved int

	created      atomic.Int64
	discardCount atomic.Int64
	releaseCount atomic.Int64
}

type creationError struct {
	err error
}

func (e creationError) Error() string { return e.err.Error() }

func (e creationError) Unwrap() error { return e.err }

func NewInstancePool(componentID string, cfg PoolConfig, factory WorkerFactory) (*InstancePool, error) {
	if factory == nil {
		return nil, fmt.Errorf("core: worker factory is required for %q", componentID)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &InstancePool{
		componentID: componentID,
		config:      cfg,
		factory:     factory,
	}
	pool, err := puddle.NewPool(&puddle.Config[*Instance]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     int32(cfg.MaxSize),
	})
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// Prewarm creates idle instances up to the configured minimum.
func (p *InstancePool) Prewarm(ctx context.Context) error {
	for i := int(p.pool.Stat().TotalResources()); i < p.config.MinSize; i++ {
		if err := p.pool.CreateResource(ctx); err != nil {
			if errors.Is(err, puddle.ErrNotAvailable) {
				return nil
			}
			return systemFault(err, "core: prewarm instance creation failed", map[string]any{
				"component_id": p.componentID,
			})
		}
	}
	return nil
}

// Checkout lends an instance to the caller, creating one when none is idle
// and the pool is below its maximum.
func (p *InstancePool) Checkout(ctx context.Context) (*Lease, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fields := map[string]any{"component_id": p.componentID}

	if p.config.Exhausted == ExhaustedFail {
		if !p.reserve() {
			return nil, resourceUnavailableError(puddle.ErrNotAvailable, "core: instance pool exhausted", fields)
		}
	}

	acquireCtx := ctx
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	res, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		if p.config.Exhausted == ExhaustedFail {
			p.unreserve()
		}
		var createErr creationError
		if errors.As(err, &createErr) {
			return nil, systemFault(createErr.err, "core: instance creation failed", fields)
		}
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, resourceUnavailableError(err, "core: instance pool closed", fields)
		}
		return nil, resourceUnavailableError(err, "core: no instance available before timeout", fields)
	}

	return &Lease{pool: p, instance: res.Value(), res: res}, nil
}

// Release returns a healthy instance to the idle set. Releasing a lease that
// was already released is a no-op; releasing a discarded one is an error.
func (p *InstancePool) Release(_ context.Context, lease *Lease) error {
	if lease == nil || lease.instance == nil {
		return badInputError("core: cannot release nil lease", nil)
	}
	fields := map[string]any{"component_id": p.componentID, "instance_id": lease.instance.ID}
	p.mu.Lock()
	if lease.pool != p {
		p.mu.Unlock()
		return badInputError("core: lease belongs to another pool", fields)
	}
	switch lease.state {
	case leaseReleased:
		p.mu.Unlock()
		return nil
	case leaseDiscarded:
		p.mu.Unlock()
		return containerError(
			"core: instance was discarded and cannot be released",
			goerrors.CategoryConflict,
			http.StatusConflict,
			ContainerErrorInstanceNotCheckedOut,
			fields,
		)
	}
	lease.state = leaseReleased
	if p.config.Exhausted == ExhaustedFail {
		p.reserved--
	}
	p.mu.Unlock()

	lease.res.Release()
	p.releaseCount.Add(1)
	return nil
}

// Discard permanently removes a leased instance. The worker's Remover hook
// runs before the slot is freed.
func (p *InstancePool) Discard(ctx context.Context, lease *Lease) error {
	if lease == nil || lease.instance == nil {
		return badInputError("core: cannot discard nil lease", nil)
	}
	inst := lease.instance
	fields := map[string]any{"component_id": p.componentID, "instance_id": inst.ID}
	p.mu.Lock()
	if lease.pool != p || lease.state != leaseHeld {
		p.mu.Unlock()
		return containerError(
			"core: instance is not checked out",
			goerrors.CategoryConflict,
			http.StatusConflict,
			ContainerErrorInstanceNotCheckedOut,
			fields,
		)
	}
	lease.state = leaseDiscarded
	if p.config.Exhausted == ExhaustedFail {
		p.reserved--
	}
	p.mu.Unlock()

	if callCtx, ok := CallContextFrom(ctx); ok {
		callCtx.SetOperation(OperationRemove)
	}
	removeErr := removeWorker(ctx, inst)
	lease.res.Destroy()
	p.discardCount.Add(1)
	if removeErr != nil {
		return systemFault(removeErr, "core: worker remove hook failed", fields)
	}
	return nil
}

func (p *InstancePool) Stats() PoolStats {
	stat := p.pool.Stat()
	return PoolStats{
		ComponentID: p.componentID,
		Idle:        int(stat.IdleResources()),
		Acquired:    int(stat.AcquiredResources()),
		Total:       int(stat.TotalResources()),
		Max:         int(stat.MaxResources()),
		Created:     p.created.Load(),
		Discarded:   p.discardCount.Load(),
		Released:    p.releaseCount.Load(),
	}
}

// Close destroys idle instances and waits for lent instances to come back.
func (p *InstancePool) Close() {
	p.pool.Close()
}

func (p *InstancePool) reserve() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved >= p.config.MaxSize {
		return false
	}
	p.reserved++
	return true
}

func (p *InstancePool) unreserve() {
	p.mu.Lock()
	p.reserved--
	p.mu.Unlock()
}

func (p *InstancePool) construct(ctx context.Context) (*Instance, error) {
	if callCtx, ok := CallContextFrom(ctx); ok {
		callCtx.SetOperation(OperationCreate)
	}
	worker, err := p.factory(ctx)
	if err != nil {
		return nil, creationError{err: err}
	}
	if worker == nil {
		return nil, creationError{err: fmt.Errorf("core: worker factory for %q returned nil", p.componentID)}
	}
	if initializer, ok := worker.(Initializer); ok {
		if err := initializer.Init(ctx); err != nil {
			return nil, creationError{err: err}
		}
	}
	p.created.Add(1)
	return &Instance{
		ID:        uuid.NewString(),
		Worker:    worker,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (p *InstancePool) destruct(inst *Instance) {
	_ = removeWorker(context.Background(), inst)
}

func removeWorker(ctx context.Context, inst *Instance) error {
	if inst == nil || !inst.removed.CompareAndSwap(false, true) {
		return nil
	}
	remover, ok := inst.Worker.(Remover)
	if !ok {
		return nil
	}
	return remover.Remove(ctx)
}
