package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// MethodSpec declares one callable method of a component.
type MethodSpec struct {
	Name        string
	Facet       Facet
	Roles       []string
	Excluded    bool
	Transaction TransactionAttribute
	Handle      MethodHandle
	// RollbackOn marks application faults that force the transaction to roll back.
	RollbackOn func(err error) bool
}

// DeploymentSpec describes a component at registration time.
type DeploymentSpec struct {
	ID                 string
	Factory            WorkerFactory
	Methods            []MethodSpec
	DefaultRoles       []string
	DefaultTransaction TransactionAttribute
	Pool               PoolConfig
	ConvertResult      func(method Method, value any) any
}

// Deployment is the immutable metadata of a registered component.
type Deployment struct {
	id                 string
	factory            WorkerFactory
	methods            map[Method]MethodSpec
	defaultRoles       []string
	defaultTransaction TransactionAttribute
	pool               PoolConfig
	convert            func(Method, any) any
}

func NewDeployment(spec DeploymentSpec) (*Deployment, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		return nil, badInputError("core: deployment id is required", nil)
	}
	if spec.Factory == nil {
		return nil, badInputError("core: deployment factory is required", map[string]any{"component_id": id})
	}
	if spec.DefaultTransaction != "" {
		if _, err := ParseTransactionAttribute(string(spec.DefaultTransaction)); err != nil {
			return nil, badInputError(err.Error(), map[string]any{"component_id": id})
		}
	}

	methods := make(map[Method]MethodSpec, len(spec.Methods))
	for _, m := range spec.Methods {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return nil, badInputError("core: method name is required", map[string]any{"component_id": id})
		}
		m.Name = name
		if m.Facet == "" {
			m.Facet = FacetBusiness
		}
		key := Method{Facet: m.Facet, Name: name}
		if _, exists := methods[key]; exists {
			return nil, badInputError(fmt.Sprintf("core: duplicate method %s", key), map[string]any{"component_id": id})
		}
		if m.Facet == FacetBusiness && m.Handle == nil {
			return nil, badInputError(fmt.Sprintf("core: method %s has no handle", key), map[string]any{"component_id": id})
		}
		if m.Transaction != "" {
			if _, err := ParseTransactionAttribute(string(m.Transaction)); err != nil {
				return nil, badInputError(err.Error(), map[string]any{"component_id": id, "method": key.String()})
			}
		}
		m.Roles = normalizeRoles(m.Roles)
		methods[key] = m
	}

	return &Deployment{
		id:                 id,
		factory:            spec.Factory,
		methods:            methods,
		defaultRoles:       normalizeRoles(spec.DefaultRoles),
		defaultTransaction: spec.DefaultTransaction,
		pool:               spec.Pool,
		convert:            spec.ConvertResult,
	}, nil
}

func (d *Deployment) ID() string { return d.id }

// AuthorizedRoles returns the roles allowed to call method. An empty list
// means the method is unchecked.
func (d *Deployment) AuthorizedRoles(method Method) ([]string, bool) {
	spec, ok := d.methods[normalizeMethod(method)]
	if !ok {
		return append([]string(nil), d.defaultRoles...), false
	}
	if spec.Excluded {
		return nil, true
	}
	if spec.Roles == nil {
		return append([]string(nil), d.defaultRoles...), false
	}
	return append([]string(nil), spec.Roles...), false
}

// TransactionAttribute returns the declared attribute, or empty when the
// container default applies.
func (d *Deployment) TransactionAttribute(method Method) TransactionAttribute {
	if spec, ok := d.methods[normalizeMethod(method)]; ok && spec.Transaction != "" {
		return spec.Transaction
	}
	return d.defaultTransaction
}

func (d *Deployment) IsRollbackTrigger(method Method, err error) bool {
	spec, ok := d.methods[normalizeMethod(method)]
	if !ok || spec.RollbackOn == nil || err == nil {
		return false
	}
	return spec.RollbackOn(err)
}

func (d *Deployment) Resolve(method Method) (MethodHandle, error) {
	spec, ok := d.methods[normalizeMethod(method)]
	if !ok || spec.Handle == nil {
		return nil, fmt.Errorf("core: component %q has no method %s", d.id, normalizeMethod(method))
	}
	return spec.Handle, nil
}

func (d *Deployment) NewWorker(ctx context.Context) (any, error) {
	return d.factory(ctx)
}

func (d *Deployment) PoolConfig() PoolConfig { return d.pool }

func (d *Deployment) ConvertResult(method Method, value any) any {
	if d.convert == nil {
		return value
	}
	return d.convert(normalizeMethod(method), value)
}

// Methods lists declared methods sorted by facet and name.
func (d *Deployment) Methods() []Method {
	out := make([]Method, 0, len(d.methods))
	for key := range d.methods {
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func normalizeMethod(method Method) Method {
	if method.Facet == "" {
		method.Facet = FacetBusiness
	}
	method.Name = strings.TrimSpace(method.Name)
	return method
}

func normalizeRoles(roles []string) []string {
	if roles == nil {
		return nil
	}
	out := make([]string, 0, len(roles))
	seen := map[string]struct{}{}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// Handler0 adapts a typed no-argument method into a MethodHandle.
func Handler0[W any, R any](fn func(ctx context.Context, worker W) (R, error)) MethodHandle {
	return func(ctx context.Context, worker any, args []any) (any, error) {
		w, err := workerAs[W](worker)
		if err != nil {
			return nil, err
		}
		if len(args) != 0 {
			return nil, NewSystemError(fmt.Errorf("core: expected 0 arguments, got %d", len(args)))
		}
		value, err := fn(ctx, w)
		return value, err
	}
}

// Handler1 adapts a typed one-argument method into a MethodHandle.
func Handler1[W any, A any, R any](fn func(ctx context.Context, worker W, arg A) (R, error)) MethodHandle {
	return func(ctx context.Context, worker any, args []any) (any, error) {
		w, err := workerAs[W](worker)
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, NewSystemError(fmt.Errorf("core: expected 1 argument, got %d", len(args)))
		}
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		value, err := fn(ctx, w, a)
		return value, err
	}
}

// Handler2 adapts a typed two-argument method into a MethodHandle.
func Handler2[W any, A any, B any, R any](fn func(ctx context.Context, worker W, a A, b B) (R, error)) MethodHandle {
	return func(ctx context.Context, worker any, args []any) (any, error) {
		w, err := workerAs[W](worker)
		if err != nil {
			return nil, err
		}
		if len(args) != 2 {
			return nil, NewSystemError(fmt.Errorf("core: expected 2 arguments, got %d", len(args)))
		}
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argAs[B](args, 1)
		if err != nil {
			return nil, err
		}
		value, err := fn(ctx, w, a, b)
		return value, err
	}
}

func workerAs[W any](worker any) (W, error) {
	w, ok := worker.(W)
	if !ok {
		var zero W
		return zero, NewSystemError(fmt.Errorf("core: worker type %T does not match handle type %T", worker, zero))
	}
	return w, nil
}

func argAs[A any](args []any, index int) (A, error) {
	var zero A
	// nil arguments bind to the zero value
	if args[index] == nil {
		return zero, nil
	}
	a, ok := args[index].(A)
	if !ok {
		return zero, NewSystemError(fmt.Errorf("core: argument %d has type %T, want %T", index, args[index], zero))
	}
	return a, nil
}
