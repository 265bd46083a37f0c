package core

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
)

type registrySnapshot map[string]ComponentMetadata

// DeploymentRegistry holds deployed components. Readers load an immutable
// snapshot without locking; writers copy the snapshot under mu and swap it.
type DeploymentRegistry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[registrySnapshot]
}

func NewDeploymentRegistry() *DeploymentRegistry {
	r := &DeploymentRegistry{}
	empty := registrySnapshot{}
	r.snapshot.Store(&empty)
	return r
}

func (r *DeploymentRegistry) Deploy(component ComponentMetadata) error {
	if component == nil {
		return badInputError("core: component is nil", nil)
	}
	id := strings.TrimSpace(component.ID())
	if id == "" {
		return badInputError("core: component id is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.load()
	if _, exists := current[id]; exists {
		return containerError(
			"core: component already deployed: "+id,
			goerrors.CategoryConflict,
			http.StatusConflict,
			ContainerErrorDuplicateDeployment,
			map[string]any{"component_id": id},
		)
	}
	next := make(registrySnapshot, len(current)+1)
	for key, value := range current {
		next[key] = value
	}
	next[id] = component
	r.snapshot.Store(&next)
	return nil
}

// Undeploy removes a component and reports whether it was present.
func (r *DeploymentRegistry) Undeploy(componentID string) (ComponentMetadata, bool) {
	id := strings.TrimSpace(componentID)
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.load()
	component, exists := current[id]
	if !exists {
		return nil, false
	}
	next := make(registrySnapshot, len(current))
	for key, value := range current {
		if key != id {
			next[key] = value
		}
	}
	r.snapshot.Store(&next)
	return component, true
}

func (r *DeploymentRegistry) Lookup(componentID string) (ComponentMetadata, bool) {
	id := strings.TrimSpace(componentID)
	if id == "" {
		return nil, false
	}
	component, ok := r.load()[id]
	return component, ok
}

func (r *DeploymentRegistry) Deployments() []ComponentMetadata {
	current := r.load()
	keys := make([]string, 0, len(current))
	for id := range current {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	out := make([]ComponentMetadata, 0, len(keys))
	for _, id := range keys {
		out = append(out, current[id])
	}
	return out
}

func (r *DeploymentRegistry) load() registrySnapshot {
	if snap := r.snapshot.Load(); snap != nil {
		return *snap
	}
	return registrySnapshot{}
}
