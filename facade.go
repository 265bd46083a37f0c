package container

import (
	"fmt"

	containercommand "github.com/goliatone/go-container/command"
	"github.com/goliatone/go-container/core"
	containerquery "github.com/goliatone/go-container/query"
)

type CommandQueryContainer interface {
	containercommand.InvocationService
	containercommand.DeploymentService
	containerquery.PoolStatsReader
	containerquery.DeploymentLister
}

type Commands struct {
	Invoke   *containercommand.InvokeCommand
	Deploy   *containercommand.DeployCommand
	Undeploy *containercommand.UndeployCommand
}

type Queries struct {
	PoolStats       *containerquery.PoolStatsQuery
	ListDeployments *containerquery.ListDeploymentsQuery
	ListInvocations *containerquery.ListInvocationsQuery
}

type Facade struct {
	container CommandQueryContainer
	commands  Commands
	queries   Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	invocationReader containerquery.InvocationReader
}

func WithInvocationReader(reader containerquery.InvocationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.invocationReader = reader
	}
}

func NewFacade(container CommandQueryContainer, opts ...FacadeOption) (*Facade, error) {
	if container == nil {
		return nil, fmt.Errorf("container: command/query container is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.invocationReader
	if reader == nil {
		reader = resolveInvocationReader(container)
	}

	facade := &Facade{container: container}
	facade.commands = Commands{
		Invoke:   containercommand.NewInvokeCommand(container),
		Deploy:   containercommand.NewDeployCommand(container),
		Undeploy: containercommand.NewUndeployCommand(container),
	}
	facade.queries = Queries{
		PoolStats:       containerquery.NewPoolStatsQuery(container),
		ListDeployments: containerquery.NewListDeploymentsQuery(container),
		ListInvocations: containerquery.NewListInvocationsQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Container() CommandQueryContainer {
	if f == nil {
		return nil
	}
	return f.container
}

// resolveInvocationReader falls back to the container's audit recorder when
// it can also page through what it recorded.
func resolveInvocationReader(container CommandQueryContainer) containerquery.InvocationReader {
	if reader, ok := container.(containerquery.InvocationReader); ok {
		return reader
	}
	provider, ok := container.(interface {
		Dependencies() core.ContainerDependencies
	})
	if !ok {
		return nil
	}
	reader, ok := provider.Dependencies().InvocationRecorder.(containerquery.InvocationReader)
	if !ok {
		return nil
	}
	return reader
}
