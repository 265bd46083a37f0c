// Package gocommand wires container commands and queries into go-command
// registries and the go-command dispatcher.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	containercommand "github.com/goliatone/go-container/command"
	"github.com/goliatone/go-container/core"
	containerquery "github.com/goliatone/go-container/query"
	sqlstore "github.com/goliatone/go-container/store/sql"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	// go-command registers queriers through the same entry point
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so container commands can be executed by queue workers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// ContainerSubscriptions holds the dispatcher subscriptions created by
// RegisterContainer.
type ContainerSubscriptions []commanddispatcher.Subscription

func (s ContainerSubscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterContainer registers and subscribes the container command and query
// handlers. invocations is optional; without it the invocation list query is
// not registered. On failure every subscription made so far is removed.
func RegisterContainer(
	adapter *RegistryAdapter,
	container *core.Container,
	invocations containerquery.InvocationReader,
	runnerOpts ...runner.Option,
) (subs ContainerSubscriptions, err error) {
	if container == nil {
		return nil, fmt.Errorf("gocommand: container is required")
	}
	defer func() {
		if err != nil {
			subs.Unsubscribe()
			subs = nil
		}
	}()

	add := func(sub commanddispatcher.Subscription, regErr error) error {
		if regErr != nil {
			return regErr
		}
		subs = append(subs, sub)
		return nil
	}

	if err = add(RegisterAndSubscribe[containercommand.InvokeMessage](adapter, containercommand.NewInvokeCommand(container), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[containercommand.DeployMessage](adapter, containercommand.NewDeployCommand(container), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribe[containercommand.UndeployMessage](adapter, containercommand.NewUndeployCommand(container), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribeQuery[containerquery.PoolStatsMessage, core.PoolStats](adapter, containerquery.NewPoolStatsQuery(container), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = add(RegisterAndSubscribeQuery[containerquery.ListDeploymentsMessage, []core.DeploymentInfo](adapter, containerquery.NewListDeploymentsQuery(container), runnerOpts...)); err != nil {
		return subs, err
	}
	if invocations != nil {
		if err = add(RegisterAndSubscribeQuery[containerquery.ListInvocationsMessage, sqlstore.InvocationAuditPage](adapter, containerquery.NewListInvocationsQuery(invocations), runnerOpts...)); err != nil {
			return subs, err
		}
	}
	return subs, nil
}
