package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-container/core"
)

type InvocationService interface {
	Invoke(ctx context.Context, req core.InvokeRequest) (core.InvokeResult, error)
}

type DeploymentService interface {
	Deploy(ctx context.Context, spec core.DeploymentSpec) (*core.Deployment, error)
	Undeploy(ctx context.Context, componentID string) error
}

type InvokeCommand struct {
	service InvocationService
}

func NewInvokeCommand(service InvocationService) *InvokeCommand {
	return &InvokeCommand{service: service}
}

// Execute runs the invocation and stores the core.InvokeResult in the
// context result collector when one is present.
func (c *InvokeCommand) Execute(ctx context.Context, msg InvokeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: invocation service is required")
	}
	out, err := c.service.Invoke(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeployCommand struct {
	service DeploymentService
}

func NewDeployCommand(service DeploymentService) *DeployCommand {
	return &DeployCommand{service: service}
}

func (c *DeployCommand) Execute(ctx context.Context, msg DeployMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: deployment service is required")
	}
	out, err := c.service.Deploy(ctx, msg.Spec)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UndeployCommand struct {
	service DeploymentService
}

func NewUndeployCommand(service DeploymentService) *UndeployCommand {
	return &UndeployCommand{service: service}
}

func (c *UndeployCommand) Execute(ctx context.Context, msg UndeployMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: deployment service is required")
	}
	return c.service.Undeploy(ctx, msg.ComponentID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
