package command

import (
	"strings"

	"github.com/goliatone/go-container/core"
)

const (
	TypeInvoke   = "container.command.invoke"
	TypeDeploy   = "container.command.deploy"
	TypeUndeploy = "container.command.undeploy"
)

type InvokeMessage struct {
	Request core.InvokeRequest
}

func (InvokeMessage) Type() string { return TypeInvoke }

func (m InvokeMessage) Validate() error {
	if strings.TrimSpace(m.Request.ComponentID) == "" {
		return commandValidationError("component_id", "component id is required")
	}
	if strings.TrimSpace(m.Request.Method.Name) == "" {
		return commandValidationError("method", "method name is required")
	}
	return nil
}

type DeployMessage struct {
	Spec core.DeploymentSpec
}

func (DeployMessage) Type() string { return TypeDeploy }

func (m DeployMessage) Validate() error {
	if strings.TrimSpace(m.Spec.ID) == "" {
		return commandValidationError("id", "component id is required")
	}
	if m.Spec.Factory == nil {
		return commandValidationError("factory", "worker factory is required")
	}
	if len(m.Spec.Methods) == 0 {
		return commandValidationError("methods", "at least one method is required")
	}
	return nil
}

type UndeployMessage struct {
	ComponentID string
}

func (UndeployMessage) Type() string { return TypeUndeploy }

func (m UndeployMessage) Validate() error {
	if strings.TrimSpace(m.ComponentID) == "" {
		return commandValidationError("component_id", "component id is required")
	}
	return nil
}
