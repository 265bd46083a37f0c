package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-container/core"
)

var (
	_ gocmd.Commander[InvokeMessage]   = (*InvokeCommand)(nil)
	_ gocmd.Commander[DeployMessage]   = (*DeployCommand)(nil)
	_ gocmd.Commander[UndeployMessage] = (*UndeployCommand)(nil)

	_ InvocationService = (*core.Container)(nil)
	_ DeploymentService = (*core.Container)(nil)
)
