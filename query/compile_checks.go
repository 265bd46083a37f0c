package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-container/core"
	sqlstore "github.com/goliatone/go-container/store/sql"
)

var (
	_ gocmd.Querier[PoolStatsMessage, core.PoolStats]                     = (*PoolStatsQuery)(nil)
	_ gocmd.Querier[ListDeploymentsMessage, []core.DeploymentInfo]        = (*ListDeploymentsQuery)(nil)
	_ gocmd.Querier[ListInvocationsMessage, sqlstore.InvocationAuditPage] = (*ListInvocationsQuery)(nil)

	_ PoolStatsReader  = (*core.Container)(nil)
	_ DeploymentLister = (*core.Container)(nil)
	_ InvocationReader = (*sqlstore.InvocationAuditStore)(nil)
)
