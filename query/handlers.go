package query

import (
	"context"

	"github.com/goliatone/go-container/core"
	sqlstore "github.com/goliatone/go-container/store/sql"
)

type PoolStatsReader interface {
	PoolStats(componentID string) (core.PoolStats, error)
}

type DeploymentLister interface {
	ListDeployments() []core.DeploymentInfo
}

type InvocationReader interface {
	List(ctx context.Context, filter sqlstore.InvocationAuditFilter) (sqlstore.InvocationAuditPage, error)
}

type PoolStatsQuery struct {
	reader PoolStatsReader
}

func NewPoolStatsQuery(reader PoolStatsReader) *PoolStatsQuery {
	return &PoolStatsQuery{reader: reader}
}

func (q *PoolStatsQuery) Query(_ context.Context, msg PoolStatsMessage) (core.PoolStats, error) {
	if q == nil || q.reader == nil {
		return core.PoolStats{}, queryDependencyError("query: pool stats reader is required")
	}
	return q.reader.PoolStats(msg.ComponentID)
}

type ListDeploymentsQuery struct {
	lister DeploymentLister
}

func NewListDeploymentsQuery(lister DeploymentLister) *ListDeploymentsQuery {
	return &ListDeploymentsQuery{lister: lister}
}

func (q *ListDeploymentsQuery) Query(context.Context, ListDeploymentsMessage) ([]core.DeploymentInfo, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: deployment lister is required")
	}
	return q.lister.ListDeployments(), nil
}

type ListInvocationsQuery struct {
	reader InvocationReader
}

func NewListInvocationsQuery(reader InvocationReader) *ListInvocationsQuery {
	return &ListInvocationsQuery{reader: reader}
}

func (q *ListInvocationsQuery) Query(ctx context.Context, msg ListInvocationsMessage) (sqlstore.InvocationAuditPage, error) {
	if q == nil || q.reader == nil {
		return sqlstore.InvocationAuditPage{}, queryDependencyError("query: invocation reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
