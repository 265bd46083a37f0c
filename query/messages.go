package query

import (
	"strings"

	sqlstore "github.com/goliatone/go-container/store/sql"
)

const (
	TypePoolStats       = "container.query.pool_stats"
	TypeListDeployments = "container.query.deployments.list"
	TypeListInvocations = "container.query.invocations.list"

	maxInvocationsPerPage = 500
)

type PoolStatsMessage struct {
	ComponentID string
}

func (PoolStatsMessage) Type() string { return TypePoolStats }

func (m PoolStatsMessage) Validate() error {
	if strings.TrimSpace(m.ComponentID) == "" {
		return queryValidationError("component_id", "component id is required")
	}
	return nil
}

type ListDeploymentsMessage struct{}

func (ListDeploymentsMessage) Type() string { return TypeListDeployments }

type ListInvocationsMessage struct {
	Filter sqlstore.InvocationAuditFilter
}

func (ListInvocationsMessage) Type() string { return TypeListInvocations }

func (m ListInvocationsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be positive")
	}
	if m.Filter.PerPage < 0 || m.Filter.PerPage > maxInvocationsPerPage {
		return queryValidationError("per_page", "per_page must be between 1 and 500")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.To.Before(*m.Filter.From) {
		return queryValidationError("to", "to must not be before from")
	}
	return nil
}
