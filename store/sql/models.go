package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type invocationRecord struct {
	bun.BaseModel `bun:"table:container_invocations,alias:ci"`

	ID          string    `bun:"id,pk"`
	ComponentID string    `bun:"component_id,notnull"`
	Method      string    `bun:"method,notnull"`
	Principal   string    `bun:"principal,notnull"`
	Outcome     string    `bun:"outcome,notnull"`
	TxState     string    `bun:"tx_state,notnull"`
	DurationMS  int64     `bun:"duration_ms,notnull"`
	Error       string    `bun:"error"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
