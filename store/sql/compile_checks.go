package sqlstore

import "github.com/goliatone/go-container/core"

var (
	_ core.InvocationRecorder = (*InvocationAuditStore)(nil)
	_ core.TransactionManager = (*TransactionManager)(nil)
	_ core.Transaction        = (*Transaction)(nil)
)
