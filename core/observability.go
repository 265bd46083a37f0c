package core

import (
	"context"
	"sort"
	"strings"
	"time"
)

const (
	metricInvokeTotal    = "container.invoke.total"
	metricInvokeDuration = "container.invoke.duration_ms"

	outcomeSuccess    = "success"
	outcomeNotHandled = "not_handled"
)

// invocationTrace accumulates what one Invoke call learned for logging,
// metrics and audit.
type invocationTrace struct {
	callID      string
	call        *CallContext
	componentID string
	method      Method
	principal   string
	txState     TxState
	handled     bool
	extra       map[string]any
}

func (t *invocationTrace) note(key string, value any) {
	if t.extra == nil {
		t.extra = map[string]any{}
	}
	t.extra[key] = value
}

func (c *Container) observeInvocation(ctx context.Context, startedAt time.Time, trace *invocationTrace, err error) {
	if c == nil || trace == nil {
		return
	}
	duration := time.Since(startedAt)
	outcome := outcomeSuccess
	if err != nil {
		outcome = string(FaultKindOf(err))
	} else if !trace.handled {
		outcome = outcomeNotHandled
	}
	txState := trace.txState
	if txState == "" {
		txState = TxStateNone
	}

	fields := cloneFields(trace.extra)
	fields["call_id"] = trace.callID
	fields["component_id"] = trace.componentID
	fields["method"] = trace.method.String()
	fields["principal"] = trace.principal
	fields["outcome"] = outcome
	fields["tx_state"] = string(txState)
	fields["duration_ms"] = duration.Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
	}

	tags := map[string]string{
		"component_id": trace.componentID,
		"method":       trace.method.String(),
		"outcome":      outcome,
	}
	c.recordCounter(ctx, metricInvokeTotal, 1, tags)
	c.recordHistogram(ctx, metricInvokeDuration, float64(duration.Milliseconds()), tags)

	switch FaultKindOf(err) {
	case FaultNone:
		c.logInfo(ctx, "invoke succeeded", fields)
	case FaultSystem:
		c.logError(ctx, "invoke failed", fields)
	default:
		c.logWarn(ctx, "invoke rejected", fields)
	}

	pending := trace.call.drainAudit()
	if c.invocationRecorder != nil && c.config.Audit.Enabled && trace.callID != "" {
		record := InvocationRecord{
			CallID:      trace.callID,
			ComponentID: trace.componentID,
			Method:      trace.method.String(),
			Principal:   trace.principal,
			Outcome:     outcome,
			TxState:     string(txState),
			Duration:    duration,
			CreatedAt:   startedAt,
		}
		if err != nil {
			record.Error = err.Error()
		}
		pending = append([]deferredRecord{{recorder: c.invocationRecorder, record: record}}, pending...)
	}
	if len(pending) == 0 {
		return
	}
	// Audit rows of nested calls are written by the outermost call once its
	// transaction bracket has closed.
	if parent, ok := CallContextFrom(ctx); ok && parent.deferAudit(pending...) {
		return
	}
	auditCtx := context.WithoutCancel(ctx)
	for _, entry := range pending {
		if recordErr := entry.recorder.RecordInvocation(auditCtx, entry.record); recordErr != nil {
			c.logWarn(ctx, "invocation audit failed", map[string]any{
				"call_id": entry.record.CallID,
				"error":   recordErr.Error(),
			})
		}
	}
}

func (c *Container) logInfo(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "info", message, fields)
}

func (c *Container) logWarn(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "warn", message, fields)
}

func (c *Container) logError(ctx context.Context, message string, fields map[string]any) {
	c.logWithLevel(ctx, "error", message, fields)
}

func (c *Container) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (c *Container) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (c *Container) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if c == nil || c.metricsRecorder == nil {
		return
	}
	c.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
