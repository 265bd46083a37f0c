package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-container/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultAuditPerPage = 25

var ErrInvocationNotFound = errors.New("sqlstore: invocation not found")

// InvocationAuditFilter narrows List results. Zero values do not filter.
type InvocationAuditFilter struct {
	ComponentID string
	Method      string
	Principal   string
	Outcome     string
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

type InvocationAuditPage struct {
	Items      []core.InvocationRecord
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

// InvocationAuditStore persists one row per container invocation.
type InvocationAuditStore struct {
	db   *bun.DB
	repo repository.Repository[*invocationRecord]
}

func NewInvocationAuditStore(db *bun.DB) (*InvocationAuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*invocationRecord](db, invocationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid invocation repository wiring: %w", err)
		}
	}
	return &InvocationAuditStore{db: db, repo: repo}, nil
}

func (s *InvocationAuditStore) RecordInvocation(ctx context.Context, entry core.InvocationRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: invocation audit store is not configured")
	}
	id := strings.TrimSpace(entry.CallID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	record := &invocationRecord{
		ID:          id,
		ComponentID: strings.TrimSpace(entry.ComponentID),
		Method:      strings.TrimSpace(entry.Method),
		Principal:   strings.TrimSpace(entry.Principal),
		Outcome:     strings.TrimSpace(entry.Outcome),
		TxState:     strings.TrimSpace(entry.TxState),
		DurationMS:  entry.Duration.Milliseconds(),
		Error:       entry.Error,
		CreatedAt:   createdAt,
	}
	if record.ComponentID == "" || record.Method == "" {
		return fmt.Errorf("sqlstore: invocation record requires component_id and method")
	}
	if record.Outcome == "" {
		record.Outcome = "unknown"
	}
	if record.TxState == "" {
		record.TxState = string(core.TxStateNone)
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

func (s *InvocationAuditStore) Get(ctx context.Context, callID string) (core.InvocationRecord, error) {
	if s == nil || s.db == nil {
		return core.InvocationRecord{}, fmt.Errorf("sqlstore: invocation audit store is not configured")
	}
	record := &invocationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(callID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.InvocationRecord{}, fmt.Errorf("%w: call_id %q", ErrInvocationNotFound, callID)
		}
		return core.InvocationRecord{}, err
	}
	return invocationRecordToDomain(record), nil
}

func (s *InvocationAuditStore) List(ctx context.Context, filter InvocationAuditFilter) (InvocationAuditPage, error) {
	if s == nil || s.repo == nil {
		return InvocationAuditPage{}, fmt.Errorf("sqlstore: invocation audit store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultAuditPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if componentID := strings.TrimSpace(filter.ComponentID); componentID != "" {
		selectors = append(selectors, repository.SelectBy("component_id", "=", componentID))
	}
	if method := strings.TrimSpace(filter.Method); method != "" {
		selectors = append(selectors, repository.SelectBy("method", "=", method))
	}
	if principal := strings.TrimSpace(filter.Principal); principal != "" {
		selectors = append(selectors, repository.SelectBy("principal", "=", principal))
	}
	if outcome := strings.TrimSpace(filter.Outcome); outcome != "" {
		selectors = append(selectors, repository.SelectBy("outcome", "=", outcome))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return InvocationAuditPage{}, err
	}
	items := make([]core.InvocationRecord, 0, len(records))
	for _, record := range records {
		items = append(items, invocationRecordToDomain(record))
	}
	hasNext := offset+len(items) < total
	nextOffset := ""
	if hasNext {
		nextOffset = strconv.Itoa(offset + len(items))
	}
	return InvocationAuditPage{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: nextOffset,
	}, nil
}

// Prune deletes rows older than ttl and reports how many were removed.
func (s *InvocationAuditStore) Prune(ctx context.Context, ttl time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: invocation audit store is not configured")
	}
	if ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.NewDelete().
		Model((*invocationRecord)(nil)).
		Where("created_at < ?", time.Now().UTC().Add(-ttl)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func invocationRecordToDomain(record *invocationRecord) core.InvocationRecord {
	if record == nil {
		return core.InvocationRecord{}
	}
	return core.InvocationRecord{
		CallID:      record.ID,
		ComponentID: record.ComponentID,
		Method:      record.Method,
		Principal:   record.Principal,
		Outcome:     record.Outcome,
		TxState:     record.TxState,
		Duration:    time.Duration(record.DurationMS) * time.Millisecond,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
	}
}
