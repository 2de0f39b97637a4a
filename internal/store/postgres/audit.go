package postgres

import (
	"context"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

func (s *Store) RecordAudit(ctx context.Context, e *domain.AuditEvent) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (id, tenant_id, action, user_id, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.TenantID, e.Action, e.UserID, NewJSONB(e.Metadata), e.CreatedAt)
	return wrapErr("record_audit", err)
}
