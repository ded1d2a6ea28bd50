package postgres

import (
	"context"
	"fmt"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"

	"github.com/google/uuid"
)

type auditRepo struct {
	pool Pool
}

// NewAuditRepository creates a PostgreSQL-backed AuditRepository.
func NewAuditRepository(pool Pool) ports.AuditRepository {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, actor_id, action, resource_type, resource_id, details, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.ActorID, string(log.Action), log.ResourceType,
		log.ResourceID, log.Details, log.IPAddress, log.CreatedAt,
	)
	return err
}

func (r *auditRepo) List(ctx context.Context, actorID *uuid.UUID, limit, offset int) ([]domain.AuditLog, error) {
	query := `SELECT id, actor_id, action, resource_type, resource_id, details, ip_address, created_at
		FROM audit_logs`
	args := []any{}
	if actorID != nil {
		query += ` WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *actorID, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		l := domain.AuditLog{}
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.ResourceType,
			&l.ResourceID, &l.Details, &l.IPAddress, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log rows: %w", err)
	}
	return logs, nil
}
