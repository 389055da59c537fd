package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slidesmith/slidesmith/internal/core"
)

const defaultRenderLimit = 20

// RecordRender appends one generation outcome to the render log. A replayed
// generation_id is a no-op.
func (s *Store) RecordRender(ctx context.Context, rec core.RenderRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(rec.GenerationID) == "" {
		return errors.New("generation id is required")
	}
	if strings.TrimSpace(rec.VariantID) == "" {
		return errors.New("variant id is required")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO render_log (
			generation_id, variant_id, mode, status, duration_ms,
			element_count, fallback_count, violation_count, visual_style, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(generation_id) DO NOTHING
	`, rec.GenerationID, rec.VariantID, string(rec.Mode), string(rec.Status), rec.DurationMs,
		rec.ElementCount, rec.FallbackCount, rec.ViolationCount, string(rec.VisualStyle), createdAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store render record: %w", err)
	}

	return nil
}

// RenderQuery narrows a render-log listing.
type RenderQuery struct {
	VariantID string
	Status    core.RenderStatus
	Limit     int
}

func (q RenderQuery) whereClause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if variantID := strings.TrimSpace(q.VariantID); variantID != "" {
		conds = append(conds, "variant_id = ?")
		args = append(args, variantID)
	}
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(q.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListRenders returns render-log rows, newest first.
func (s *Store) ListRenders(ctx context.Context, q RenderQuery) ([]core.RenderRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultRenderLimit
	}

	where, args := q.whereClause()
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT generation_id, variant_id, mode, status, duration_ms,
			element_count, fallback_count, violation_count, visual_style, created_at
		FROM render_log
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	records := []core.RenderRecord{}
	for rows.Next() {
		var (
			rec       core.RenderRecord
			mode      string
			status    string
			style     string
			createdAt int64
		)
		if err := rows.Scan(&rec.GenerationID, &rec.VariantID, &mode, &status, &rec.DurationMs,
			&rec.ElementCount, &rec.FallbackCount, &rec.ViolationCount, &style, &createdAt); err != nil {
			return nil, fmt.Errorf("scan renders: %w", err)
		}
		rec.Mode = core.Mode(mode)
		rec.Status = core.RenderStatus(status)
		rec.VisualStyle = core.VisualStyle(style)
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}

	return records, nil
}

// CountRenders returns the number of render-log rows matching the query.
func (s *Store) CountRenders(ctx context.Context, q RenderQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM render_log
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count renders: %w", err)
	}
	return count, nil
}
