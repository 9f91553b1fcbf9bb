package decision

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder persists decision records in decision_logs.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a Recorder backed by the provided pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record inserts one decision row.
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	if r == nil || r.pool == nil {
		return errors.New("decision recorder not initialised")
	}
	required, err := json.Marshal(rec.Required)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO decision_logs (org_slug, actor_id, mode, required, has_access, has_superuser, should_render, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		rec.OrgSlug, rec.ActorID, rec.Mode, required, rec.HasAccess, rec.HasSuperuser, rec.ShouldRender, nullableTime(rec.At))
	return err
}

// Recent returns the newest decision rows, up to limit.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT org_slug, actor_id, mode, required, has_access, has_superuser, should_render, occurred_at FROM decision_logs ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var required []byte
		if err := rows.Scan(&rec.OrgSlug, &rec.ActorID, &rec.Mode, &required, &rec.HasAccess, &rec.HasSuperuser, &rec.ShouldRender, &rec.At); err != nil {
			return nil, err
		}
		if len(required) > 0 {
			if err := json.Unmarshal(required, &rec.Required); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
