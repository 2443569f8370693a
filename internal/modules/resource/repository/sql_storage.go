package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/oops"
)

const resourceColumns = `source_type, id, name, last_event_id, last_event_time, last_live_at,
	event_count, count_offset, version, created_at`

// SQLStorage implements Repository on top of the shared SQL handle.
type SQLStorage struct {
	db *database.DB
}

// NewSQLStorage creates a SQL-backed resource repository
func NewSQLStorage(db *database.DB) Repository {
	return &SQLStorage{db: db}
}

func (s *SQLStorage) GetResource(ctx context.Context, key domain.Key) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE source_type = ? AND id = ?`,
		string(key.Type), key.ID)

	r, err := ScanResource(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrResourceNotFound
	}
	if err != nil {
		return nil, oops.With("resource", key.String(), "context", "failed to read resource").Wrap(err)
	}
	return r, nil
}

func (s *SQLStorage) ListResources(ctx context.Context, sourceType domain.SourceType) ([]*domain.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE source_type = ? ORDER BY id`,
		string(sourceType))
	if err != nil {
		return nil, oops.With("source_type", sourceType, "context", "failed to list resources").Wrap(err)
	}
	defer rows.Close()

	var out []*domain.Resource
	for rows.Next() {
		r, err := ScanResource(rows)
		if err != nil {
			return nil, oops.With("source_type", sourceType, "context", "failed to scan resource").Wrap(err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStorage) ListResourceIDs(ctx context.Context, sourceType domain.SourceType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM resources WHERE source_type = ? ORDER BY id`, string(sourceType))
	if err != nil {
		return nil, oops.With("source_type", sourceType, "context", "failed to list resource ids").Wrap(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, oops.With("source_type", sourceType).Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStorage) CompareAndSwap(ctx context.Context, prev, next *domain.Resource) error {
	if !prev.Follows(*next) {
		return oops.
			With("resource", prev.Key().String(), "event_count", prev.EventCount, "next_event_count", next.EventCount).
			New("resource cursor must not move backwards")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE resources
		 SET name = ?, last_event_id = ?, last_event_time = ?, last_live_at = ?,
		     event_count = ?, count_offset = ?, version = version + 1
		 WHERE source_type = ? AND id = ? AND version = ?`,
		next.Name,
		nullString(next.LastEventID),
		database.ToMicros(next.LastEventTime),
		database.ToMicros(next.LastLiveAt),
		next.EventCount,
		next.CountOffset,
		string(prev.Type), prev.ID, prev.Version,
	)
	if err != nil {
		return oops.With("resource", prev.Key().String(), "context", "failed to update cursor").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.With("resource", prev.Key().String()).Wrap(err)
	}
	if n == 0 {
		return errors.ErrCursorConflict
	}
	next.Version = prev.Version + 1
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// ScanResource reads one row selected with the resource column list.
func ScanResource(row scanner) (*domain.Resource, error) {
	var (
		r                                  domain.Resource
		sourceType                         string
		lastEventID                        sql.NullString
		lastEventTime, lastLiveAt, created int64
	)
	if err := row.Scan(&sourceType, &r.ID, &r.Name, &lastEventID, &lastEventTime, &lastLiveAt,
		&r.EventCount, &r.CountOffset, &r.Version, &created); err != nil {
		return nil, err
	}
	r.Type = domain.SourceType(sourceType)
	r.LastEventID = lastEventID.String
	r.LastEventTime = database.FromMicros(lastEventTime)
	r.LastLiveAt = database.FromMicros(lastLiveAt)
	r.CreatedAt = database.FromMicros(created)
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
