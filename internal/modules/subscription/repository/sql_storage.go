package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	resourceDomain "github.com/reshetovitsme/voice-of-light/internal/modules/resource/domain"
	"github.com/reshetovitsme/voice-of-light/internal/modules/subscription/domain"
	"github.com/reshetovitsme/voice-of-light/internal/shared/database"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/oops"
)

// SQLStorage implements Repository on top of the shared SQL handle.
type SQLStorage struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStorage creates a SQL-backed subscription repository
func NewSQLStorage(db *database.DB) Repository {
	return &SQLStorage{db: db, now: time.Now}
}

func (s *SQLStorage) Subscribe(ctx context.Context, resource *resourceDomain.Resource, sub *domain.Subscription) (bool, error) {
	if resource.Key() != sub.ResourceKey() {
		return false, oops.
			With("resource", resource.Key().String(), "subscription_resource", sub.ResourceKey().String()).
			New("subscription does not match resource")
	}

	now := s.now()
	var created bool
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := ensureSubscriber(ctx, tx, sub.SubscriberID, now); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO resources (source_type, id, name, last_event_id, last_event_time, last_live_at,
			                        event_count, count_offset, version, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
			 ON CONFLICT (source_type, id) DO NOTHING`,
			string(resource.Type), resource.ID, resource.Name,
			sql.NullString{String: resource.LastEventID, Valid: resource.LastEventID != ""},
			database.ToMicros(resource.LastEventTime), database.ToMicros(resource.LastLiveAt),
			resource.EventCount, database.ToMicros(now))
		if err != nil {
			return oops.With("resource", resource.Key().String(), "context", "failed to create resource").Wrap(err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created = true
		}

		res, err = tx.ExecContext(ctx,
			`INSERT INTO subscriptions (source_type, resource_id, subscriber_id, only_streams, categories, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (source_type, resource_id, subscriber_id) DO NOTHING`,
			string(sub.Source), sub.ResourceID, sub.SubscriberID,
			boolToInt(sub.Filter.OnlyStreams), int64(sub.Filter.Categories), database.ToMicros(now))
		if err != nil {
			return oops.With("resource", resource.Key().String(), "subscriber_id", sub.SubscriberID).Wrap(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.ErrAlreadySubscribed
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	sub.CreatedAt = now
	return created, nil
}

func (s *SQLStorage) Unsubscribe(ctx context.Context, key resourceDomain.Key, subscriberID string) (bool, error) {
	var removed bool
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM subscriptions WHERE source_type = ? AND resource_id = ? AND subscriber_id = ?`,
			string(key.Type), key.ID, subscriberID)
		if err != nil {
			return oops.With("resource", key.String(), "subscriber_id", subscriberID).Wrap(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.ErrNotSubscribed
		}

		removed, err = dropOrphan(ctx, tx, key)
		return err
	})
	return removed, err
}

func (s *SQLStorage) ListByResource(ctx context.Context, key resourceDomain.Key) ([]*domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_type, resource_id, subscriber_id, only_streams, categories, created_at
		 FROM subscriptions WHERE source_type = ? AND resource_id = ? ORDER BY subscriber_id`,
		string(key.Type), key.ID)
	if err != nil {
		return nil, oops.With("resource", key.String(), "context", "failed to list subscriptions").Wrap(err)
	}
	return scanSubscriptions(rows)
}

func (s *SQLStorage) ListBySubscriber(ctx context.Context, subscriberID string) ([]*domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_type, resource_id, subscriber_id, only_streams, categories, created_at
		 FROM subscriptions WHERE subscriber_id = ? ORDER BY source_type, resource_id`,
		subscriberID)
	if err != nil {
		return nil, oops.With("subscriber_id", subscriberID, "context", "failed to list subscriptions").Wrap(err)
	}
	return scanSubscriptions(rows)
}

func (s *SQLStorage) GetSubscriber(ctx context.Context, subscriberID string) (*domain.Subscriber, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM subscribers WHERE id = ?`, subscriberID).Scan(&id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrSubscriberUnknown
	}
	if err != nil {
		return nil, oops.With("subscriber_id", subscriberID, "context", "failed to read subscriber").Wrap(err)
	}

	sub := &domain.Subscriber{ID: id, Channels: map[resourceDomain.SourceType]string{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_type, channel FROM subscriber_channels WHERE subscriber_id = ?`, subscriberID)
	if err != nil {
		return nil, oops.With("subscriber_id", subscriberID, "context", "failed to read channels").Wrap(err)
	}
	if err := scanChannels(rows, sub.Channels); err != nil {
		return nil, oops.With("subscriber_id", subscriberID, "context", "failed to read channels").Wrap(err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT keyword FROM subscriber_keywords WHERE subscriber_id = ? ORDER BY keyword`, subscriberID)
	if err != nil {
		return nil, oops.With("subscriber_id", subscriberID, "context", "failed to read keywords").Wrap(err)
	}
	if sub.Keywords, err = scanKeywords(rows); err != nil {
		return nil, oops.With("subscriber_id", subscriberID, "context", "failed to read keywords").Wrap(err)
	}
	return sub, nil
}

func (s *SQLStorage) SetChannel(ctx context.Context, subscriberID string, sourceTypes []resourceDomain.SourceType, channel string) error {
	now := s.now()
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := ensureSubscriber(ctx, tx, subscriberID, now); err != nil {
			return err
		}
		for _, t := range sourceTypes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO subscriber_channels (subscriber_id, source_type, channel) VALUES (?, ?, ?)
				 ON CONFLICT (subscriber_id, source_type) DO UPDATE SET channel = excluded.channel`,
				subscriberID, string(t), channel)
			if err != nil {
				return oops.With("subscriber_id", subscriberID, "source_type", t, "context", "failed to bind channel").Wrap(err)
			}
		}
		return nil
	})
}

func (s *SQLStorage) AddKeyword(ctx context.Context, subscriberID, keyword string) error {
	keyword = NormalizeKeyword(keyword)
	if keyword == "" {
		return oops.With("subscriber_id", subscriberID).New("keyword must not be empty")
	}
	now := s.now()
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := ensureSubscriber(ctx, tx, subscriberID, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO subscriber_keywords (subscriber_id, keyword) VALUES (?, ?)
			 ON CONFLICT (subscriber_id, keyword) DO NOTHING`,
			subscriberID, keyword)
		if err != nil {
			return oops.With("subscriber_id", subscriberID, "keyword", keyword).Wrap(err)
		}
		return nil
	})
}

func (s *SQLStorage) RemoveKeyword(ctx context.Context, subscriberID, keyword string) error {
	keyword = NormalizeKeyword(keyword)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriber_keywords WHERE subscriber_id = ? AND keyword = ?`, subscriberID, keyword)
	if err != nil {
		return oops.With("subscriber_id", subscriberID, "keyword", keyword).Wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return oops.With("subscriber_id", subscriberID, "keyword", keyword).New("keyword not found")
	}
	return nil
}

func (s *SQLStorage) RemoveSubscriber(ctx context.Context, subscriberID string) ([]resourceDomain.Key, error) {
	var dropped []resourceDomain.Key
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT source_type, resource_id FROM subscriptions WHERE subscriber_id = ?`, subscriberID)
		if err != nil {
			return oops.With("subscriber_id", subscriberID).Wrap(err)
		}
		var keys []resourceDomain.Key
		for rows.Next() {
			var k resourceDomain.Key
			var sourceType string
			if err := rows.Scan(&sourceType, &k.ID); err != nil {
				rows.Close()
				return oops.With("subscriber_id", subscriberID).Wrap(err)
			}
			k.Type = resourceDomain.SourceType(sourceType)
			keys = append(keys, k)
		}
		rows.Close()

		for _, q := range []string{
			`DELETE FROM subscriptions WHERE subscriber_id = ?`,
			`DELETE FROM subscriber_keywords WHERE subscriber_id = ?`,
			`DELETE FROM subscriber_channels WHERE subscriber_id = ?`,
			`DELETE FROM subscribers WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, subscriberID); err != nil {
				return oops.With("subscriber_id", subscriberID, "context", "failed to remove subscriber").Wrap(err)
			}
		}

		for _, k := range keys {
			removed, err := dropOrphan(ctx, tx, k)
			if err != nil {
				return err
			}
			if removed {
				dropped = append(dropped, k)
			}
		}
		return nil
	})
	return dropped, err
}

// NormalizeKeyword lowercases and trims a keyword the way it is stored.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

func ensureSubscriber(ctx context.Context, tx *database.Tx, subscriberID string, now time.Time) error {
	if strings.TrimSpace(subscriberID) == "" {
		return oops.New("subscriber id must not be empty")
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO subscribers (id, created_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`,
		subscriberID, database.ToMicros(now))
	if err != nil {
		return oops.With("subscriber_id", subscriberID, "context", "failed to create subscriber").Wrap(err)
	}
	return nil
}

func dropOrphan(ctx context.Context, tx *database.Tx, key resourceDomain.Key) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM resources WHERE source_type = ? AND id = ?
		 AND NOT EXISTS (SELECT 1 FROM subscriptions WHERE source_type = ? AND resource_id = ?)`,
		string(key.Type), key.ID, string(key.Type), key.ID)
	if err != nil {
		return false, oops.With("resource", key.String(), "context", "failed to drop resource").Wrap(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// rowIterator is the part of *sql.Rows the scanners use.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

func scanChannels(rows rowIterator, into map[resourceDomain.SourceType]string) error {
	defer rows.Close()
	for rows.Next() {
		var sourceType, channel string
		if err := rows.Scan(&sourceType, &channel); err != nil {
			return err
		}
		into[resourceDomain.SourceType(sourceType)] = channel
	}
	return rows.Err()
}

func scanKeywords(rows rowIterator) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

func scanSubscriptions(rows *sql.Rows) ([]*domain.Subscription, error) {
	defer rows.Close()
	var out []*domain.Subscription
	for rows.Next() {
		var (
			sub                    domain.Subscription
			sourceType             string
			onlyStreams, cats, ats int64
		)
		if err := rows.Scan(&sourceType, &sub.ResourceID, &sub.SubscriberID, &onlyStreams, &cats, &ats); err != nil {
			return nil, oops.With("context", "failed to scan subscription").Wrap(err)
		}
		sub.Source = resourceDomain.SourceType(sourceType)
		sub.Filter.OnlyStreams = onlyStreams != 0
		sub.Filter.Categories = domain.CategoryMask(cats)
		sub.CreatedAt = database.FromMicros(ats)
		out = append(out, &sub)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
