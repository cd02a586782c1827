package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gigvault/escrow/internal/webhook/domain"
	pkgdb "github.com/gigvault/escrow/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertEvent leans on the unique gateway_event_id index: the insert and
// the duplicate check are one atomic statement, never a check-then-insert.
// MySQL has no ON CONFLICT clause, so a duplicate-key error from the plain
// insert is treated the same as the conflict path on the other dialects.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, ev *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, event_type, gateway_event_id, payload, processed, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (gateway_event_id) DO NOTHING`,
		ev.ID,
		ev.EventType,
		ev.GatewayEventID,
		ev.Payload,
		ev.Processed,
		ev.ErrorMessage,
		ev.CreatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed = ?, error_message = NULL WHERE id = ?`,
		true, id,
	).Error
}

func (r *repo) MarkError(ctx context.Context, db *gorm.DB, id snowflake.ID, message string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET processed = ?, error_message = ? WHERE id = ?`,
		false, message, id,
	).Error
}

func (r *repo) FindByGatewayEventID(ctx context.Context, db *gorm.DB, gatewayEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, gateway_event_id, payload, processed, error_message, created_at
		 FROM webhook_events WHERE gateway_event_id = ? LIMIT 1`,
		gatewayEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
