package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ombudsman-service/internal/domain"
	"github.com/spec-kit/ombudsman-service/internal/persistence"
)

// MessageRepository manages case thread messages.
type MessageRepository interface {
	// Create inserts msg. When msg carries an external id that was already
	// stored, nothing is written and created is false.
	Create(ctx context.Context, msg *domain.Message) (created bool, err error)
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	UpdateDelivery(ctx context.Context, id string, status domain.DeliveryStatus, lastError *string, sentAt *time.Time) error
	MarkProcessed(ctx context.Context, id string) error
	ListByCase(ctx context.Context, caseID string) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

const messageColumns = `id, case_id, direction, type, content, is_internal, author_id, delivery_status, last_error,
        external_message_id, is_processed, metadata, sent_at, processed_at, created_at`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) (bool, error) {
	const query = `
        INSERT INTO messages (case_id, direction, type, content, is_internal, author_id, delivery_status, last_error, external_message_id, metadata, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (external_message_id) DO NOTHING
        RETURNING id, created_at`
	if msg.Type == "" {
		msg.Type = "text"
	}
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	err := persistence.Querier(ctx, r.pool).QueryRow(ctx, query,
		msg.CaseID,
		msg.Direction,
		msg.Type,
		msg.Content,
		msg.IsInternal,
		msg.AuthorID,
		msg.DeliveryStatus,
		msg.LastError,
		msg.ExternalMessageID,
		metadata,
		msg.SentAt,
	).Scan(&msg.ID, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *messageRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE external_message_id=$1)`, externalID).Scan(&exists)
	return exists, err
}

func (r *messageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	return scanMessage(persistence.Querier(ctx, r.pool).QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
}

func (r *messageRepository) UpdateDelivery(ctx context.Context, id string, status domain.DeliveryStatus, lastError *string, sentAt *time.Time) error {
	cmd, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`UPDATE messages SET delivery_status=$1, last_error=$2, sent_at=COALESCE($3, sent_at) WHERE id=$4`,
		status, lastError, sentAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *messageRepository) MarkProcessed(ctx context.Context, id string) error {
	cmd, err := persistence.Querier(ctx, r.pool).Exec(ctx,
		`UPDATE messages SET is_processed=TRUE, processed_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *messageRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Message, error) {
	rows, err := persistence.Querier(ctx, r.pool).Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE case_id=$1 ORDER BY created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	if err := row.Scan(
		&msg.ID,
		&msg.CaseID,
		&msg.Direction,
		&msg.Type,
		&msg.Content,
		&msg.IsInternal,
		&msg.AuthorID,
		&msg.DeliveryStatus,
		&msg.LastError,
		&msg.ExternalMessageID,
		&msg.IsProcessed,
		&msg.Metadata,
		&msg.SentAt,
		&msg.ProcessedAt,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &msg, nil
}
