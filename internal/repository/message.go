package repository

import (
	"context"
	"log/slog"

	"bookswap/internal/models"
	"bookswap/internal/observability"

	"gorm.io/gorm"
)

// MessageRepository defines the interface for swap conversation storage.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	ListByRequest(ctx context.Context, requestID uint) ([]models.Message, error)
	LatestByRequests(ctx context.Context, requestIDs []uint) (map[uint]*models.Message, error)
	UnreadByRequests(ctx context.Context, userID uint, requestIDs []uint) (map[uint]int64, error)
	MarkRead(ctx context.Context, id uint) error
	CountUnread(ctx context.Context, userID uint) (int64, error)
	DeleteByRequest(ctx context.Context, requestID uint) (int64, error)
}

type messageRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db, log: observability.NewRepoLogger("messages")}
}

func (r *messageRepository) Create(ctx context.Context, msg *models.Message) error {
	defer observability.TrackQuery("insert", "messages")()
	if err := r.db.WithContext(ctx).Omit("Sender").Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).First(&msg, id).Error; err != nil {
		return nil, notFoundOr(err, "Message not found")
	}
	return &msg, nil
}

// ListByRequest returns the thread oldest first.
func (r *messageRepository) ListByRequest(ctx context.Context, requestID uint) ([]models.Message, error) {
	defer observability.TrackQuery("select", "messages")()
	var msgs []models.Message
	if err := r.db.WithContext(ctx).
		Where("swap_request_id = ?", requestID).
		Preload("Sender").
		Order("created_at ASC, id ASC").
		Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return msgs, nil
}

// LatestByRequests returns the newest message of each listed thread.
// Threads without messages are absent from the map.
func (r *messageRepository) LatestByRequests(ctx context.Context, requestIDs []uint) (map[uint]*models.Message, error) {
	out := make(map[uint]*models.Message, len(requestIDs))
	if len(requestIDs) == 0 {
		return out, nil
	}

	latest := r.db.Model(&models.Message{}).
		Select("MAX(id)").
		Where("swap_request_id IN ?", requestIDs).
		Group("swap_request_id")

	var msgs []models.Message
	if err := r.db.WithContext(ctx).
		Where("id IN (?)", latest).
		Preload("Sender").
		Find(&msgs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for i := range msgs {
		out[msgs[i].SwapRequestID] = &msgs[i]
	}
	return out, nil
}

// UnreadByRequests counts, per thread, the unread messages addressed to userID.
func (r *messageRepository) UnreadByRequests(ctx context.Context, userID uint, requestIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(requestIDs))
	if len(requestIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		SwapRequestID uint
		Unread        int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Select("swap_request_id, COUNT(*) AS unread").
		Where("receiver_id = ? AND read = ? AND swap_request_id IN ?", userID, false, requestIDs).
		Group("swap_request_id").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range rows {
		out[row.SwapRequestID] = row.Unread
	}
	return out, nil
}

// MarkRead is idempotent.
func (r *messageRepository) MarkRead(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND read = ?", id, false).
		Update("read", true).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *messageRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("receiver_id = ? AND read = ?", userID, false).
		Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *messageRepository) DeleteByRequest(ctx context.Context, requestID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("swap_request_id = ?", requestID).Delete(&models.Message{})
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	r.log.Write(ctx, "delete", slog.Any("swap_request_id", requestID), slog.Any("deleted", res.RowsAffected))
	return res.RowsAffected, nil
}
