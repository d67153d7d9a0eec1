package repository

import (
	"context"
	"log/slog"
	"time"

	"bookswap/internal/cache"
	"bookswap/internal/models"
	"bookswap/internal/observability"

	"gorm.io/gorm"
)

// SwapRepository persists swap requests and performs the multi-row
// transitions of the request lifecycle.
type SwapRepository interface {
	GetBook(ctx context.Context, bookID uint) (*models.Book, error)
	HasPending(ctx context.Context, requesterID, bookID uint) (bool, error)
	Create(ctx context.Context, req *models.SwapRequest, greeting *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.SwapRequest, error)
	ListForUser(ctx context.Context, userID uint) ([]models.SwapRequest, error)
	Accept(ctx context.Context, req *models.SwapRequest) ([]models.SwapRequest, error)
	Reject(ctx context.Context, req *models.SwapRequest) error
	AdvanceShipping(ctx context.Context, req *models.SwapRequest, to models.ShippingStatus) error
	Cancel(ctx context.Context, id, requesterID uint) error
	HasAcceptedBetween(ctx context.Context, userA, userB uint) (bool, error)
}

type swapRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewSwapRepository creates a new swap repository. store may be nil.
func NewSwapRepository(db *gorm.DB, store *cache.Store) SwapRepository {
	return &swapRepository{db: db, cache: store, log: observability.NewRepoLogger("swap_requests")}
}

func withParties(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Book", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Requester").
		Preload("Owner")
}

// GetBook reads the listing from the primary so availability checks never
// see a stale replica or cache entry.
func (r *swapRepository) GetBook(ctx context.Context, bookID uint) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, bookID).Error; err != nil {
		return nil, notFoundOr(err, "Book not found")
	}
	return &book, nil
}

func (r *swapRepository) HasPending(ctx context.Context, requesterID, bookID uint) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.SwapRequest{}).
		Where("requester_id = ? AND book_id = ? AND status = ?", requesterID, bookID, models.StatusPending).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

// Create inserts the request and its opening message together, re-checking
// under the book's row lock that the book is still available.
func (r *swapRepository) Create(ctx context.Context, req *models.SwapRequest, greeting *models.Message) error {
	defer observability.TrackQuery("insert", "swap_requests")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Holding the book row orders this insert against a concurrent Accept:
		// either Accept sees the new request and rejects it, or we see is_swapped.
		var book models.Book
		if err := lockForUpdate(tx).First(&book, req.BookID).Error; err != nil {
			return notFoundOr(err, "Book not found")
		}
		if book.IsSwapped {
			return models.NewInvalidOperationError("This book has already been swapped")
		}

		if err := tx.Omit("Book", "Requester", "Owner").Create(req).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.NewInvalidOperationError("You already have a pending request for this book")
			}
			return models.NewInternalError(err)
		}
		if greeting == nil {
			return nil
		}
		greeting.SwapRequestID = req.ID
		if err := tx.Omit("Sender").Create(greeting).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Write(ctx, "create",
		slog.Any("swap_request_id", req.ID),
		slog.Any("book_id", req.BookID),
		slog.Any("requester_id", req.RequesterID),
		slog.Any("type", string(req.Type)))
	return nil
}

func (r *swapRepository) GetByID(ctx context.Context, id uint) (*models.SwapRequest, error) {
	var req models.SwapRequest
	if err := withParties(r.db.WithContext(ctx)).First(&req, id).Error; err != nil {
		return nil, notFoundOr(err, "Swap request not found")
	}
	return &req, nil
}

func (r *swapRepository) ListForUser(ctx context.Context, userID uint) ([]models.SwapRequest, error) {
	var reqs []models.SwapRequest
	if err := withParties(readDB(r.db).WithContext(ctx)).
		Where("requester_id = ? OR owner_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&reqs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reqs, nil
}

// Accept marks the book swapped with a compare-and-set, accepts req and
// rejects every other pending request for the book. Zero rows on the book
// CAS means another request won; the whole transaction rolls back with a
// Conflict. The auto-rejected siblings are returned.
func (r *swapRepository) Accept(ctx context.Context, req *models.SwapRequest) ([]models.SwapRequest, error) {
	defer observability.TrackQuery("accept", "swap_requests")()

	var rejected []models.SwapRequest
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Book{}).
			Where("id = ? AND is_swapped = ?", req.BookID, false).
			Update("is_swapped", true)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("This book has already been swapped")
		}

		res = tx.Model(&models.SwapRequest{}).
			Where("id = ? AND status = ?", req.ID, models.StatusPending).
			Updates(map[string]interface{}{"status": models.StatusAccepted, "updated_at": now})
		if res.Error != nil {
			if isUniqueConstraintError(res.Error) {
				return models.NewConflictError("This book has already been swapped")
			}
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("Swap request was updated by someone else")
		}

		if err := tx.Where("book_id = ? AND id <> ? AND status = ?", req.BookID, req.ID, models.StatusPending).
			Find(&rejected).Error; err != nil {
			return models.NewInternalError(err)
		}
		if len(rejected) == 0 {
			return nil
		}
		if err := tx.Model(&models.SwapRequest{}).
			Where("book_id = ? AND id <> ? AND status = ?", req.BookID, req.ID, models.StatusPending).
			Updates(map[string]interface{}{"status": models.StatusRejected, "updated_at": now}).Error; err != nil {
			return models.NewInternalError(err)
		}
		for i := range rejected {
			rejected[i].Status = models.StatusRejected
			rejected[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		r.log.Fail(ctx, "accept", err)
		return nil, err
	}

	req.Status = models.StatusAccepted
	req.UpdatedAt = now
	if req.Book != nil {
		req.Book.IsSwapped = true
	}
	r.cache.InvalidateBook(ctx, req.BookID)
	r.log.Write(ctx, "update",
		slog.Any("swap_request_id", req.ID),
		slog.Any("book_id", req.BookID),
		slog.Any("status", string(models.StatusAccepted)),
		slog.Any("auto_rejected", len(rejected)))
	return rejected, nil
}

// Reject moves a pending request to rejected and releases the book unless
// another request for it is already accepted.
func (r *swapRepository) Reject(ctx context.Context, req *models.SwapRequest) error {
	defer observability.TrackQuery("reject", "swap_requests")()

	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.SwapRequest{}).
			Where("id = ? AND status = ?", req.ID, models.StatusPending).
			Updates(map[string]interface{}{"status": models.StatusRejected, "updated_at": now})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewConflictError("Swap request was updated by someone else")
		}

		accepted := tx.Model(&models.SwapRequest{}).Select("1").
			Where("book_id = ? AND status = ?", req.BookID, models.StatusAccepted)
		if err := tx.Model(&models.Book{}).
			Where("id = ? AND is_swapped = ?", req.BookID, true).
			Where("NOT EXISTS (?)", accepted).
			Update("is_swapped", false).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		r.log.Fail(ctx, "reject", err)
		return err
	}

	req.Status = models.StatusRejected
	req.UpdatedAt = now
	r.cache.InvalidateBook(ctx, req.BookID)
	r.log.Write(ctx, "update", slog.Any("swap_request_id", req.ID), slog.Any("status", string(models.StatusRejected)))
	return nil
}

// AdvanceShipping moves the shipping status of an accepted request forward
// from the value currently held by req.
func (r *swapRepository) AdvanceShipping(ctx context.Context, req *models.SwapRequest, to models.ShippingStatus) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.SwapRequest{}).
		Where("id = ? AND status = ? AND shipping_status = ?", req.ID, models.StatusAccepted, req.ShippingStatus).
		Updates(map[string]interface{}{"shipping_status": to, "updated_at": now})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewConflictError("Swap request was updated by someone else")
	}

	r.log.Write(ctx, "update", slog.Any("swap_request_id", req.ID), slog.Any("shipping_status", string(to)))
	req.ShippingStatus = to
	req.UpdatedAt = now
	return nil
}

// Cancel deletes a pending request and its messages. A request that is no
// longer pending is left untouched.
func (r *swapRepository) Cancel(ctx context.Context, id, requesterID uint) error {
	defer observability.TrackQuery("delete", "swap_requests")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("swap_request_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Where("id = ? AND requester_id = ? AND status = ?", id, requesterID, models.StatusPending).
			Delete(&models.SwapRequest{})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewInvalidOperationError("Cannot cancel a processed request")
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Write(ctx, "delete", slog.Any("swap_request_id", id))
	return nil
}

func (r *swapRepository) HasAcceptedBetween(ctx context.Context, userA, userB uint) (bool, error) {
	var n int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.SwapRequest{}).
		Where("status = ?", models.StatusAccepted).
		Where("(requester_id = ? AND owner_id = ?) OR (requester_id = ? AND owner_id = ?)", userA, userB, userB, userA).
		Count(&n).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}
