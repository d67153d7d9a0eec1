package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bookswap/internal/featureflags"
	"bookswap/internal/models"
	"bookswap/internal/repository"
	"bookswap/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type publishedEvent struct {
	UserID  uint
	Type    string
	Payload any
}

// eventRecorder captures everything the services publish.
type eventRecorder struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (r *eventRecorder) PublishEvent(_ context.Context, userID uint, eventType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{UserID: userID, Type: eventType, Payload: payload})
	return r.err
}

func (r *eventRecorder) For(userID uint, eventType string) []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []publishedEvent
	for _, e := range r.events {
		if e.UserID == userID && e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type serviceEnv struct {
	db       *gorm.DB
	users    repository.UserRepository
	books    repository.BookRepository
	swapRepo repository.SwapRepository
	msgRepo  repository.MessageRepository
	events   *eventRecorder
	swaps    *SwapService
	messages *MessageService
	ratings  *RatingService

	owner *models.User
	alice *models.User
	bob   *models.User
	book  *models.Book
}

func newServiceEnv(t *testing.T, flags string) *serviceEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	env := &serviceEnv{
		db:       db,
		users:    repository.NewUserRepository(db, nil),
		books:    repository.NewBookRepository(db, nil),
		swapRepo: repository.NewSwapRepository(db, nil),
		msgRepo:  repository.NewMessageRepository(db),
		events:   &eventRecorder{},
	}
	env.swaps = NewSwapService(env.swapRepo, env.msgRepo, NewPaymentSimulator(0), env.events)
	env.messages = NewMessageService(env.swapRepo, env.msgRepo, env.events)
	env.ratings = NewRatingService(env.users, env.swapRepo, featureflags.NewManager(flags), env.events)

	env.owner = testutil.CreateUser(t, db, "owner")
	env.alice = testutil.CreateUser(t, db, "alice")
	env.bob = testutil.CreateUser(t, db, "bob")
	env.book = testutil.CreateBook(t, db, env.owner.ID, "Dune")
	return env
}

func (e *serviceEnv) request(t *testing.T, requester *models.User) *models.SwapRequest {
	t.Helper()
	req, err := e.swaps.CreateRequest(context.Background(), CreateSwapInput{
		RequesterID: requester.ID,
		BookID:      e.book.ID,
	})
	require.NoError(t, err)
	return req
}

func (e *serviceEnv) reload(t *testing.T, id uint) *models.SwapRequest {
	t.Helper()
	var req models.SwapRequest
	require.NoError(t, e.db.First(&req, id).Error)
	return &req
}

func (e *serviceEnv) bookSwapped(t *testing.T) bool {
	t.Helper()
	var b models.Book
	require.NoError(t, e.db.Unscoped().First(&b, e.book.ID).Error)
	return b.IsSwapped
}

func (e *serviceEnv) thread(t *testing.T, requestID uint) []models.Message {
	t.Helper()
	var msgs []models.Message
	require.NoError(t, e.db.Where("swap_request_id = ?", requestID).Order("id ASC").Find(&msgs).Error)
	return msgs
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
}
