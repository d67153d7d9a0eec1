package repository

import (
	"context"
	"testing"

	"bookswap/internal/models"
	"bookswap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type swapFixture struct {
	db    *gorm.DB
	repo  SwapRepository
	owner *models.User
	alice *models.User
	bob   *models.User
	book  *models.Book
}

func newSwapFixture(t *testing.T) *swapFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "owner")
	return &swapFixture{
		db:    db,
		repo:  NewSwapRepository(db, nil),
		owner: owner,
		alice: testutil.CreateUser(t, db, "alice"),
		bob:   testutil.CreateUser(t, db, "bob"),
		book:  testutil.CreateBook(t, db, owner.ID, "Dune"),
	}
}

func (f *swapFixture) request(t *testing.T, requester *models.User) *models.SwapRequest {
	t.Helper()
	req := &models.SwapRequest{
		RequesterID:    requester.ID,
		OwnerID:        f.owner.ID,
		BookID:         f.book.ID,
		Type:           models.RequestSwap,
		Status:         models.StatusPending,
		ShippingStatus: models.ShippingPending,
		PaymentStatus:  models.PaymentPending,
	}
	greeting := &models.Message{SenderID: requester.ID, ReceiverID: f.owner.ID, Content: "hello"}
	require.NoError(t, f.repo.Create(context.Background(), req, greeting))
	return req
}

func (f *swapFixture) bookSwapped(t *testing.T) bool {
	t.Helper()
	var b models.Book
	require.NoError(t, f.db.First(&b, f.book.ID).Error)
	return b.IsSwapped
}

func (f *swapFixture) status(t *testing.T, id uint) models.SwapStatus {
	t.Helper()
	var r models.SwapRequest
	require.NoError(t, f.db.First(&r, id).Error)
	return r.Status
}

func TestSwapRepository_CreateWritesGreeting(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	req := f.request(t, f.alice)

	var msgs []models.Message
	require.NoError(t, f.db.Where("swap_request_id = ?", req.ID).Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, f.owner.ID, msgs[0].ReceiverID)
	assert.False(t, msgs[0].Read)

	pending, err := f.repo.HasPending(ctx, f.alice.ID, f.book.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	got, err := f.repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Book)
	assert.Equal(t, "Dune", got.Book.Title)
	assert.Equal(t, "alice", got.Requester.Username)
	assert.Equal(t, "owner", got.Owner.Username)
}

func TestSwapRepository_DuplicatePendingRejectedByIndex(t *testing.T) {
	f := newSwapFixture(t)
	f.request(t, f.alice)

	dup := &models.SwapRequest{RequesterID: f.alice.ID, OwnerID: f.owner.ID, BookID: f.book.ID, Status: models.StatusPending}
	err := f.repo.Create(context.Background(), dup, &models.Message{SenderID: f.alice.ID, ReceiverID: f.owner.ID, Content: "again"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeInvalidOperation))
	assert.EqualError(t, err, "You already have a pending request for this book")

	var n int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "greeting of the failed request is rolled back")
}

func TestSwapRepository_AcceptRejectsSiblings(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	winner := f.request(t, f.alice)
	loser := f.request(t, f.bob)

	rejected, err := f.repo.Accept(ctx, winner)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, loser.ID, rejected[0].ID)

	assert.True(t, f.bookSwapped(t))
	assert.Equal(t, models.StatusAccepted, f.status(t, winner.ID))
	assert.Equal(t, models.StatusRejected, f.status(t, loser.ID))

	pending, err := f.repo.HasPending(ctx, f.bob.ID, f.book.ID)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestSwapRepository_CreateRechecksAvailability(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()

	// The caller's availability check ran before this accept committed.
	_, err := f.repo.Accept(ctx, f.request(t, f.alice))
	require.NoError(t, err)

	late := &models.SwapRequest{
		RequesterID: f.bob.ID, OwnerID: f.owner.ID, BookID: f.book.ID,
		Type: models.RequestSwap, Status: models.StatusPending,
	}
	err = f.repo.Create(ctx, late, &models.Message{SenderID: f.bob.ID, ReceiverID: f.owner.ID, Content: "hi"})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeInvalidOperation))
	assert.Zero(t, late.ID)

	var pending, greetings int64
	require.NoError(t, f.db.Model(&models.SwapRequest{}).
		Where("book_id = ? AND status = ?", f.book.ID, models.StatusPending).Count(&pending).Error)
	require.NoError(t, f.db.Model(&models.Message{}).Where("sender_id = ?", f.bob.ID).Count(&greetings).Error)
	assert.Zero(t, pending)
	assert.Zero(t, greetings)

	require.NoError(t, f.db.Delete(&models.Book{}, f.book.ID).Error)
	err = f.repo.Create(ctx, &models.SwapRequest{
		RequesterID: f.bob.ID, OwnerID: f.owner.ID, BookID: f.book.ID,
		Type: models.RequestSwap, Status: models.StatusPending,
	}, nil)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestSwapRepository_AcceptConflictWhenBookTaken(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	req := f.request(t, f.alice)

	require.NoError(t, f.db.Model(&models.Book{}).Where("id = ?", f.book.ID).Update("is_swapped", true).Error)

	_, err := f.repo.Accept(ctx, req)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.Equal(t, models.StatusPending, f.status(t, req.ID), "request untouched after aborted accept")
}

func TestSwapRepository_AcceptStaleRequestRollsBackBook(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	req := f.request(t, f.alice)

	require.NoError(t, f.db.Model(&models.SwapRequest{}).Where("id = ?", req.ID).Update("status", models.StatusRejected).Error)

	_, err := f.repo.Accept(ctx, req)
	assert.True(t, models.IsCode(err, models.CodeConflict))
	assert.False(t, f.bookSwapped(t), "book CAS is rolled back with the transaction")
}

func TestSwapRepository_RejectKeepsAcceptedBookSwapped(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()

	pending := f.request(t, f.alice)
	require.NoError(t, f.repo.Reject(ctx, pending))
	assert.Equal(t, models.StatusRejected, f.status(t, pending.ID))
	assert.False(t, f.bookSwapped(t), "rejecting never marks a book swapped")

	accepted := f.request(t, f.bob)
	_, err := f.repo.Accept(ctx, accepted)
	require.NoError(t, err)

	// A request created before the accept and still pending cannot exist, so
	// force one to check that reject does not release an accepted book.
	straggler := &models.SwapRequest{RequesterID: f.alice.ID, OwnerID: f.owner.ID, BookID: f.book.ID, Status: models.StatusPending}
	require.NoError(t, f.db.Create(straggler).Error)
	require.NoError(t, f.repo.Reject(ctx, straggler))
	assert.True(t, f.bookSwapped(t))

	err = f.repo.Reject(ctx, straggler)
	assert.True(t, models.IsCode(err, models.CodeConflict))
}

func TestSwapRepository_AdvanceShipping(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	req := f.request(t, f.alice)

	err := f.repo.AdvanceShipping(ctx, req, models.ShippingShipped)
	assert.True(t, models.IsCode(err, models.CodeConflict), "pending requests cannot ship")

	_, err = f.repo.Accept(ctx, req)
	require.NoError(t, err)
	require.NoError(t, f.repo.AdvanceShipping(ctx, req, models.ShippingShipped))
	assert.Equal(t, models.ShippingShipped, req.ShippingStatus)
	require.NoError(t, f.repo.AdvanceShipping(ctx, req, models.ShippingDelivered))

	var stored models.SwapRequest
	require.NoError(t, f.db.First(&stored, req.ID).Error)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.Equal(t, models.ShippingDelivered, stored.ShippingStatus)
}

func TestSwapRepository_Cancel(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	req := f.request(t, f.alice)

	err := f.repo.Cancel(ctx, req.ID, f.bob.ID)
	assert.True(t, models.IsCode(err, models.CodeInvalidOperation))

	require.NoError(t, f.repo.Cancel(ctx, req.ID, f.alice.ID))
	_, err = f.repo.GetByID(ctx, req.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	var n int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("swap_request_id = ?", req.ID).Count(&n).Error)
	assert.Zero(t, n)

	again := f.request(t, f.alice)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestSwapRepository_CancelProcessedKeepsMessages(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	req := f.request(t, f.alice)
	require.NoError(t, f.repo.Reject(ctx, req))

	err := f.repo.Cancel(ctx, req.ID, f.alice.ID)
	assert.EqualError(t, err, "Cannot cancel a processed request")

	var n int64
	require.NoError(t, f.db.Model(&models.Message{}).Where("swap_request_id = ?", req.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestSwapRepository_ListAndAcceptedBetween(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	first := f.request(t, f.alice)
	second := f.request(t, f.bob)

	list, err := f.repo.ListForUser(ctx, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	list, err = f.repo.ListForUser(ctx, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ok, err := f.repo.HasAcceptedBetween(ctx, f.owner.ID, f.alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.repo.Accept(ctx, first)
	require.NoError(t, err)
	ok, err = f.repo.HasAcceptedBetween(ctx, f.alice.ID, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
