package service

import (
	"context"
	"testing"

	"bookswap/internal/models"
	"bookswap/internal/notifications"
	"bookswap/internal/repository"
	"bookswap/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookInput() validation.BookInput {
	return validation.BookInput{
		Title:       " The Hobbit ",
		Author:      "J.R.R. Tolkien",
		Genre:       "Fantasy",
		Condition:   models.ConditionLikeNew,
		Description: "Hardcover, no markings",
	}
}

func TestBookService_CreateAndUpdate(t *testing.T) {
	env := newServiceEnv(t, "")
	svc := NewBookService(env.books, env.events)
	ctx := context.Background()

	book, err := svc.Create(ctx, env.alice.ID, bookInput())
	require.NoError(t, err)
	assert.Equal(t, "The Hobbit", book.Title)
	assert.Equal(t, models.DefaultLanguage, book.Language)
	assert.Equal(t, models.ListingSwap, book.ListingType)
	assert.False(t, book.IsSwapped)

	in := bookInput()
	in.ListingType = models.ListingSell
	_, err = svc.Update(ctx, book.ID, env.alice.ID, in)
	requireCode(t, err, models.CodeValidation)

	price := 9.99
	in.Price = &price
	_, err = svc.Update(ctx, book.ID, env.bob.ID, in)
	requireCode(t, err, models.CodeForbidden)

	updated, err := svc.Update(ctx, book.ID, env.alice.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.ListingSell, updated.ListingType)
	require.NotNil(t, updated.Price)
	assert.InDelta(t, 9.99, *updated.Price, 1e-9)

	page, total, err := svc.List(ctx, models.BookFilter{ListingType: models.ListingSell})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, book.ID, page[0].ID)
}

func TestBookService_CreateValidation(t *testing.T) {
	env := newServiceEnv(t, "")
	svc := NewBookService(env.books, nil)

	in := bookInput()
	in.Condition = "Mint"
	_, err := svc.Create(context.Background(), env.alice.ID, in)
	requireCode(t, err, models.CodeValidation)
}

func TestBookService_DeleteRejectsPendingRequests(t *testing.T) {
	env := newServiceEnv(t, "")
	svc := NewBookService(env.books, env.events)
	ctx := context.Background()
	req := env.request(t, env.alice)

	requireCode(t, svc.Delete(ctx, env.book.ID, env.alice.ID), models.CodeForbidden)

	require.NoError(t, svc.Delete(ctx, env.book.ID, env.owner.ID))
	assert.Equal(t, models.StatusRejected, env.reload(t, req.ID).Status)
	assert.Len(t, env.events.For(env.alice.ID, notifications.EventSwapRequestUpdated), 1)

	_, err := svc.Get(ctx, env.book.ID)
	requireCode(t, err, models.CodeNotFound)

	_, err = env.swaps.CreateRequest(ctx, CreateSwapInput{RequesterID: env.bob.ID, BookID: env.book.ID})
	requireCode(t, err, models.CodeNotFound)
}

func TestWishlistService(t *testing.T) {
	env := newServiceEnv(t, "")
	svc := NewWishlistService(repository.NewWishlistRepository(env.db))
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, env.alice.ID, env.book.ID))
	requireCode(t, svc.Add(ctx, env.alice.ID, env.book.ID), models.CodeInvalidOperation)
	requireCode(t, svc.Add(ctx, env.alice.ID, 9999), models.CodeNotFound)

	books, err := svc.List(ctx, env.alice.ID)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	require.NoError(t, svc.Remove(ctx, env.alice.ID, env.book.ID))
	require.NoError(t, svc.Remove(ctx, env.alice.ID, env.book.ID))
	books, err = svc.List(ctx, env.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, books)
}
