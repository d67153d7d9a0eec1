package repository

import (
	"context"
	"testing"

	"bookswap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRepository_ThreadAndUnread(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	repo := NewMessageRepository(f.db)

	first := f.request(t, f.alice)
	second := f.request(t, f.bob)

	reply := &models.Message{SwapRequestID: first.ID, SenderID: f.owner.ID, ReceiverID: f.alice.ID, Content: "Sure"}
	require.NoError(t, repo.Create(ctx, reply))
	followUp := &models.Message{SwapRequestID: first.ID, SenderID: f.alice.ID, ReceiverID: f.owner.ID, Content: "Great"}
	require.NoError(t, repo.Create(ctx, followUp))

	thread, err := repo.ListByRequest(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "hello", thread[0].Content)
	assert.Equal(t, "Great", thread[2].Content)
	require.NotNil(t, thread[1].Sender)
	assert.Equal(t, "owner", thread[1].Sender.Username)

	latest, err := repo.LatestByRequests(ctx, []uint{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, followUp.ID, latest[first.ID].ID)
	assert.Equal(t, "hello", latest[second.ID].Content)

	unread, err := repo.UnreadByRequests(ctx, f.owner.ID, []uint{first.ID, second.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread[first.ID])
	assert.Equal(t, int64(1), unread[second.ID])

	total, err := repo.CountUnread(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	require.NoError(t, repo.MarkRead(ctx, followUp.ID))
	require.NoError(t, repo.MarkRead(ctx, followUp.ID), "marking twice is a no-op")
	total, err = repo.CountUnread(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, err = repo.GetByID(ctx, 4242)
	assert.EqualError(t, err, "Message not found")
}

func TestMessageRepository_DeleteByRequestKeepsRequest(t *testing.T) {
	f := newSwapFixture(t)
	ctx := context.Background()
	repo := NewMessageRepository(f.db)
	req := f.request(t, f.alice)
	require.NoError(t, repo.Create(ctx, &models.Message{SwapRequestID: req.ID, SenderID: f.owner.ID, ReceiverID: f.alice.ID, Content: "hi"}))

	n, err := repo.DeleteByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	thread, err := repo.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, thread)

	_, err = f.repo.GetByID(ctx, req.ID)
	assert.NoError(t, err)
}

func TestMessageRepository_EmptyInputs(t *testing.T) {
	f := newSwapFixture(t)
	repo := NewMessageRepository(f.db)

	latest, err := repo.LatestByRequests(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, latest)

	unread, err := repo.UnreadByRequests(context.Background(), f.owner.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
