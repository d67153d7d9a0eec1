package server

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookswap/internal/cache"
	"bookswap/internal/models"
	"bookswap/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_RegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t, "")

	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "reader_one",
		"email":    "Reader@Example.com",
		"password": "s3cretpass",
		"fullName": "Reader One",
		"location": "Porto",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.Equal(t, "User registered successfully", env.Message)
	registered := decode[AuthPayload](t, env.Data)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "reader@example.com", registered.User.Email)

	status, env = ts.do(t, http.MethodPost, "/api/auth/register", "", fiber.Map{
		"username": "reader_two",
		"email":    "reader@example.com",
		"password": "s3cretpass",
		"fullName": "Reader Two",
		"location": "Porto",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeConflict, env.Code)

	status, env = ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "reader@example.com", "password": "wrong-pass1",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Message)

	status, env = ts.do(t, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "reader@example.com", "password": "s3cretpass",
	})
	require.Equal(t, http.StatusOK, status)
	token := decode[AuthPayload](t, env.Data).Token

	status, _ = ts.do(t, http.MethodGet, "/api/auth/stats", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = ts.do(t, http.MethodGet, "/api/auth/stats", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token has been revoked", env.Message)
}

func TestAPI_ProfileUpdateInvalidatesCache(t *testing.T) {
	ts := newTestServer(t, "")
	user, token := ts.member(t, "ana")
	path := fmt.Sprintf("/api/users/%d", user.ID)

	status, env := ts.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Lisbon", decode[PublicProfile](t, env.Data).Location)
	assert.True(t, ts.mr.Exists(cache.UserKey(user.ID)), "profile should be cached after first read")

	status, env = ts.do(t, http.MethodPut, "/api/auth/profile", token, fiber.Map{"location": "Braga"})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, "Profile updated successfully", env.Message)

	_, env = ts.do(t, http.MethodGet, path, "", nil)
	profile := decode[PublicProfile](t, env.Data)
	assert.Equal(t, "Braga", profile.Location)
	assert.Equal(t, "ana", profile.Username)

	status, env = ts.do(t, http.MethodGet, "/api/users/999", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodeNotFound, env.Code)
}

func TestAPI_BookCatalog(t *testing.T) {
	ts := newTestServer(t, "")
	owner, ownerToken := ts.member(t, "owner")
	_, otherToken := ts.member(t, "other")

	status, env := ts.do(t, http.MethodPost, "/api/books", ownerToken, fiber.Map{
		"title":       "Dune",
		"author":      "Frank Herbert",
		"genre":       "Science Fiction",
		"condition":   models.ConditionGood,
		"description": "Paperback",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	book := decode[models.Book](t, env.Data)
	assert.Equal(t, owner.ID, book.OwnerID)
	testutil.CreateBook(t, ts.db, owner.ID, "Emma")

	status, env = ts.do(t, http.MethodGet, "/api/books?search=DUNE&genre=All%20Genres&limit=5", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Book](t, env.Data), 1)
	assert.Equal(t, models.Pagination{TotalBooks: 1, TotalPages: 1, CurrentPage: 1}, env.Pagination)

	_, env = ts.do(t, http.MethodGet, "/api/books?limit=1&page=2&sort=title", "", nil)
	page := decode[[]models.Book](t, env.Data)
	require.Len(t, page, 1)
	assert.Equal(t, "Emma", page[0].Title)
	assert.Equal(t, 2, env.Pagination.TotalPages)

	path := fmt.Sprintf("/api/books/%d", book.ID)
	status, env = ts.do(t, http.MethodPut, path, otherToken, fiber.Map{
		"title": "Mine now", "author": "x", "genre": "y", "condition": models.ConditionGood, "description": "z",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Not authorized to update this book", env.Message)

	status, env = ts.do(t, http.MethodPost, "/api/books", ownerToken, fiber.Map{"title": "No author"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeValidation, env.Code)

	status, env = ts.do(t, http.MethodDelete, path, ownerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Book removed", env.Message)

	status, _ = ts.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = ts.do(t, http.MethodGet, "/api/books/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid ID", env.Message)
}

func TestAPI_SwapLifecycle(t *testing.T) {
	ts := newTestServer(t, "")
	owner, ownerToken := ts.member(t, "owner")
	_, aliceToken := ts.member(t, "alice")
	_, bobToken := ts.member(t, "bob")
	book := testutil.CreateBook(t, ts.db, owner.ID, "Dune")

	status, env := ts.do(t, http.MethodPost, "/api/swaps", ownerToken, fiber.Map{"bookId": book.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidOperation, env.Code)

	status, env = ts.do(t, http.MethodPost, "/api/swaps", aliceToken, fiber.Map{"bookId": book.ID})
	require.Equal(t, http.StatusCreated, status, env.Message)
	aliceReq := decode[models.SwapRequest](t, env.Data)
	assert.Equal(t, models.StatusPending, aliceReq.Status)

	status, env = ts.do(t, http.MethodPost, "/api/swaps", bobToken, fiber.Map{"bookId": book.ID})
	require.Equal(t, http.StatusCreated, status, env.Message)
	bobReq := decode[models.SwapRequest](t, env.Data)

	reqPath := fmt.Sprintf("/api/swaps/%d", aliceReq.ID)
	status, _ = ts.do(t, http.MethodPut, reqPath, aliceToken, fiber.Map{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = ts.do(t, http.MethodPut, reqPath, ownerToken, fiber.Map{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidOperation, env.Code)

	status, env = ts.do(t, http.MethodPut, reqPath, ownerToken, fiber.Map{"status": "accepted"})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Equal(t, models.StatusAccepted, decode[models.SwapRequest](t, env.Data).Status)

	_, env = ts.do(t, http.MethodGet, fmt.Sprintf("/api/books/%d", book.ID), "", nil)
	assert.True(t, decode[models.Book](t, env.Data).IsSwapped)

	_, env = ts.do(t, http.MethodGet, "/api/swaps", bobToken, nil)
	bobs := decode[[]models.SwapRequest](t, env.Data)
	require.Len(t, bobs, 1)
	assert.Equal(t, bobReq.ID, bobs[0].ID)
	assert.Equal(t, models.StatusRejected, bobs[0].Status)

	status, _ = ts.do(t, http.MethodDelete, reqPath, aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, status, "accepted requests cannot be cancelled")

	for _, step := range []models.ShippingStatus{models.ShippingShipped, models.ShippingDelivered} {
		status, env = ts.do(t, http.MethodPut, reqPath, ownerToken, fiber.Map{"status": string(step)})
		require.Equal(t, http.StatusOK, status, env.Message)
		assert.Equal(t, step, decode[models.SwapRequest](t, env.Data).ShippingStatus)
	}
}

func TestAPI_CreateSwapIsIdempotent(t *testing.T) {
	ts := newTestServer(t, "")
	owner, _ := ts.member(t, "owner")
	_, aliceToken := ts.member(t, "alice")
	book := testutil.CreateBook(t, ts.db, owner.ID, "Dune")
	key := uuid.NewString()

	newReq := func(bookID uint) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/swaps",
			strings.NewReader(fmt.Sprintf(`{"bookId":%d}`, bookID)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		req.Header.Set("Idempotency-Key", key)
		return req
	}

	status, first := ts.send(t, newReq(book.ID))
	require.Equal(t, http.StatusCreated, status, first.Message)

	resp, err := ts.app.Test(newReq(book.ID), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("X-Idempotency-Cached"))

	var count int64
	require.NoError(t, ts.db.Model(&models.SwapRequest{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	status, _ = ts.send(t, newReq(book.ID+1))
	assert.Equal(t, http.StatusConflict, status)
}

func TestAPI_Messaging(t *testing.T) {
	ts := newTestServer(t, "")
	owner, ownerToken := ts.member(t, "owner")
	_, aliceToken := ts.member(t, "alice")
	_, bobToken := ts.member(t, "bob")
	book := testutil.CreateBook(t, ts.db, owner.ID, "Dune")

	_, env := ts.do(t, http.MethodPost, "/api/swaps", aliceToken, fiber.Map{"bookId": book.ID})
	swapReq := decode[models.SwapRequest](t, env.Data)
	thread := fmt.Sprintf("/api/messages/%d", swapReq.ID)

	status, env := ts.do(t, http.MethodPost, thread, ownerToken, fiber.Map{"content": "Happy to swap"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	reply := decode[models.Message](t, env.Data)

	status, env = ts.do(t, http.MethodPost, thread, bobToken, fiber.Map{"content": "me too"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.CodeForbidden, env.Code)

	status, env = ts.do(t, http.MethodPost, thread, aliceToken, fiber.Map{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeValidation, env.Code)

	_, env = ts.do(t, http.MethodGet, thread, aliceToken, nil)
	msgs := decode[[]models.Message](t, env.Data)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Happy to swap", msgs[1].Content)

	_, env = ts.do(t, http.MethodGet, "/api/messages/unread/count", aliceToken, nil)
	assert.EqualValues(t, 1, decode[map[string]int64](t, env.Data)["count"])

	readPath := fmt.Sprintf("/api/messages/%d/read", reply.ID)
	status, _ = ts.do(t, http.MethodPut, readPath, ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = ts.do(t, http.MethodPut, readPath, aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[models.Message](t, env.Data).Read)

	_, env = ts.do(t, http.MethodGet, "/api/messages/unread/count", aliceToken, nil)
	assert.EqualValues(t, 0, decode[map[string]int64](t, env.Data)["count"])

	_, env = ts.do(t, http.MethodGet, "/api/messages/conversations", ownerToken, nil)
	convs := decode[[]models.Conversation](t, env.Data)
	require.Len(t, convs, 1)
	assert.Equal(t, "alice", convs[0].OtherUser.Username)

	status, env = ts.do(t, http.MethodDelete, thread, aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, decode[map[string]int64](t, env.Data)["deleted"])

	_, env = ts.do(t, http.MethodGet, "/api/swaps", aliceToken, nil)
	assert.Len(t, decode[[]models.SwapRequest](t, env.Data), 1, "deleting a thread keeps the request")
}

func TestAPI_RatingsAndWishlist(t *testing.T) {
	ts := newTestServer(t, "")
	owner, ownerToken := ts.member(t, "owner")
	_, aliceToken := ts.member(t, "alice")
	book := testutil.CreateBook(t, ts.db, owner.ID, "Dune")

	ratePath := fmt.Sprintf("/api/auth/rate/%d", owner.ID)
	status, env := ts.do(t, http.MethodPost, ratePath, aliceToken, fiber.Map{"rating": 6})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Rating must be between 1 and 5", env.Message)

	status, _ = ts.do(t, http.MethodPost, ratePath, ownerToken, fiber.Map{"rating": 5})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = ts.do(t, http.MethodPost, ratePath, aliceToken, fiber.Map{"rating": 4, "review": "Smooth swap"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	stats := decode[models.RatingStats](t, env.Data)
	assert.Equal(t, 1, stats.ReviewCount)
	assert.InDelta(t, 4.0, stats.AverageRating, 1e-9)

	_, env = ts.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/ratings", owner.ID), "", nil)
	ratings := decode[[]models.Rating](t, env.Data)
	require.Len(t, ratings, 1)
	assert.Equal(t, "Smooth swap", ratings[0].Review)

	wish := fmt.Sprintf("/api/wishlist/%d", book.ID)
	status, env = ts.do(t, http.MethodPost, wish, aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Book added to wishlist", env.Message)
	status, env = ts.do(t, http.MethodPost, wish, aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidOperation, env.Code)

	_, env = ts.do(t, http.MethodGet, "/api/wishlist", aliceToken, nil)
	assert.Len(t, decode[[]models.Book](t, env.Data), 1)

	status, env = ts.do(t, http.MethodDelete, wish, aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Book removed from wishlist", env.Message)
}

func TestAPI_CoverUpload(t *testing.T) {
	ts := newTestServer(t, "")
	owner, ownerToken := ts.member(t, "owner")
	_, aliceToken := ts.member(t, "alice")
	book := testutil.CreateBook(t, ts.db, owner.ID, "Dune")

	upload := func(token string) *http.Request {
		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		part, err := w.CreateFormFile("cover", "cover.png")
		require.NoError(t, err)
		_, err = part.Write(testutil.TinyPNG(t, 40, 60))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/books/%d/cover", book.ID), body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	status, _ := ts.send(t, upload(aliceToken))
	assert.Equal(t, http.StatusForbidden, status)

	status, env := ts.send(t, upload(ownerToken))
	require.Equal(t, http.StatusOK, status, env.Message)
	imageURL := decode[models.Book](t, env.Data).ImageURL
	require.NotEmpty(t, imageURL)

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, imageURL, nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	webp := strings.TrimSuffix(imageURL, "cover.jpg") + "cover.webp"
	resp, err = ts.app.Test(httptest.NewRequest(http.MethodGet, webp, nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ = ts.do(t, http.MethodGet, "/media/covers/not-a-hash/cover.jpg", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPI_CoverUploadDisabledByFlag(t *testing.T) {
	ts := newTestServer(t, "cover_uploads=off")
	owner, ownerToken := ts.member(t, "owner")
	book := testutil.CreateBook(t, ts.db, owner.ID, "Dune")

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("cover", "cover.png")
	require.NoError(t, err)
	_, err = part.Write(testutil.TinyPNG(t, 4, 4))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/books/%d/cover", book.ID), body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+ownerToken)

	status, env := ts.send(t, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cover uploads are disabled", env.Message)
}

func TestAPI_AdminFeatureFlags(t *testing.T) {
	ts := newTestServer(t, "rating_requires_swap=on")
	_, userToken := ts.member(t, "reader")
	admin, adminToken := ts.member(t, "admin")
	require.NoError(t, ts.db.Model(admin).Update("role", models.RoleAdmin).Error)

	status, env := ts.do(t, http.MethodGet, "/api/admin/feature-flags", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Admin access required", env.Message)

	status, env = ts.do(t, http.MethodGet, "/api/admin/feature-flags", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	flags := decode[struct {
		Raw       map[string]string `json:"raw"`
		Evaluated map[string]bool   `json:"evaluated"`
	}](t, env.Data)
	assert.Equal(t, "on", flags.Raw["rating_requires_swap"])
	assert.True(t, flags.Evaluated["rating_requires_swap"])
}

func TestAPI_RequiresAuth(t *testing.T) {
	ts := newTestServer(t, "")

	for _, route := range [][2]string{
		{http.MethodGet, "/api/swaps"},
		{http.MethodPost, "/api/books"},
		{http.MethodGet, "/api/messages/conversations"},
		{http.MethodGet, "/api/wishlist"},
		{http.MethodPost, "/api/ws/ticket"},
	} {
		status, env := ts.do(t, route[0], route[1], "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, route[1])
		assert.Equal(t, "Authorization required", env.Message, route[1])
	}
}
