package service

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bookswap/internal/config"
	"bookswap/internal/featureflags"
	"bookswap/internal/models"
	"bookswap/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverServiceUploadAndResolve(t *testing.T) {
	env := newServiceEnv(t, "")
	cfg := &config.Config{CoverUploadDir: t.TempDir(), CoverMaxUploadSizeMB: 1}
	svc := NewCoverService(env.books, featureflags.NewManager(""), cfg)

	book, err := svc.Upload(context.Background(), UploadCoverInput{
		BookID:      env.book.ID,
		UserID:      env.owner.ID,
		ContentType: "image/png",
		Content:     testutil.TinyPNG(t, 2000, 1000),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(book.ImageURL, CoverURLPrefix+"/"), book.ImageURL)

	parts := strings.Split(strings.TrimPrefix(book.ImageURL, CoverURLPrefix+"/"), "/")
	require.Len(t, parts, 2)
	hash := parts[0]
	assert.Equal(t, CoverFileJPEG, parts[1])

	for _, file := range []string{CoverFileJPEG, CoverFileWebP} {
		path, err := svc.ResolveForServing(hash, file)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(cfg.CoverUploadDir, hash, file), path)
	}

	f, err := os.Open(filepath.Join(cfg.CoverUploadDir, hash, CoverFileJPEG))
	require.NoError(t, err)
	defer f.Close()
	decoded, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, CoverMaxSize, decoded.Width)
	assert.Equal(t, CoverMaxSize/2, decoded.Height)

	var stored models.Book
	require.NoError(t, env.db.First(&stored, env.book.ID).Error)
	assert.Equal(t, book.ImageURL, stored.ImageURL)
}

func TestCoverServiceRejects(t *testing.T) {
	env := newServiceEnv(t, "")
	cfg := &config.Config{CoverUploadDir: t.TempDir(), CoverMaxUploadSizeMB: 1}
	svc := NewCoverService(env.books, featureflags.NewManager(""), cfg)
	ctx := context.Background()
	png := testutil.TinyPNG(t, 10, 10)

	_, err := svc.Upload(ctx, UploadCoverInput{BookID: env.book.ID, UserID: env.alice.ID, Content: png})
	requireCode(t, err, models.CodeForbidden)

	_, err = svc.Upload(ctx, UploadCoverInput{BookID: env.book.ID, UserID: env.owner.ID, Content: []byte("plain text, not an image")})
	requireCode(t, err, models.CodeValidation)

	_, err = svc.Upload(ctx, UploadCoverInput{BookID: env.book.ID, UserID: env.owner.ID, ContentType: "image/jpeg", Content: png})
	requireCode(t, err, models.CodeValidation)

	_, err = svc.Upload(ctx, UploadCoverInput{BookID: env.book.ID, UserID: env.owner.ID, Content: make([]byte, 2*1024*1024)})
	requireCode(t, err, models.CodeValidation)

	disabled := NewCoverService(env.books, featureflags.NewManager("cover_uploads=off"), cfg)
	_, err = disabled.Upload(ctx, UploadCoverInput{BookID: env.book.ID, UserID: env.owner.ID, Content: png})
	requireCode(t, err, models.CodeInvalidOperation)

	_, err = svc.ResolveForServing("../../etc", CoverFileJPEG)
	requireCode(t, err, models.CodeValidation)
	_, err = svc.ResolveForServing(strings.Repeat("a", 64), CoverFileJPEG)
	requireCode(t, err, models.CodeNotFound)
	_, err = svc.ResolveForServing(strings.Repeat("a", 64), "secrets.txt")
	requireCode(t, err, models.CodeNotFound)
}
