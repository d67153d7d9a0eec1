package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"bookswap/internal/config"
	"bookswap/internal/featureflags"
	"bookswap/internal/models"
	"bookswap/internal/observability"
	"bookswap/internal/repository"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultCoverUploadDir       = "uploads/covers"
	DefaultCoverMaxUploadSizeMB = 5
	CoverMaxSize                = 1024
	CoverJPEGQuality            = 82
	CoverWebPQuality            = 70
)

// Files written for every stored cover.
const (
	CoverFileJPEG = "cover.jpg"
	CoverFileWebP = "cover.webp"
)

// CoverURLPrefix is where stored covers are served from.
const CoverURLPrefix = "/media/covers"

type UploadCoverInput struct {
	BookID      uint
	UserID      uint
	ContentType string
	Content     []byte
}

// CoverService normalizes uploaded cover images and stores them on disk
// under a content hash.
type CoverService struct {
	bookRepo           repository.BookRepository
	flags              *featureflags.Manager
	uploadDir          string
	maxUploadSizeBytes int64
}

func NewCoverService(bookRepo repository.BookRepository, flags *featureflags.Manager, cfg *config.Config) *CoverService {
	uploadDir := DefaultCoverUploadDir
	maxUploadSizeMB := DefaultCoverMaxUploadSizeMB

	if cfg != nil {
		if cfg.CoverUploadDir != "" {
			uploadDir = cfg.CoverUploadDir
		}
		if cfg.CoverMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.CoverMaxUploadSizeMB
		}
	}

	return &CoverService{
		bookRepo:           bookRepo,
		flags:              flags,
		uploadDir:          uploadDir,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Upload stores a new cover for the book and points its imageURL at it.
func (s *CoverService) Upload(ctx context.Context, in UploadCoverInput) (book *models.Book, err error) {
	ctx, span := observability.StartSpan(ctx, "cover", "upload", attribute.Int64("book.id", int64(in.BookID)))
	defer func() { span.End(err) }()

	if !s.flags.Enabled(featureflags.CoverUploads, in.UserID) {
		return nil, models.NewInvalidOperationError("Cover uploads are disabled")
	}

	book, err = s.bookRepo.GetByID(ctx, in.BookID)
	if err != nil {
		return nil, err
	}
	if book.OwnerID != in.UserID {
		return nil, models.NewForbiddenError("Not authorized to update this book")
	}

	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Content)
	if !isAllowedCoverMIME(detected) {
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") &&
		!isMatchingContentType(provided, decodedFormatToMime(format)) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	scaled := resizeToFit(decoded, CoverMaxSize, CoverMaxSize)
	encodedJPG, err := encodeJPEG(scaled, CoverJPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	encodedWebP, err := encodeWebP(scaled, CoverWebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	hash := coverHash(in.BookID, encodedJPG)
	jpgPath := filepath.Join(s.uploadDir, hash, CoverFileJPEG)
	webpPath := filepath.Join(s.uploadDir, hash, CoverFileWebP)
	if err := writeBytesToFile(jpgPath, encodedJPG); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := writeBytesToFile(webpPath, encodedWebP); err != nil {
		cleanupFiles(jpgPath)
		return nil, models.NewInternalError(err)
	}

	url := CoverURL(hash)
	if err := s.bookRepo.SetImageURL(ctx, book.ID, url); err != nil {
		cleanupFiles(jpgPath, webpPath)
		return nil, err
	}
	book.ImageURL = url
	return book, nil
}

// CoverURL is the public path of the JPEG rendition stored under hash.
func CoverURL(hash string) string {
	return fmt.Sprintf("%s/%s/%s", CoverURLPrefix, hash, CoverFileJPEG)
}

// ResolveForServing maps a public cover path onto the file on disk.
func (s *CoverService) ResolveForServing(hash, file string) (string, error) {
	if !isValidCoverHash(hash) {
		return "", models.NewValidationError("Invalid image hash")
	}
	if file != CoverFileJPEG && file != CoverFileWebP {
		return "", models.NewNotFoundError("Image not found")
	}
	fullPath := filepath.Join(s.uploadDir, hash, file)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", models.NewNotFoundError("Image not found")
		}
		return "", models.NewInternalError(err)
	}
	return fullPath, nil
}

// isValidCoverHash accepts lowercase hex only, which keeps path traversal out
// of the served path.
func isValidCoverHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedCoverMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func coverHash(bookID uint, content []byte) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%d:", bookID)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func writeBytesToFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func cleanupFiles(paths ...string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
