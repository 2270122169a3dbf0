// Package photo validates report photos and optionally shrinks them before
// they are attached to outgoing mail.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/disintegration/imaging"
)

const (
	// DefaultMaxBytes is the upload limit for a single photo (8 MB).
	DefaultMaxBytes = 8 << 20

	// JPEGQuality is used when a photo is re-encoded after downscaling.
	JPEGQuality = 85

	// baseName names photos uploaded without a filename.
	baseName = "report"
)

var (
	// ErrTooLarge indicates the photo exceeds the configured byte limit.
	ErrTooLarge = errors.New("photo too large")

	// ErrNotImage indicates the upload is not a supported image.
	ErrNotImage = errors.New("photo is not a supported image")
)

// Config controls photo preparation.
type Config struct {
	MaxBytes     int64 // Uploads above this size are rejected
	MaxDimension int   // Longest edge after downscaling; 0 disables downscaling
}

// Processor validates and prepares photos.
type Processor struct {
	config Config
	logger *slog.Logger
}

// NewProcessor creates a new photo processor.
func NewProcessor(config Config, logger *slog.Logger) *Processor {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	return &Processor{
		config: config,
		logger: logger,
	}
}

// MaxBytes returns the configured upload limit.
func (p *Processor) MaxBytes() int64 {
	return p.config.MaxBytes
}

// Prepare validates ph and returns the photo to attach. A nil or empty photo
// yields nil. The input is never modified.
//
// Returns ErrTooLarge or ErrNotImage (wrapped) for unacceptable uploads.
func (p *Processor) Prepare(ph *domain.Photo) (*domain.Photo, error) {
	if ph.IsEmpty() {
		return nil, nil
	}

	if int64(len(ph.Data)) > p.config.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, len(ph.Data), p.config.MaxBytes)
	}

	contentType := DetectContentType(ph.ContentType, ph.Filename, ph.Data)
	if !IsAllowedImageType(contentType) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, contentType)
	}

	// Metadata the client omitted takes the attachment defaults; a declared
	// type is replaced by the sniffed one.
	out := &domain.Photo{
		Data:        ph.Data,
		ContentType: contentType,
		Filename:    ph.Filename,
	}
	if strings.TrimSpace(ph.ContentType) == "" {
		out.ContentType = domain.DefaultPhotoContentType
	}
	if out.Filename == "" {
		out.Filename = domain.DefaultPhotoFilename
	}

	if p.config.MaxDimension > 0 {
		p.downscale(out)
	}
	return out, nil
}

// downscale shrinks ph in place to fit MaxDimension. Photos that cannot be
// decoded (HEIC, WebP) or already fit are left untouched.
func (p *Processor) downscale(ph *domain.Photo) {
	img, err := imaging.Decode(bytes.NewReader(ph.Data), imaging.AutoOrientation(true))
	if err != nil {
		p.logger.Debug("photo not decodable, attaching original",
			"content_type", ph.ContentType,
			"error", err,
		)
		return
	}

	bounds := img.Bounds()
	limit := p.config.MaxDimension
	if bounds.Dx() <= limit && bounds.Dy() <= limit {
		return
	}

	// Fit within limit x limit while preserving aspect ratio
	resized := imaging.Fit(img, limit, limit, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		p.logger.Warn("failed to encode downscaled photo, attaching original", "error", err)
		return
	}

	p.logger.Debug("photo downscaled",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"original_bytes", len(ph.Data),
		"bytes", buf.Len(),
	)

	ph.Data = buf.Bytes()
	ph.ContentType = "image/jpeg"
	ph.Filename = withExtension(ph.Filename, baseName, ".jpg")
}
