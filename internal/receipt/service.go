package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zzjbattlefield/smart-ledger-web/internal/capture"
	"github.com/zzjbattlefield/smart-ledger-web/internal/scanning"
)

// ErrEmptyFile is returned for uploads without content
var ErrEmptyFile = errors.New("empty file")

// IDGenerator generates unique prefixes for stored files
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// PreviewRenderer turns an uploaded receipt into a PNG preview
type PreviewRenderer func(data []byte, contentType string) ([]byte, error)

// Service connects uploads, blob storage and the mode preference to the
// capture engine
type Service struct {
	engine      *capture.Engine
	db          DB
	storage     Storage
	preview     PreviewRenderer
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(engine *capture.Engine, db DB, storage Storage) *Service {
	return NewServiceWithDeps(engine, db, storage, scanning.RenderPreview, uuidGenerator{}, systemClock{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(engine *capture.Engine, db DB, storage Storage, preview PreviewRenderer, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		engine:      engine,
		db:          db,
		storage:     storage,
		preview:     preview,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
	plainExtension      = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	if !plainExtension.MatchString(ext) {
		ext = ""
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// Phone cameras produce very long names
	if runes := []rune(base); len(runes) > 50 {
		base = string(runes[:50])
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

// Upload stores the files, renders their previews and queues them for
// recognition. A preview failure is logged and the file is still queued.
func (s *Service) Upload(ctx context.Context, files []File) ([]capture.Item, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}

	var (
		images []capture.Image
		sizes  []int
	)
	cleanup := func() {
		for _, img := range images {
			s.deleteBlobs(img.BlobRef, img.PreviewRef)
		}
	}

	for _, f := range files {
		if len(f.Data) == 0 {
			cleanup()
			return nil, fmt.Errorf("%w: %s", ErrEmptyFile, f.Filename)
		}
		id := s.idGenerator.Generate()

		blobRef, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(f.Filename)), f.Data)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("saving file: %w", err)
		}

		img := capture.Image{
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Data:        f.Data,
			BlobRef:     blobRef,
		}
		if png, err := s.preview(f.Data, f.ContentType); err != nil {
			slog.Warn("Failed to render preview",
				"filename", f.Filename,
				"content_type", f.ContentType,
				"file_size", len(f.Data),
				"error", err,
			)
		} else if ref, err := s.storage.Save(id+"_preview.png", png); err != nil {
			slog.Warn("Failed to save preview", "filename", f.Filename, "error", err)
		} else {
			img.PreviewRef = ref
		}
		images = append(images, img)
		sizes = append(sizes, len(f.Data))
	}

	items, err := s.engine.AddFiles(ctx, images)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("queueing receipts: %w", err)
	}

	now := s.timeSource.Now()
	for i, item := range items {
		upload := &Upload{
			ItemID:      item.ID,
			Filename:    images[i].Filename,
			ContentType: images[i].ContentType,
			Size:        sizes[i],
			BlobRef:     images[i].BlobRef,
			PreviewRef:  images[i].PreviewRef,
			CreatedAt:   now,
		}
		if err := s.db.SaveUpload(upload); err != nil {
			slog.Warn("Failed to record upload", "item_id", item.ID, "error", err)
		}
	}
	return items, nil
}

// Remove deletes the item from the queue along with its stored files
func (s *Service) Remove(ctx context.Context, id string) (capture.Item, error) {
	item, err := s.engine.Remove(ctx, id)
	if err != nil {
		return capture.Item{}, err
	}
	if item.Source != nil {
		s.deleteBlobs(item.Source.BlobRef, item.Source.PreviewRef)
	}
	if err := s.db.DeleteUpload(id); err != nil {
		slog.Warn("Failed to delete upload record", "item_id", id, "error", err)
	}
	return item, nil
}

// Preview returns the PNG preview of an item, or the original file when no
// preview could be rendered
func (s *Service) Preview(id string) ([]byte, string, error) {
	item, ok := s.engine.Snapshot().Item(id)
	if !ok {
		return nil, "", fmt.Errorf("getting preview for %s: %w", id, capture.ErrNotFound)
	}
	if item.Source == nil {
		return nil, "", fmt.Errorf("item %s has no image: %w", id, capture.ErrNotFound)
	}
	if item.Source.PreviewRef != "" {
		data, err := s.storage.Get(item.Source.PreviewRef)
		if err == nil {
			return data, "image/png", nil
		}
		slog.Warn("Failed to read preview", "item_id", id, "error", err)
	}
	data, err := s.storage.Get(item.Source.BlobRef)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}
	return data, item.Source.ContentType, nil
}

// AutoSubmit returns the capture mode
func (s *Service) AutoSubmit() (bool, error) {
	enabled, err := s.db.AutoSubmit()
	if err != nil {
		return true, fmt.Errorf("reading capture mode: %w", err)
	}
	return enabled, nil
}

// SetAutoSubmit persists the capture mode; it applies to the next
// recognition that starts
func (s *Service) SetAutoSubmit(enabled bool) error {
	if err := s.db.SetAutoSubmit(enabled); err != nil {
		return fmt.Errorf("saving capture mode: %w", err)
	}
	slog.Info("Capture mode changed", "auto_submit", enabled)
	return nil
}

// PruneUploads deletes files left behind by a previous run. The queue lives
// in memory, so every recorded upload is stale when the process starts.
func (s *Service) PruneUploads() error {
	uploads, err := s.db.ListUploads()
	if err != nil {
		return fmt.Errorf("listing uploads: %w", err)
	}
	for _, upload := range uploads {
		s.deleteBlobs(upload.BlobRef, upload.PreviewRef)
		if err := s.db.DeleteUpload(upload.ItemID); err != nil {
			return fmt.Errorf("deleting upload %s: %w", upload.ItemID, err)
		}
	}
	if len(uploads) > 0 {
		slog.Info("Pruned stale uploads", "count", len(uploads))
	}
	return nil
}

func (s *Service) deleteBlobs(refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := s.storage.Delete(ref); err != nil {
			slog.Warn("Failed to delete file", "ref", ref, "error", err)
		}
	}
}
