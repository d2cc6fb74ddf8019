package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"

	"xmedia/internal/encode"
	"xmedia/internal/store"

	"github.com/google/uuid"

	_ "image/gif"
	_ "image/png"
)

type Type string

const (
	TypeImage    Type = "image"
	TypeVideoHLS Type = "video-hls"
)

// Media is the client-facing description of an accepted upload.
type Media struct {
	URL  string `json:"url"`
	Type Type   `json:"type"`
}

var (
	ErrTooLarge        = errors.New("file exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var videoExts = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".webm": {},
	".mkv":  {},
	".avi":  {},
}

// Enqueuer hands accepted videos to the background encode queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job encode.Job) error
}

// StatusReader looks up persisted encode status records.
type StatusReader interface {
	GetStatus(ctx context.Context, id string) (store.VideoStatus, error)
	ListRecent(ctx context.Context, limit int) ([]store.VideoStatus, error)
}

type Config struct {
	UploadDir    string
	BaseURL      string
	MaxVideoSize int64
	MaxImageSize int64
}

// Service implements the thin ingest and status-query use cases in front of
// the encode queue.
type Service struct {
	cfg      Config
	queue    Enqueuer
	statuses StatusReader
}

func NewService(cfg Config, queue Enqueuer, statuses StatusReader) *Service {
	return &Service{cfg: cfg, queue: queue, statuses: statuses}
}

// EnsureUploadDir creates the uploads root if it does not exist yet.
func EnsureUploadDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// UploadVideoHLS stores the incoming stream under a fresh per-job directory,
// enqueues the encode job and returns the manifest URL immediately. The
// manifest does not exist until encoding finishes; clients treat 404 as
// "still processing" and poll the status endpoint.
func (s *Service) UploadVideoHLS(ctx context.Context, r io.Reader, filename string) (Media, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := videoExts[ext]; !ok {
		return Media{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	id := uuid.NewString()
	jobDir := filepath.Join(s.cfg.UploadDir, id)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Media{}, err
	}

	sourcePath := filepath.Join(jobDir, id+ext)
	if err := writeLimited(sourcePath, r, s.cfg.MaxVideoSize); err != nil {
		_ = os.RemoveAll(jobDir)
		return Media{}, err
	}

	if err := s.queue.Enqueue(ctx, encode.Job{ID: id, SourcePath: sourcePath}); err != nil {
		_ = os.RemoveAll(jobDir)
		return Media{}, err
	}

	return Media{URL: s.ManifestURL(id), Type: TypeVideoHLS}, nil
}

// UploadImage re-encodes the uploaded image as JPEG into the uploads root and
// returns its static URL.
func (s *Service) UploadImage(_ context.Context, r io.Reader, filename string) (Media, error) {
	img, _, err := image.Decode(io.LimitReader(r, s.cfg.MaxImageSize+1))
	if err != nil {
		return Media{}, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}

	name := uuid.NewString() + ".jpg"
	dst, err := os.Create(filepath.Join(s.cfg.UploadDir, name))
	if err != nil {
		return Media{}, err
	}
	defer dst.Close()

	if err := jpeg.Encode(dst, img, &jpeg.Options{Quality: 85}); err != nil {
		_ = os.Remove(dst.Name())
		return Media{}, err
	}

	return Media{
		URL:  strings.TrimRight(s.cfg.BaseURL, "/") + "/static/image/" + name,
		Type: TypeImage,
	}, nil
}

// ManifestURL builds the deterministic playback URL for a job id.
func (s *Service) ManifestURL(id string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/static/video-hls/" + id + "/master.m3u8"
}

// VideoStatus returns the persisted encode status for a job id.
func (s *Service) VideoStatus(ctx context.Context, id string) (store.VideoStatus, error) {
	return s.statuses.GetStatus(ctx, id)
}

// RecentStatuses lists the most recently created encode jobs.
func (s *Service) RecentStatuses(ctx context.Context, limit int) ([]store.VideoStatus, error) {
	return s.statuses.ListRecent(ctx, limit)
}

// writeLimited copies the stream to path, failing with ErrTooLarge when it
// exceeds max bytes. The partial file is removed on failure.
func writeLimited(path string, r io.Reader, max int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, io.LimitReader(r, max+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > max {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
