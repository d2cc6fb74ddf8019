package cleanup

import (
	"context"
	"log"
	"time"

	"xmedia/internal/encode"
	"xmedia/internal/store"
)

const pageSize = 200

type StatusStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]store.VideoStatus, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type BlobStore interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Janitor removes encode jobs past the retention window together with their
// uploaded HLS trees.
type Janitor struct {
	statuses StatusStore
	blobs    BlobStore
}

func NewJanitor(statuses StatusStore, blobs BlobStore) *Janitor {
	return &Janitor{statuses: statuses, blobs: blobs}
}

// Run deletes status rows created before the cutoff and the blob objects
// under each job's key prefix. Object deletion is best-effort per job so one
// unreachable prefix does not block the sweep.
func (j *Janitor) Run(ctx context.Context, before time.Time) (int64, int, error) {
	var deletedObjects int
	for {
		items, err := j.statuses.ListBefore(ctx, before, pageSize)
		if err != nil {
			return 0, deletedObjects, err
		}
		if len(items) == 0 {
			break
		}
		for _, v := range items {
			n, err := j.blobs.DeletePrefix(ctx, encode.ObjectPrefix(v.ID))
			deletedObjects += n
			if err != nil {
				log.Printf("cleanup prefix failed id=%s err=%v", v.ID, err)
			}
		}
		if len(items) < pageSize {
			break
		}
	}
	deletedJobs, err := j.statuses.DeleteBefore(ctx, before)
	if err != nil {
		return 0, deletedObjects, err
	}
	return deletedJobs, deletedObjects, nil
}

// Start launches the periodic retention sweep. It returns immediately; the
// sweep stops when ctx is cancelled.
func (j *Janitor) Start(ctx context.Context, interval time.Duration, retentionDays int) {
	if interval <= 0 || retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				before := time.Now().AddDate(0, 0, -retentionDays)
				if _, _, err := j.Run(ctx, before); err != nil {
					log.Printf("cleanup failed: %v", err)
				}
			}
		}
	}()
}
