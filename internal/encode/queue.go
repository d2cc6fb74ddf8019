package encode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"xmedia/internal/jobs"
)

// Queue serializes encode jobs: strict FIFO, at most one job in flight.
// Transcoding is CPU-heavy, so draining one job at a time is deliberate
// backpressure rather than a missing feature.
type Queue struct {
	statuses   StatusStore
	blobs      BlobStore
	transcoder Transcoder

	mu         sync.Mutex
	items      []Job
	processing bool
}

func NewQueue(statuses StatusStore, blobs BlobStore, transcoder Transcoder) *Queue {
	return &Queue{
		statuses:   statuses,
		blobs:      blobs,
		transcoder: transcoder,
	}
}

// Enqueue appends a job and starts the drain goroutine if it is not already
// running. The Pending record is persisted before the job becomes visible to
// the drain loop, so a status query never races a missing record. Enqueue
// returns without waiting for processing.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		return errors.New("job id is empty")
	}
	if _, err := os.Stat(job.SourcePath); err != nil {
		return fmt.Errorf("source video: %w", err)
	}

	name := filepath.Base(job.SourcePath)
	if err := q.statuses.InsertStatus(ctx, job.ID, name, jobs.StatusPending); err != nil {
		return fmt.Errorf("insert status: %w", err)
	}

	q.mu.Lock()
	q.items = append(q.items, job)
	if !q.processing {
		q.processing = true
		go q.drain()
	}
	q.mu.Unlock()
	return nil
}

// Len returns the number of jobs waiting in the queue, including the one
// currently being processed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Processing reports whether the drain loop is active.
func (q *Queue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}

// drain pops and fully processes the head of the queue until empty. A single
// goroutine runs this loop at a time, guarded by q.processing.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.processing = false
			q.mu.Unlock()
			return
		}
		job := q.items[0]
		q.mu.Unlock()

		q.process(job)

		q.mu.Lock()
		q.items = q.items[1:]
		q.mu.Unlock()
	}
}

// process runs one job to completion or failure. Errors never escape: a bad
// job is recorded as failed and the loop advances to the next one.
func (q *Queue) process(job Job) {
	ctx := context.Background()
	log.Printf("encode start id=%s", job.ID)

	q.setStatus(ctx, job.ID, jobs.StatusProcessing, nil)

	outputDir, err := q.transcoder.Transcode(ctx, job.SourcePath)
	if err != nil {
		q.fail(ctx, job, fmt.Errorf("transcode: %w", err))
		return
	}

	// The raw upload is consumed; dropping it here also keeps it out of the
	// artifact walk below, since it lives inside the output directory.
	if err := os.Remove(job.SourcePath); err != nil {
		log.Printf("remove source failed id=%s err=%v", job.ID, err)
	}

	if err := q.uploadTree(ctx, job.ID, outputDir); err != nil {
		q.fail(ctx, job, fmt.Errorf("upload: %w", err))
		return
	}

	if err := os.RemoveAll(outputDir); err != nil {
		log.Printf("remove output dir failed id=%s err=%v", job.ID, err)
	}

	q.setStatus(ctx, job.ID, jobs.StatusSuccess, nil)
	log.Printf("encode done id=%s", job.ID)
}

// fail marks the job failed. Local files are kept for inspection and the job
// is not retried.
func (q *Queue) fail(ctx context.Context, job Job, err error) {
	msg := truncate(err.Error(), 800)
	log.Printf("encode failed id=%s err=%s", job.ID, msg)
	q.setStatus(ctx, job.ID, jobs.StatusFailed, &msg)
}

// setStatus is a best-effort write: if the store is unavailable the queue
// still advances and the visible status goes stale until the store recovers.
func (q *Queue) setStatus(ctx context.Context, id, status string, message *string) {
	if err := q.statuses.UpdateStatus(ctx, id, status, message); err != nil {
		log.Printf("status update failed id=%s status=%s err=%v", id, status, err)
	}
}

// uploadTree pushes every file under dir to the blob store, preserving the
// relative layout under the job's key prefix so the manifest's relative
// segment references keep resolving.
func (q *Queue) uploadTree(ctx context.Context, id, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := ObjectKey(id, filepath.ToSlash(rel))
		if _, err := q.blobs.UploadFile(ctx, path, key, contentTypeFor(path)); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		return nil
	})
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
