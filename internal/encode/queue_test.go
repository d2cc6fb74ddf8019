package encode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"xmedia/internal/jobs"
)

type memStatusStore struct {
	mu          sync.Mutex
	statuses    map[string]string
	messages    map[string]string
	transitions []string

	insertErr    error
	beforeUpdate func(id, status string) error

	maxProcessing int
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{
		statuses: make(map[string]string),
		messages: make(map[string]string),
	}
}

func (m *memStatusStore) InsertStatus(_ context.Context, id, name, status string) error {
	if name == "" {
		return errors.New("name is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.statuses[id]; ok {
		return fmt.Errorf("duplicate id %s", id)
	}
	m.statuses[id] = status
	m.transitions = append(m.transitions, id+":"+status)
	return nil
}

func (m *memStatusStore) UpdateStatus(_ context.Context, id, status string, message *string) error {
	if m.beforeUpdate != nil {
		if err := m.beforeUpdate(id, status); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statuses[id]; !ok {
		return fmt.Errorf("no record for id %s", id)
	}
	m.statuses[id] = status
	if message != nil {
		m.messages[id] = *message
	}
	m.transitions = append(m.transitions, id+":"+status)

	processing := 0
	for _, st := range m.statuses {
		if st == jobs.StatusProcessing {
			processing++
		}
	}
	if processing > m.maxProcessing {
		m.maxProcessing = processing
	}
	return nil
}

func (m *memStatusStore) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

func (m *memStatusStore) message(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[id]
}

func (m *memStatusStore) history() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.transitions...)
}

type memBlobStore struct {
	mu        sync.Mutex
	keys      []string
	uploadErr error
}

func (m *memBlobStore) UploadFile(_ context.Context, localPath, objectKey, contentType string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	if contentType == "" {
		return "", errors.New("content type is empty")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.keys = append(m.keys, objectKey)
	m.mu.Unlock()
	return "http://blobs.local/" + objectKey, nil
}

func (m *memBlobStore) uploaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := append([]string(nil), m.keys...)
	sort.Strings(keys)
	return keys
}

// stubTranscoder writes a minimal HLS tree next to the source file.
type stubTranscoder struct {
	delay time.Duration
	err   error
}

func (s *stubTranscoder) Transcode(_ context.Context, sourcePath string) (string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return "", s.err
	}
	dir := filepath.Dir(sourcePath)
	files := map[string]string{
		"master.m3u8":      "#EXTM3U\nv0/playlist.m3u8\n",
		"v0/playlist.m3u8": "#EXTM3U\nsegment000.ts\n",
		"v0/segment000.ts": "segment-bytes",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func makeSource(t *testing.T, root, id string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, id+".mp4")
	if err := os.WriteFile(path, []byte("raw-video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if q.Len() == 0 && !q.Processing() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue did not drain: len=%d processing=%v", q.Len(), q.Processing())
}

func TestEnqueue_PendingVisibleBeforeProcessing(t *testing.T) {
	st := newMemStatusStore()
	gate := make(chan struct{})
	st.beforeUpdate = func(string, string) error {
		<-gate
		return nil
	}
	blobs := &memBlobStore{}
	q := NewQueue(st, blobs, &stubTranscoder{})

	src := makeSource(t, t.TempDir(), "abc123")
	if err := q.Enqueue(context.Background(), Job{ID: "abc123", SourcePath: src}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := st.status("abc123"); got != jobs.StatusPending {
		t.Fatalf("expected pending right after enqueue, got %q", got)
	}

	close(gate)
	waitIdle(t, q)
	if got := st.status("abc123"); got != jobs.StatusSuccess {
		t.Fatalf("expected success after drain, got %q", got)
	}
}

func TestQueue_FIFOCompletionOrder(t *testing.T) {
	st := newMemStatusStore()
	blobs := &memBlobStore{}
	q := NewQueue(st, blobs, &stubTranscoder{delay: 20 * time.Millisecond})

	root := t.TempDir()
	ids := []string{"j1", "j2", "j3"}
	for _, id := range ids {
		src := makeSource(t, root, id)
		if err := q.Enqueue(context.Background(), Job{ID: id, SourcePath: src}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	waitIdle(t, q)

	var got []string
	for _, tr := range st.history() {
		if strings.HasSuffix(tr, ":"+jobs.StatusPending) {
			continue
		}
		got = append(got, tr)
	}
	want := []string{
		"j1:processing", "j1:success",
		"j2:processing", "j2:success",
		"j3:processing", "j3:success",
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestQueue_AtMostOneProcessing(t *testing.T) {
	st := newMemStatusStore()
	blobs := &memBlobStore{}
	q := NewQueue(st, blobs, &stubTranscoder{delay: 5 * time.Millisecond})

	root := t.TempDir()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("job-%d", i)
		src := makeSource(t, root, id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Enqueue(context.Background(), Job{ID: id, SourcePath: src}); err != nil {
				t.Errorf("enqueue %s: %v", id, err)
			}
		}()
	}
	wg.Wait()
	waitIdle(t, q)

	if st.maxProcessing > 1 {
		t.Fatalf("observed %d jobs processing concurrently", st.maxProcessing)
	}
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("job-%d", i)
		if got := st.status(id); got != jobs.StatusSuccess {
			t.Fatalf("job %s status = %q, want success", id, got)
		}
	}
}

func TestQueue_SuccessCleansDiskAndUploadsTree(t *testing.T) {
	st := newMemStatusStore()
	blobs := &memBlobStore{}
	q := NewQueue(st, blobs, &stubTranscoder{})

	src := makeSource(t, t.TempDir(), "vid1")
	jobDir := filepath.Dir(src)
	if err := q.Enqueue(context.Background(), Job{ID: "vid1", SourcePath: src}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitIdle(t, q)

	if got := st.status("vid1"); got != jobs.StatusSuccess {
		t.Fatalf("status = %q, want success", got)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source file still exists: %v", err)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("output dir still exists: %v", err)
	}
	want := []string{
		"videos-hls/vid1/master.m3u8",
		"videos-hls/vid1/v0/playlist.m3u8",
		"videos-hls/vid1/v0/segment000.ts",
	}
	got := blobs.uploaded()
	if len(got) != len(want) {
		t.Fatalf("uploaded keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uploaded key %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueue_TranscodeFailureKeepsLocalFiles(t *testing.T) {
	st := newMemStatusStore()
	blobs := &memBlobStore{}
	q := NewQueue(st, blobs, &stubTranscoder{err: errors.New("codec exploded")})

	src := makeSource(t, t.TempDir(), "bad001")
	if err := q.Enqueue(context.Background(), Job{ID: "bad001", SourcePath: src}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitIdle(t, q)

	if got := st.status("bad001"); got != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	if msg := st.message("bad001"); !strings.Contains(msg, "codec exploded") {
		t.Fatalf("failure message = %q", msg)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source file should survive a failed job: %v", err)
	}
	if keys := blobs.uploaded(); len(keys) != 0 {
		t.Fatalf("no objects should be uploaded for a failed job, got %v", keys)
	}
}

func TestQueue_UploadFailureMarksFailedAndKeepsOutput(t *testing.T) {
	st := newMemStatusStore()
	blobs := &memBlobStore{uploadErr: errors.New("bucket unavailable")}
	q := NewQueue(st, blobs, &stubTranscoder{})

	src := makeSource(t, t.TempDir(), "vid2")
	jobDir := filepath.Dir(src)
	if err := q.Enqueue(context.Background(), Job{ID: "vid2", SourcePath: src}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitIdle(t, q)

	if got := st.status("vid2"); got != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", got)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "master.m3u8")); err != nil {
		t.Fatalf("output tree should survive an upload failure: %v", err)
	}
}

func TestQueue_AdvancesWhenFailedWriteFails(t *testing.T) {
	st := newMemStatusStore()
	st.beforeUpdate = func(id, status string) error {
		if id == "j1" && status == jobs.StatusFailed {
			return errors.New("store down")
		}
		return nil
	}
	blobs := &memBlobStore{}
	transcoder := &stubTranscoder{}

	// j1 fails to transcode and its failed write is rejected; j2 must still run.
	failing := &stubTranscoder{err: errors.New("broken input")}
	q := NewQueue(st, blobs, &switchTranscoder{byID: map[string]Transcoder{
		"j1": failing,
		"j2": transcoder,
	}})

	root := t.TempDir()
	for _, id := range []string{"j1", "j2"} {
		src := makeSource(t, root, id)
		if err := q.Enqueue(context.Background(), Job{ID: id, SourcePath: src}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	waitIdle(t, q)

	if got := st.status("j1"); got != jobs.StatusProcessing {
		t.Fatalf("j1 status = %q, want stale processing (failed write was rejected)", got)
	}
	if got := st.status("j2"); got != jobs.StatusSuccess {
		t.Fatalf("j2 status = %q, want success", got)
	}
}

// switchTranscoder routes each job to a different stub based on the job id
// encoded in the source path.
type switchTranscoder struct {
	byID map[string]Transcoder
}

func (s *switchTranscoder) Transcode(ctx context.Context, sourcePath string) (string, error) {
	id := filepath.Base(filepath.Dir(sourcePath))
	tr, ok := s.byID[id]
	if !ok {
		return "", fmt.Errorf("no transcoder for %s", id)
	}
	return tr.Transcode(ctx, sourcePath)
}

func TestEnqueue_DuplicateIDRejected(t *testing.T) {
	st := newMemStatusStore()
	gate := make(chan struct{})
	st.beforeUpdate = func(string, string) error {
		<-gate
		return nil
	}
	q := NewQueue(st, &memBlobStore{}, &stubTranscoder{})

	root := t.TempDir()
	src := makeSource(t, root, "dup")
	if err := q.Enqueue(context.Background(), Job{ID: "dup", SourcePath: src}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.Enqueue(context.Background(), Job{ID: "dup", SourcePath: src}); err == nil {
		t.Fatalf("expected error for duplicate job id")
	}
	if q.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", q.Len())
	}
	close(gate)
	waitIdle(t, q)
}

func TestEnqueue_MissingSourceRejected(t *testing.T) {
	st := newMemStatusStore()
	q := NewQueue(st, &memBlobStore{}, &stubTranscoder{})

	err := q.Enqueue(context.Background(), Job{ID: "ghost", SourcePath: "/nonexistent/ghost.mp4"})
	if err == nil {
		t.Fatalf("expected error for missing source file")
	}
	if got := st.status("ghost"); got != "" {
		t.Fatalf("no status record should exist, got %q", got)
	}
}

func TestEnqueue_InsertFailureKeepsJobOut(t *testing.T) {
	st := newMemStatusStore()
	st.insertErr = errors.New("store down")
	q := NewQueue(st, &memBlobStore{}, &stubTranscoder{})

	src := makeSource(t, t.TempDir(), "x1")
	if err := q.Enqueue(context.Background(), Job{ID: "x1", SourcePath: src}); err == nil {
		t.Fatalf("expected insert failure to surface")
	}
	if q.Len() != 0 {
		t.Fatalf("queue len = %d, want 0", q.Len())
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source must be left for the caller to clean up: %v", err)
	}
}
