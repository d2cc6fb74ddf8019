package encode

import "context"

// Job is one unit of transcoding work. ID doubles as the name of the
// directory holding the raw upload and, later, the HLS output tree.
type Job struct {
	ID         string
	SourcePath string
}

// StatusStore persists per-job lifecycle transitions.
type StatusStore interface {
	// InsertStatus creates the record for a new job; it must fail if the id
	// already exists rather than overwrite.
	InsertStatus(ctx context.Context, id, name, status string) error
	UpdateStatus(ctx context.Context, id, status string, message *string) error
}

// BlobStore uploads a local file under a logical key and returns its public URL.
type BlobStore interface {
	UploadFile(ctx context.Context, localPath, objectKey, contentType string) (string, error)
}

// Transcoder turns a raw video file into an HLS rendition tree on local disk.
// By convention the output directory is the directory containing sourcePath.
type Transcoder interface {
	Transcode(ctx context.Context, sourcePath string) (outputDir string, err error)
}
