package encode

import (
	"mime"
	"path/filepath"
	"strings"
)

// KeyPrefix is the logical root under which every job's HLS tree is stored.
const KeyPrefix = "videos-hls"

// ObjectKey builds the blob key for one artifact of a job. rel must be
// slash-separated.
func ObjectKey(id, rel string) string {
	return KeyPrefix + "/" + id + "/" + rel
}

// ObjectPrefix is the key prefix holding every artifact of a job.
func ObjectPrefix(id string) string {
	return KeyPrefix + "/" + id + "/"
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".ts":
		return "video/mp2t"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
