package jobs

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// Terminal reports whether a status can no longer change.
func Terminal(status string) bool {
	return status == StatusSuccess || status == StatusFailed
}
