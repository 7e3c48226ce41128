package history

import "time"

// Status describes the recorded outcome of one task run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusReview  Status = "review"
)

// Run is one row of the run ledger: a single task executed against a single
// asset with a single Blender release.
type Run struct {
	ID             int64
	RunID          string
	Task           string
	AssetBaseID    string
	AssetName      string
	BlenderVersion string
	Status         Status
	Message        string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns the wall-clock duration of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
