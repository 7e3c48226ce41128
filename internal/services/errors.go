package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
)

// Sentinel errors forming the failure taxonomy shared by all tasks. Service
// clients return their own descriptive errors; task code tags them with one
// of these markers via Wrap so outcomes classify uniformly.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
	ErrMissingOutput = errors.New("missing output error")
	ErrTimeout       = errors.New("timeout")
	ErrRemoteAPI     = errors.New("remote api error")
)

// Wrap builds an error message that includes task context while tagging it
// with the provided marker for later classification.
func Wrap(marker error, task, operation, message string, err error) error {
	detail := buildDetail(task, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a task error to the ledger status recorded for the run.
// Configuration problems land in review: re-running the job without an
// environment fix cannot succeed.
func FailureStatus(err error) history.Status {
	if errors.Is(err, ErrConfiguration) {
		return history.StatusReview
	}
	return history.StatusFailed
}

// ExitCode maps a task error to the process exit code surfaced to CI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrTimeout):
		return 3
	case errors.Is(err, ErrMissingOutput):
		return 4
	case errors.Is(err, ErrRemoteAPI):
		return 5
	default:
		return 1
	}
}

func buildDetail(task, operation, message string) string {
	parts := make([]string, 0, 3)
	if task = strings.TrimSpace(task); task != "" {
		parts = append(parts, task)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "task failure"
	}
	return strings.Join(parts, ": ")
}
