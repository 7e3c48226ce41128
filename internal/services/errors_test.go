package services

import (
	"errors"
	"testing"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("blender exited with status 11")
	err := Wrap(ErrExternalTool, "resolutions", "run blender", "background task failed", base)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool marker: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause preserved: %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := Wrap(nil, "gltf", "", "", nil)
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected default marker: %v", err)
	}
}

func TestFailureStatus(t *testing.T) {
	if got := FailureStatus(Wrap(ErrConfiguration, "t", "", "no blenders", nil)); got != history.StatusReview {
		t.Fatalf("configuration should map to review, got %s", got)
	}
	if got := FailureStatus(Wrap(ErrTimeout, "t", "", "", nil)); got != history.StatusFailed {
		t.Fatalf("timeout should map to failed, got %s", got)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{Wrap(ErrConfiguration, "t", "", "", nil), 2},
		{Wrap(ErrTimeout, "t", "", "", nil), 3},
		{Wrap(ErrMissingOutput, "t", "", "", nil), 4},
		{Wrap(ErrRemoteAPI, "t", "", "", nil), 5},
		{errors.New("untagged"), 1},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
