package scoring

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCalibration_EmptyPath(t *testing.T) {
	w, err := LoadCalibration("")
	if err != nil {
		t.Fatalf("LoadCalibration(\"\") returned error: %v", err)
	}
	if *w != *DefaultSubWeights() {
		t.Errorf("LoadCalibration(\"\") = %+v, want defaults", w)
	}
}

func TestLoadCalibration_MissingFile(t *testing.T) {
	w, err := LoadCalibration("/nonexistent/calibration.json")
	if err == nil {
		t.Error("expected error for missing file")
	}
	if w == nil || *w != *DefaultSubWeights() {
		t.Errorf("expected default fallback, got %+v", w)
	}
}

func TestLoadCalibration_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calibration.json")
	content := `{
		"version": "test",
		"sub_weights": {
			"engagement_upvote_ratio": 0.7,
			"recency_lambda": 0.2
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write calibration file: %v", err)
	}

	w, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration() returned error: %v", err)
	}

	if w.EngagementUpvoteRatio != 0.7 {
		t.Errorf("EngagementUpvoteRatio = %v, want 0.7", w.EngagementUpvoteRatio)
	}
	if w.RecencyLambda != 0.2 {
		t.Errorf("RecencyLambda = %v, want 0.2", w.RecencyLambda)
	}

	// Everything not overridden keeps its default.
	defaults := DefaultSubWeights()
	if w.EngagementComments != defaults.EngagementComments {
		t.Errorf("EngagementComments = %v, want default %v", w.EngagementComments, defaults.EngagementComments)
	}
	if w.ActivityBuckets != defaults.ActivityBuckets {
		t.Errorf("ActivityBuckets = %v, want default %v", w.ActivityBuckets, defaults.ActivityBuckets)
	}
}

func TestLoadCalibration_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w, err := LoadCalibration(path)
	if err == nil {
		t.Error("expected error for malformed JSON")
	}
	if w == nil || *w != *DefaultSubWeights() {
		t.Errorf("expected default fallback, got %+v", w)
	}
}

func TestMergeCalibration(t *testing.T) {
	tests := []struct {
		name     string
		override *SubWeights
		check    func(t *testing.T, got *SubWeights)
	}{
		{
			"nil override returns base copy",
			nil,
			func(t *testing.T, got *SubWeights) {
				if *got != *DefaultSubWeights() {
					t.Errorf("got %+v, want defaults", got)
				}
			},
		},
		{
			"zero values ignored",
			&SubWeights{QualityVerified: 0},
			func(t *testing.T, got *SubWeights) {
				if got.QualityVerified != DefaultSubWeights().QualityVerified {
					t.Errorf("QualityVerified = %v, want default", got.QualityVerified)
				}
			},
		},
		{
			"single bucket override",
			&SubWeights{ActivityBuckets: [3]float64{0.9, 0, 0}},
			func(t *testing.T, got *SubWeights) {
				if got.ActivityBuckets[0] != 0.9 {
					t.Errorf("ActivityBuckets[0] = %v, want 0.9", got.ActivityBuckets[0])
				}
				if got.ActivityBuckets[1] != DefaultSubWeights().ActivityBuckets[1] {
					t.Errorf("ActivityBuckets[1] = %v, want default", got.ActivityBuckets[1])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeCalibration(DefaultSubWeights(), tt.override)
			tt.check(t, got)
		})
	}
}
