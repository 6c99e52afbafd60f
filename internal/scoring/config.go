package scoring

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// CalibrationConfig represents the JSON structure of the calibration file.
// Only sub-weights are calibratable; the four top-level weights are fixed
// constants and never appear here.
type CalibrationConfig struct {
	Version    string     `json:"version"`
	SubWeights SubWeights `json:"sub_weights"`
}

// LoadCalibration loads sub-weight overrides from a JSON calibration file.
// If the file doesn't exist or can't be parsed, returns default sub-weights
// with an error so the caller degrades gracefully. Partial configurations
// are merged with defaults.
func LoadCalibration(filePath string) (*SubWeights, error) {
	if filePath == "" {
		return DefaultSubWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultSubWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultSubWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultSubWeights()
	merged := MergeCalibration(defaults, &config.SubWeights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override sub-weights with base sub-weights.
// Only non-zero values from the override are applied, which allows partial
// overrides in the calibration file.
func MergeCalibration(base *SubWeights, override *SubWeights) *SubWeights {
	if base == nil {
		return DefaultSubWeights()
	}
	if override == nil {
		result := *base
		return &result
	}

	result := *base

	if override.EngagementUpvoteRatio != 0 {
		result.EngagementUpvoteRatio = override.EngagementUpvoteRatio
	}
	if override.EngagementComments != 0 {
		result.EngagementComments = override.EngagementComments
	}
	if override.QualityVerified != 0 {
		result.QualityVerified = override.QualityVerified
	}
	if override.QualityCompleteness != 0 {
		result.QualityCompleteness = override.QualityCompleteness
	}
	if override.QualityFollowers != 0 {
		result.QualityFollowers = override.QualityFollowers
	}
	for i, v := range override.ActivityBuckets {
		if v != 0 {
			result.ActivityBuckets[i] = v
		}
	}
	if override.RecencyLambda != 0 {
		result.RecencyLambda = override.RecencyLambda
	}

	return &result
}

// logCalibrationOverrides logs which sub-weights were overridden from defaults.
func logCalibrationOverrides(defaults *SubWeights, loaded *SubWeights) {
	var overrides []string

	if loaded.EngagementUpvoteRatio != defaults.EngagementUpvoteRatio {
		overrides = append(overrides, fmt.Sprintf("engagement_upvote_ratio: %.2f -> %.2f",
			defaults.EngagementUpvoteRatio, loaded.EngagementUpvoteRatio))
	}
	if loaded.EngagementComments != defaults.EngagementComments {
		overrides = append(overrides, fmt.Sprintf("engagement_comments: %.2f -> %.2f",
			defaults.EngagementComments, loaded.EngagementComments))
	}
	if loaded.QualityVerified != defaults.QualityVerified {
		overrides = append(overrides, fmt.Sprintf("quality_verified: %.2f -> %.2f",
			defaults.QualityVerified, loaded.QualityVerified))
	}
	if loaded.QualityCompleteness != defaults.QualityCompleteness {
		overrides = append(overrides, fmt.Sprintf("quality_completeness: %.2f -> %.2f",
			defaults.QualityCompleteness, loaded.QualityCompleteness))
	}
	if loaded.QualityFollowers != defaults.QualityFollowers {
		overrides = append(overrides, fmt.Sprintf("quality_followers: %.2f -> %.2f",
			defaults.QualityFollowers, loaded.QualityFollowers))
	}
	if loaded.ActivityBuckets != defaults.ActivityBuckets {
		overrides = append(overrides, fmt.Sprintf("activity_buckets: %v -> %v",
			defaults.ActivityBuckets, loaded.ActivityBuckets))
	}
	if loaded.RecencyLambda != defaults.RecencyLambda {
		overrides = append(overrides, fmt.Sprintf("recency_lambda: %.4f -> %.4f",
			defaults.RecencyLambda, loaded.RecencyLambda))
	}

	if len(overrides) > 0 {
		slog.Info("loaded scoring calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded scoring calibration (using all defaults)")
	}
}
