package scoring

// Top-level weights for the overall score. These are fixed deployment
// constants, not runtime parameters: overall is always
//
//	0.25*activity + 0.35*engagement + 0.25*quality + 0.15*recency
//
// Changing them is a code change, never a per-call option.
const (
	WeightActivity   = 0.25
	WeightEngagement = 0.35
	WeightQuality    = 0.25
	WeightRecency    = 0.15
)

// SubWeights holds the tunable weights inside individual sub-scores.
// Unlike the top-level weights these may be calibrated from a JSON file.
type SubWeights struct {
	// Engagement components: upvote ratio vs. comments per post.
	EngagementUpvoteRatio float64 `json:"engagement_upvote_ratio"` // default 0.6
	EngagementComments    float64 `json:"engagement_comments"`     // default 0.4

	// Quality components: verification flag, profile completeness,
	// log-scaled follower count.
	QualityVerified     float64 `json:"quality_verified"`     // default 0.4
	QualityCompleteness float64 `json:"quality_completeness"` // default 0.3
	QualityFollowers    float64 `json:"quality_followers"`    // default 0.3

	// Activity bucket weights, most recent bucket first (0-1d, 1-7d, 7-30d).
	ActivityBuckets [3]float64 `json:"activity_buckets"` // default [0.5, 0.3, 0.2]

	// RecencyLambda is the decay constant for exp(-lambda * days).
	RecencyLambda float64 `json:"recency_lambda"` // default ln2/7 (7-day half-life)
}

// DefaultSubWeights returns the default sub-weight configuration.
//
// Engagement: upvote ratio dominates comments per post (0.6 / 0.4) because
// the ratio is the cleaner quality signal on platforms with downvotes.
// Quality: verification 0.4, completeness 0.3, followers 0.3.
// Activity buckets favor the most recent window.
// Recency half-life: seven days.
func DefaultSubWeights() *SubWeights {
	return &SubWeights{
		EngagementUpvoteRatio: 0.6,
		EngagementComments:    0.4,
		QualityVerified:       0.4,
		QualityCompleteness:   0.3,
		QualityFollowers:      0.3,
		ActivityBuckets:       [3]float64{0.5, 0.3, 0.2},
		RecencyLambda:         defaultRecencyLambda,
	}
}
