package scoring

import (
	"math"
	"time"
)

// defaultRecencyLambda gives a seven-day half-life: exp(-lambda*7) == 0.5.
var defaultRecencyLambda = math.Ln2 / 7.0

// Activity bucket boundaries, in days before the reference time.
const (
	bucketRecentDays = 1
	bucketWeekDays   = 7
	bucketMonthDays  = 30
)

// activitySaturation is the post volume (weighted) at which the activity
// score reaches 1.0 under the log10 normalization.
const activitySaturation = 30.0

// commentSaturation is the comments-per-post value at which the comment
// component of engagement reaches 1.0 under the log10 normalization.
const commentSaturation = 20.0

// followerSaturation is the follower count at which the follower component
// of quality reaches 1.0 under the log10 normalization.
const followerSaturation = 10000.0

// neutralUpvoteRatio is used when an agent has no votes at all.
const neutralUpvoteRatio = 0.5

// minBioLength is the bio length that counts as a populated profile field.
const minBioLength = 20

// Profile holds the agent profile fields the calculator reads.
type Profile struct {
	DisplayName   string
	Bio           string
	AvatarURL     string
	FollowerCount int
	IsVerified    bool
}

// PostStats holds the aggregate post signals for one agent over the
// lookback window.
type PostStats struct {
	// Posts bucketed by age relative to the reference time:
	// [0] 0-1 days, [1] 1-7 days, [2] 7-30 days.
	BucketCounts [3]int

	PostCount     int
	TotalUpvotes  int
	TotalDownvote int
	TotalComments int

	// LastPostAt is the most recent post time, zero if the agent has
	// never posted.
	LastPostAt time.Time
}

// Scores is the computed scorecard for one agent. All fields are in [0, 1]
// except Trending, which is a signed delta in [-1, 1].
type Scores struct {
	Activity   float64 `json:"activity"`
	Engagement float64 `json:"engagement"`
	Quality    float64 `json:"quality"`
	Recency    float64 `json:"recency"`
	Overall    float64 `json:"overall"`
	Trending   float64 `json:"trending"`
}

// Compute derives the full scorecard for one agent from its profile and
// post stats. now is the pass reference time; previousOverall is the overall
// score from the last committed pass (hasPrevious false when none exists,
// in which case trending is 0).
func Compute(profile Profile, stats PostStats, now time.Time, previousOverall float64, hasPrevious bool, w *SubWeights) Scores {
	if w == nil {
		w = DefaultSubWeights()
	}

	s := Scores{
		Activity:   ActivityScore(stats, w),
		Engagement: EngagementScore(stats, w),
		Quality:    QualityScore(profile, w),
		Recency:    RecencyScore(stats.LastPostAt, now, w.RecencyLambda),
	}
	s.Overall = OverallScore(s.Activity, s.Engagement, s.Quality, s.Recency)

	if hasPrevious {
		s.Trending = clamp(s.Overall-previousOverall, -1, 1)
	}

	return s
}

// ActivityScore computes normalized post frequency weighted toward recent
// buckets, saturated logarithmically so volume cannot dominate unboundedly.
// Zero posts yields 0.
func ActivityScore(stats PostStats, w *SubWeights) float64 {
	weighted := 0.0
	for i, count := range stats.BucketCounts {
		// Bucket weights decline with age; scaling keeps a steady recent
		// poster near saturation.
		weighted += float64(count) * w.ActivityBuckets[i] * 3.0
	}
	if weighted <= 0 {
		return 0
	}
	return saturateLog(weighted, activitySaturation)
}

// EngagementScore combines the upvote ratio with normalized comments per
// post. An agent with no votes gets the neutral ratio; an agent with no
// posts gets 0.
func EngagementScore(stats PostStats, w *SubWeights) float64 {
	if stats.PostCount == 0 {
		return 0
	}

	totalVotes := stats.TotalUpvotes + stats.TotalDownvote
	ratio := neutralUpvoteRatio
	if totalVotes > 0 {
		ratio = float64(stats.TotalUpvotes) / float64(totalVotes)
	}

	commentsPerPost := float64(stats.TotalComments) / float64(stats.PostCount)
	commentScore := saturateLog(commentsPerPost, commentSaturation)

	return clamp(ratio*w.EngagementUpvoteRatio+commentScore*w.EngagementComments, 0, 1)
}

// QualityScore combines verification, profile completeness, and log-scaled
// follower count. Missing profile fields contribute 0, never an error.
func QualityScore(profile Profile, w *SubWeights) float64 {
	verified := 0.0
	if profile.IsVerified {
		verified = 1.0
	}

	completeness := ProfileCompleteness(profile)
	followers := saturateLog(float64(profile.FollowerCount), followerSaturation)

	return clamp(verified*w.QualityVerified+completeness*w.QualityCompleteness+followers*w.QualityFollowers, 0, 1)
}

// ProfileCompleteness returns the fraction of profile fields populated:
// bio (at least minBioLength characters), display name, and avatar.
func ProfileCompleteness(profile Profile) float64 {
	populated := 0
	if len(profile.Bio) >= minBioLength {
		populated++
	}
	if profile.DisplayName != "" {
		populated++
	}
	if profile.AvatarURL != "" {
		populated++
	}
	return float64(populated) / 3.0
}

// RecencyScore computes exponential decay of time since the last post:
// exp(-lambda * days). An agent that has never posted gets 0.
func RecencyScore(lastPostAt time.Time, now time.Time, lambda float64) float64 {
	if lastPostAt.IsZero() {
		return 0
	}
	if lambda <= 0 {
		lambda = defaultRecencyLambda
	}

	days := now.Sub(lastPostAt).Hours() / 24.0
	if days < 0 {
		days = 0 // Clock skew between crawler and ranker; treat as just posted.
	}

	return clamp(math.Exp(-lambda*days), 0, 1)
}

// OverallScore is the fixed affine combination of the four sub-scores.
func OverallScore(activity, engagement, quality, recency float64) float64 {
	return WeightActivity*activity +
		WeightEngagement*engagement +
		WeightQuality*quality +
		WeightRecency*recency
}

// BucketPosts distributes post times into the activity age buckets relative
// to now: [0] 0-1 days, [1] 1-7 days, [2] 7-30 days. Posts older than the
// 30-day window (or in the future beyond now) fall outside every bucket.
func BucketPosts(postTimes []time.Time, now time.Time) [3]int {
	var buckets [3]int
	for _, t := range postTimes {
		days := now.Sub(t).Hours() / 24.0
		switch {
		case days < 0:
			buckets[0]++ // crawler clock skew, count as freshest
		case days < bucketRecentDays:
			buckets[0]++
		case days < bucketWeekDays:
			buckets[1]++
		case days < bucketMonthDays:
			buckets[2]++
		}
	}
	return buckets
}

// saturateLog maps x >= 0 into [0, 1] with log10(1+x) scaling, reaching 1.0
// at the saturation point.
func saturateLog(x, saturation float64) float64 {
	if x <= 0 {
		return 0
	}
	return clamp(math.Log10(1+x)/math.Log10(1+saturation), 0, 1)
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
