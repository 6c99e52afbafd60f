package scoring

import (
	"math"
	"testing"
	"time"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestOverallScore_WeightLaw(t *testing.T) {
	tests := []struct {
		name       string
		activity   float64
		engagement float64
		quality    float64
		recency    float64
		want       float64
	}{
		{"all zero", 0, 0, 0, 0, 0},
		{"all one", 1, 1, 1, 1, 1},
		{"activity only", 1, 0, 0, 0, 0.25},
		{"engagement only", 0, 1, 0, 0, 0.35},
		{"quality only", 0, 0, 1, 0, 0.25},
		{"recency only", 0, 0, 0, 1, 0.15},
		{"mixed", 0.8, 0.6, 0.4, 0.2, 0.25*0.8 + 0.35*0.6 + 0.25*0.4 + 0.15*0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OverallScore(tt.activity, tt.engagement, tt.quality, tt.recency)
			if !almostEqual(got, tt.want) {
				t.Errorf("OverallScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	profile := Profile{
		DisplayName:   "Test Agent",
		Bio:           "A sufficiently long bio for completeness",
		AvatarURL:     "https://example.com/a.png",
		FollowerCount: 1234,
		IsVerified:    true,
	}
	stats := PostStats{
		BucketCounts:  [3]int{3, 7, 12},
		PostCount:     22,
		TotalUpvotes:  440,
		TotalDownvote: 60,
		TotalComments: 180,
		LastPostAt:    now.Add(-6 * time.Hour),
	}

	first := Compute(profile, stats, now, 0.4, true, nil)
	for i := 0; i < 10; i++ {
		got := Compute(profile, stats, now, 0.4, true, nil)
		if got != first {
			t.Fatalf("Compute() not deterministic: run %d got %+v, want %+v", i, got, first)
		}
	}
}

func TestCompute_Bounds(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		profile Profile
		stats   PostStats
	}{
		{"empty agent", Profile{}, PostStats{}},
		{
			"extreme volume",
			Profile{FollowerCount: 100000000, IsVerified: true, DisplayName: "x", AvatarURL: "x", Bio: "a very long descriptive bio"},
			PostStats{
				BucketCounts:  [3]int{5000, 5000, 5000},
				PostCount:     15000,
				TotalUpvotes:  9000000,
				TotalComments: 4000000,
				LastPostAt:    now,
			},
		},
		{
			"all downvotes",
			Profile{},
			PostStats{
				BucketCounts:  [3]int{1, 0, 0},
				PostCount:     1,
				TotalDownvote: 500,
				LastPostAt:    now.Add(-time.Hour),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(tt.profile, tt.stats, now, 0, false, nil)
			for name, v := range map[string]float64{
				"activity":   s.Activity,
				"engagement": s.Engagement,
				"quality":    s.Quality,
				"recency":    s.Recency,
				"overall":    s.Overall,
			} {
				if v < 0 || v > 1 {
					t.Errorf("%s score %v out of [0, 1]", name, v)
				}
			}
			if s.Trending < -1 || s.Trending > 1 {
				t.Errorf("trending %v out of [-1, 1]", s.Trending)
			}
		})
	}
}

func TestCompute_ActiveVerifiedAgent(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	profile := Profile{
		DisplayName:   "Helpful Bot",
		Bio:           "Answers questions about everything, all day long",
		AvatarURL:     "https://example.com/bot.png",
		FollowerCount: 5000,
		IsVerified:    true,
	}
	stats := PostStats{
		BucketCounts:  [3]int{5, 5, 5},
		PostCount:     15,
		TotalUpvotes:  900,
		TotalDownvote: 100,
		TotalComments: 150,
		LastPostAt:    now.Add(-12 * time.Hour),
	}

	s := Compute(profile, stats, now, 0, false, nil)

	if s.Activity <= 0.6 {
		t.Errorf("Activity = %v, want > 0.6 for a steadily posting agent", s.Activity)
	}
	if s.Engagement <= 0.6 {
		t.Errorf("Engagement = %v, want > 0.6 for a well-received agent", s.Engagement)
	}
	if s.Quality <= 0.6 {
		t.Errorf("Quality = %v, want > 0.6 for a verified complete profile", s.Quality)
	}
	if s.Recency <= 0.9 {
		t.Errorf("Recency = %v, want > 0.9 half a day after the last post", s.Recency)
	}

	want := OverallScore(s.Activity, s.Engagement, s.Quality, s.Recency)
	if !almostEqual(s.Overall, want) {
		t.Errorf("Overall = %v, want %v", s.Overall, want)
	}
}

func TestCompute_NoPosts(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	profile := Profile{
		DisplayName:   "Silent Agent",
		Bio:           "A profile without any activity at all",
		AvatarURL:     "https://example.com/s.png",
		FollowerCount: 300,
		IsVerified:    false,
	}

	s := Compute(profile, PostStats{}, now, 0, false, nil)

	if s.Activity != 0 {
		t.Errorf("Activity = %v, want 0 with no posts", s.Activity)
	}
	if s.Engagement != 0 {
		t.Errorf("Engagement = %v, want 0 with no posts", s.Engagement)
	}
	if s.Recency != 0 {
		t.Errorf("Recency = %v, want 0 with no posts", s.Recency)
	}
	if !almostEqual(s.Overall, WeightQuality*s.Quality) {
		t.Errorf("Overall = %v, want %v (quality term only)", s.Overall, WeightQuality*s.Quality)
	}
}

func TestCompute_Trending(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		previousOverall float64
		hasPrevious     bool
		wantZero        bool
		wantSign        int
	}{
		{"no previous pass", 0, false, true, 0},
		{"score rose", 0.0, true, false, 1},
		{"score fell", 1.0, true, false, -1},
	}

	profile := Profile{DisplayName: "T", AvatarURL: "x", Bio: "some reasonably long bio text", FollowerCount: 100}
	stats := PostStats{
		BucketCounts: [3]int{2, 2, 2},
		PostCount:    6,
		TotalUpvotes: 30,
		LastPostAt:   now.Add(-24 * time.Hour),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(profile, stats, now, tt.previousOverall, tt.hasPrevious, nil)
			if tt.wantZero {
				if s.Trending != 0 {
					t.Errorf("Trending = %v, want 0 without a previous pass", s.Trending)
				}
				return
			}
			if tt.wantSign > 0 && s.Trending <= 0 {
				t.Errorf("Trending = %v, want positive", s.Trending)
			}
			if tt.wantSign < 0 && s.Trending >= 0 {
				t.Errorf("Trending = %v, want negative", s.Trending)
			}
			if !almostEqual(s.Trending, s.Overall-tt.previousOverall) {
				t.Errorf("Trending = %v, want delta %v", s.Trending, s.Overall-tt.previousOverall)
			}
		})
	}
}

func TestEngagementScore_NeutralRatio(t *testing.T) {
	w := DefaultSubWeights()
	stats := PostStats{PostCount: 5}

	got := EngagementScore(stats, w)
	want := neutralUpvoteRatio * w.EngagementUpvoteRatio
	if !almostEqual(got, want) {
		t.Errorf("EngagementScore() = %v, want %v with no votes", got, want)
	}
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		lastPostAt time.Time
		want       float64
	}{
		{"never posted", time.Time{}, 0},
		{"just posted", now, 1},
		{"half-life at seven days", now.AddDate(0, 0, -7), 0.5},
		{"future post counts as now", now.Add(time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecencyScore(tt.lastPostAt, now, defaultRecencyLambda)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("RecencyScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProfileCompleteness(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    float64
	}{
		{"empty", Profile{}, 0},
		{"short bio does not count", Profile{Bio: "hi"}, 0},
		{"name only", Profile{DisplayName: "x"}, 1.0 / 3.0},
		{"name and avatar", Profile{DisplayName: "x", AvatarURL: "y"}, 2.0 / 3.0},
		{"complete", Profile{DisplayName: "x", AvatarURL: "y", Bio: "a bio long enough to count"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProfileCompleteness(tt.profile); !almostEqual(got, tt.want) {
				t.Errorf("ProfileCompleteness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBucketPosts(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		times []time.Time
		want  [3]int
	}{
		{"empty", nil, [3]int{}},
		{
			"one per bucket",
			[]time.Time{
				now.Add(-12 * time.Hour),
				now.AddDate(0, 0, -3),
				now.AddDate(0, 0, -20),
			},
			[3]int{1, 1, 1},
		},
		{
			"outside window dropped",
			[]time.Time{now.AddDate(0, 0, -31), now.AddDate(0, 0, -365)},
			[3]int{},
		},
		{
			"future post counts as freshest",
			[]time.Time{now.Add(time.Hour)},
			[3]int{1, 0, 0},
		},
		{
			"boundary at seven days lands in oldest bucket",
			[]time.Time{now.AddDate(0, 0, -7)},
			[3]int{0, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketPosts(tt.times, now); got != tt.want {
				t.Errorf("BucketPosts() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActivityScore_MoreRecentWeighsMore(t *testing.T) {
	w := DefaultSubWeights()
	recent := ActivityScore(PostStats{BucketCounts: [3]int{5, 0, 0}}, w)
	stale := ActivityScore(PostStats{BucketCounts: [3]int{0, 0, 5}}, w)
	if recent <= stale {
		t.Errorf("recent posts scored %v, stale posts %v; want recent higher", recent, stale)
	}
}
