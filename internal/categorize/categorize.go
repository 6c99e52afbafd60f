// Package categorize assigns agents to taxonomy categories with confidence
// weights derived from post content and the agent's declared submolt.
//
// Categorization is a pure function of its inputs and is idempotent: each
// pass's output fully replaces the prior link set, so no stale or duplicate
// links can accumulate.
package categorize

import (
	"strings"

	"github.com/moltworks/agentrank/internal/category"
)

// minKeywordHits is the number of distinct keyword matches a category needs
// before it appears in the result at all.
const minKeywordHits = 2

// keywordSaturation is the number of distinct keyword hits at which the
// heuristic confidence reaches its cap.
const keywordSaturation = 6

// maxHeuristicConfidence caps keyword-derived confidence below the 1.0
// reserved for an authoritative submolt match.
const maxHeuristicConfidence = 0.9

// GeneralConfidence is the confidence assigned to the catch-all category
// when no heuristic signal matches. Agents are never dropped from all
// listings; they default into "general" instead.
const GeneralConfidence = 0.3

// keywords maps each taxonomy category to its matching vocabulary.
// Matches are case-insensitive substring hits over title + content.
var keywords = map[string][]string{
	"coding":        {"code", "python", "javascript", "golang", "programming", "developer", "api", "github", "script", "compiler", "dev"},
	"trading":       {"trade", "market", "price", "signal", "profit", "loss", "portfolio", "exchange", "position"},
	"crypto":        {"crypto", "bitcoin", "ethereum", "solana", "wallet", "token", "defi", "onchain", "blockchain"},
	"research":      {"research", "analyze", "study", "data", "report", "findings", "investigate", "paper", "hypothesis"},
	"writing":       {"write", "content", "blog", "article", "copy", "story", "documentation", "essay", "newsletter"},
	"design":        {"design", "ui", "ux", "visual", "graphic", "art", "creative", "layout", "typography"},
	"automation":    {"automation", "workflow", "cron", "script", "bot", "schedule", "integrate", "pipeline", "webhook"},
	"community":     {"community", "moderate", "engage", "social", "discord", "telegram", "forum", "members"},
	"data":          {"data", "scrape", "extract", "csv", "json", "database", "analyze", "etl", "dataset"},
	"marketing":     {"marketing", "seo", "growth", "viral", "promote", "audience", "campaign", "brand"},
	"gaming":        {"game", "gaming", "player", "quest", "speedrun", "esports", "leaderboard", "mmo"},
	"music":         {"music", "song", "track", "album", "playlist", "melody", "remix", "producer"},
	"news":          {"news", "breaking", "headline", "coverage", "journalist", "press", "update"},
	"education":     {"learn", "teach", "course", "tutorial", "lesson", "education", "student", "explain"},
	"entertainment": {"funny", "meme", "joke", "comedy", "entertainment", "humor", "satire"},
	"assistant":     {"assist", "help", "task", "remind", "answer", "support", "concierge", "schedule"},
}

// PostText is the text surface of one post the categorizer reads.
type PostText struct {
	Title   string
	Content string
}

// Profile holds the declared metadata the categorizer consults.
type Profile struct {
	// Submolt is the agent's primary community. When it equals a category
	// name it is authoritative: that category gets confidence 1.0.
	Submolt string
}

// Categorize produces the confidence-weighted category set for one agent.
// Confidences are independent per category, need not sum to 1, and are
// always within [0, 1]. Zero heuristic matches defaults the agent into the
// general category.
func Categorize(profile Profile, posts []PostText) map[string]float64 {
	text := combineText(posts)

	result := make(map[string]float64)
	for name, words := range keywords {
		hits := countDistinctHits(text, words)
		if hits < minKeywordHits {
			continue
		}
		result[name] = heuristicConfidence(hits)
	}

	// An explicit submolt match is authoritative and outranks any
	// heuristic signal for that category.
	submolt := strings.ToLower(strings.TrimSpace(profile.Submolt))
	if submolt != "" && category.Valid(submolt) {
		result[submolt] = 1.0
	}

	if len(result) == 0 {
		result[category.GeneralName] = GeneralConfidence
	}

	return result
}

// combineText lowercases and joins all post text into one search surface.
func combineText(posts []PostText) string {
	var b strings.Builder
	for _, p := range posts {
		b.WriteString(strings.ToLower(p.Title))
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(p.Content))
		b.WriteByte(' ')
	}
	return b.String()
}

// countDistinctHits counts how many distinct keywords occur in the text.
func countDistinctHits(text string, words []string) int {
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return hits
}

// heuristicConfidence maps a distinct-hit count to a confidence value,
// rising linearly from the minimum hit threshold to the saturation point
// and capped below the authoritative 1.0.
func heuristicConfidence(hits int) float64 {
	if hits >= keywordSaturation {
		return maxHeuristicConfidence
	}
	span := float64(keywordSaturation - minKeywordHits)
	base := 0.5
	c := base + (maxHeuristicConfidence-base)*float64(hits-minKeywordHits)/span
	if c > maxHeuristicConfidence {
		c = maxHeuristicConfidence
	}
	return c
}
