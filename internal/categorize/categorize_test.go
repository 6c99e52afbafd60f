package categorize

import (
	"reflect"
	"strings"
	"testing"
)

func TestCategorize_KeywordHeuristics(t *testing.T) {
	tests := []struct {
		name  string
		posts []PostText
		want  map[string]bool // categories that must be present
		skip  map[string]bool // categories that must be absent
	}{
		{
			"coding agent",
			[]PostText{
				{Title: "My python script", Content: "Wrote a compiler plugin and pushed it to github"},
			},
			map[string]bool{"coding": true},
			nil,
		},
		{
			"single hit is not enough",
			[]PostText{{Title: "I like music", Content: "that is all"}},
			map[string]bool{"general": true},
			map[string]bool{"music": true},
		},
		{
			"multiple categories",
			[]PostText{
				{Title: "Trading bitcoin signals", Content: "My portfolio tracks every exchange and wallet on the blockchain"},
			},
			map[string]bool{"trading": true, "crypto": true},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(Profile{}, tt.posts)
			for name := range tt.want {
				if _, ok := got[name]; !ok {
					t.Errorf("expected category %q in %v", name, got)
				}
			}
			for name := range tt.skip {
				if _, ok := got[name]; ok {
					t.Errorf("did not expect category %q in %v", name, got)
				}
			}
		})
	}
}

func TestCategorize_ConfidenceBounds(t *testing.T) {
	posts := []PostText{
		{Title: "code python javascript golang", Content: "programming developer api github script compiler dev"},
	}
	got := Categorize(Profile{}, posts)
	for name, conf := range got {
		if conf < 0 || conf > 1 {
			t.Errorf("category %q confidence %v out of [0, 1]", name, conf)
		}
	}
	if got["coding"] != maxHeuristicConfidence {
		t.Errorf("coding confidence = %v, want heuristic cap %v with saturating hits", got["coding"], maxHeuristicConfidence)
	}
}

func TestCategorize_SubmoltAuthoritative(t *testing.T) {
	// No keyword support for gaming in the text at all.
	posts := []PostText{{Title: "hello", Content: "nothing relevant"}}

	got := Categorize(Profile{Submolt: "gaming"}, posts)
	if got["gaming"] != 1.0 {
		t.Errorf("gaming confidence = %v, want 1.0 for a declared submolt", got["gaming"])
	}

	// A submolt outside the taxonomy carries no weight.
	got = Categorize(Profile{Submolt: "cooking"}, posts)
	if _, ok := got["cooking"]; ok {
		t.Errorf("unexpected category for unknown submolt: %v", got)
	}
}

func TestCategorize_SubmoltOutranksHeuristic(t *testing.T) {
	posts := []PostText{
		{Title: "game gaming", Content: "player quest leaderboard"},
	}
	got := Categorize(Profile{Submolt: "Gaming"}, posts)
	if got["gaming"] != 1.0 {
		t.Errorf("gaming confidence = %v, want authoritative 1.0 over heuristic", got["gaming"])
	}
}

func TestCategorize_GeneralFallback(t *testing.T) {
	got := Categorize(Profile{}, nil)
	want := map[string]float64{"general": GeneralConfidence}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Categorize() = %v, want %v", got, want)
	}
}

func TestCategorize_Idempotent(t *testing.T) {
	posts := []PostText{
		{Title: "Learn to code", Content: "A tutorial course on python for every student, with lessons"},
	}
	first := Categorize(Profile{Submolt: "education"}, posts)
	for i := 0; i < 5; i++ {
		got := Categorize(Profile{Submolt: "education"}, posts)
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
}

func TestCategorize_CaseInsensitive(t *testing.T) {
	lower := Categorize(Profile{}, []PostText{{Title: "python code", Content: "github developer"}})
	upper := Categorize(Profile{}, []PostText{{Title: strings.ToUpper("python code"), Content: strings.ToUpper("github developer")}})
	if !reflect.DeepEqual(lower, upper) {
		t.Errorf("case sensitivity detected: %v vs %v", lower, upper)
	}
}

func TestHeuristicConfidence_Monotonic(t *testing.T) {
	prev := 0.0
	for hits := minKeywordHits; hits <= keywordSaturation+2; hits++ {
		c := heuristicConfidence(hits)
		if c < prev {
			t.Errorf("confidence decreased at %d hits: %v < %v", hits, c, prev)
		}
		if c > maxHeuristicConfidence {
			t.Errorf("confidence %v above cap at %d hits", c, hits)
		}
		prev = c
	}
}
