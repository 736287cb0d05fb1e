package agent

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseVerdict(t *testing.T) {
	output := "Here is my ranking:\n```json\n" +
		`[{"providerName":"Alpha","callId":"c1","rank":2,"score":0.6,"reason":"slower"},` +
		`{"providerName":"Beta","callId":"c2","rank":1,"score":0.9,"reason":"available tomorrow"}]` +
		"\n```"

	candidates, err := ParseVerdict(output)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].ProviderName != "Beta" || candidates[0].Rank != 1 {
		t.Fatalf("best candidate wrong: %+v", candidates[0])
	}
	if candidates[1].ProviderName != "Alpha" || candidates[1].Rank != 2 {
		t.Fatalf("second candidate wrong: %+v", candidates[1])
	}
}

func TestParseVerdictNormalizesSparseRanks(t *testing.T) {
	output := `[{"providerName":"A","rank":5},{"providerName":"B","rank":0},{"providerName":"C","rank":2}]`

	candidates, err := ParseVerdict(output)
	if err != nil {
		t.Fatalf("ParseVerdict: %v", err)
	}
	// C had the lowest positive rank, A follows, B (unranked) goes last;
	// ranks become dense.
	want := []string{"C", "A", "B"}
	for i, name := range want {
		if candidates[i].ProviderName != name {
			t.Fatalf("position %d = %s, want %s", i+1, candidates[i].ProviderName, name)
		}
		if candidates[i].Rank != i+1 {
			t.Fatalf("rank at position %d = %d, want %d", i, candidates[i].Rank, i+1)
		}
	}
}

func TestParseVerdictRejectsGarbage(t *testing.T) {
	cases := []struct {
		name   string
		output string
	}{
		{"no array", "I cannot rank these providers."},
		{"empty array", "[]"},
		{"malformed json", `[{"providerName": }]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseVerdict(tc.output); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestBuildRankPromptIncludesOutcomes(t *testing.T) {
	prompt := buildRankPrompt(RankInput{
		RequestID:   uuid.New(),
		ServiceType: "plumber",
		Urgency:     "high",
		Location:    "Austin",
		Results: []CallSummary{
			{CallID: "c1", ProviderName: "Alpha", Status: "completed", Summary: "Available tomorrow.", PriceIndication: "150 euros"},
		},
	})

	for _, want := range []string{"plumber", "Austin", "Alpha", "c1", "150 euros", "JSON array"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestTruncateCapsLongTranscripts(t *testing.T) {
	long := strings.Repeat("a", maxTranscriptChars+100)
	got := truncate(long, maxTranscriptChars)
	if len([]rune(got)) >= len([]rune(long)) {
		t.Fatal("transcript was not truncated")
	}
	if !strings.HasSuffix(got, "[truncated]") {
		t.Fatalf("truncation marker missing: %q", got[len(got)-30:])
	}
}
