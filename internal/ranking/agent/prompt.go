package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// transcript excerpts are capped so a long call cannot crowd the others out
// of the prompt.
const maxTranscriptChars = 1500

func getRankerSystemPrompt() string {
	return "You rank home-service providers for a customer based exclusively on transcripts " +
		"and summaries of phone calls made on the customer's behalf. Judge availability, " +
		"price indication, willingness to take the job and professionalism. " +
		"Respond with a JSON array only, no prose and no markdown fences."
}

func buildRankPrompt(input RankInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer request:\n- Service: %s\n- Urgency: %s\n", input.ServiceType, input.Urgency)
	if input.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", input.Location)
	}
	if input.Description != "" {
		fmt.Fprintf(&b, "- Details: %s\n", input.Description)
	}

	b.WriteString("\nCall outcomes:\n")
	for i, res := range input.Results {
		fmt.Fprintf(&b, "\n[%d] Provider: %s (callId: %s, status: %s)\n", i+1, res.ProviderName, res.CallID, res.Status)
		if res.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", res.Summary)
		}
		if res.PriceIndication != "" {
			fmt.Fprintf(&b, "Price indication: %s\n", res.PriceIndication)
		}
		if res.Availability != "" {
			fmt.Fprintf(&b, "Availability: %s\n", res.Availability)
		}
		if res.Transcript != "" {
			fmt.Fprintf(&b, "Transcript:\n%s\n", truncate(res.Transcript, maxTranscriptChars))
		}
	}

	b.WriteString(`
Task:
Rank the providers, best first. Exclude providers that declined or were never
reached. Output a JSON array where each element has exactly these fields:
{"providerName": string, "callId": string, "rank": number (1 = best),
"score": number between 0 and 1, "reason": short string,
"priceIndication": string or omitted, "availability": string or omitted}.
Output the JSON array and nothing else.`)
	return b.String()
}

func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + "\n...[truncated]"
}

// ParseVerdict extracts the JSON array from the model output. Models wrap
// answers in fences or lead-in text often enough that scanning for the array
// is more robust than a strict decode.
func ParseVerdict(output string) ([]RankedCandidate, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("ranking verdict contains no JSON array")
	}

	var candidates []RankedCandidate
	if err := json.Unmarshal([]byte(output[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("parse ranking verdict: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("ranking verdict is empty")
	}

	normalizeRanks(candidates)
	return candidates, nil
}

// normalizeRanks makes ranks dense and 1-based regardless of what the model
// produced. Entries without a rank keep their output order at the end.
func normalizeRanks(candidates []RankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].Rank, candidates[j].Rank
		if ri <= 0 {
			return false
		}
		if rj <= 0 {
			return true
		}
		return ri < rj
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}
