package replies

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseSelectionVariants(t *testing.T) {
	id := uuid.MustParse("7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73")

	cases := []struct {
		name string
		text string
		want int
	}{
		{
			name: "plain instruction",
			text: "request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose 2",
			want: 2,
		},
		{
			name: "option keyword",
			text: "Request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73 choose option 3",
			want: 3,
		},
		{
			name: "uppercase with hash",
			text: "REQUEST 7F9C24E8-3B12-4A5D-9F1E-8C6B2A4D0E73: CHOOSE #1",
			want: 1,
		},
		{
			name: "embedded in a longer reply",
			text: "Hi,\n\nThe second one sounds good.\nrequest 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose 2\n\nThanks!",
			want: 2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotID, gotOption, ok := ParseSelection(tc.text)
			if !ok {
				t.Fatalf("ParseSelection(%q) not recognized", tc.text)
			}
			if gotID != id {
				t.Errorf("request id = %s, want %s", gotID, id)
			}
			if gotOption != tc.want {
				t.Errorf("option = %d, want %d", gotOption, tc.want)
			}
		})
	}
}

func TestParseSelectionRejects(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{name: "empty body", text: ""},
		{name: "no instruction", text: "Thanks, I will call them myself."},
		{name: "malformed id", text: "request 12345: choose 2"},
		{name: "zero option", text: "request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose 0"},
		{name: "missing option", text: "request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, ok := ParseSelection(tc.text); ok {
				t.Errorf("ParseSelection(%q) = true, want false", tc.text)
			}
		})
	}
}

func TestParseSelectionIgnoresQuotedLines(t *testing.T) {
	quoted := "Sounds good.\n\n> To pick a provider, reply with\n> request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose 1\n"
	if _, _, ok := ParseSelection(quoted); ok {
		t.Fatal("quoted instruction alone should not trigger a selection")
	}

	mixed := "request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose 2\n\n> request 7f9c24e8-3b12-4a5d-9f1e-8c6b2a4d0e73: choose 1\n"
	_, option, ok := ParseSelection(mixed)
	if !ok {
		t.Fatal("unquoted instruction should be recognized")
	}
	if option != 2 {
		t.Errorf("option = %d, want 2 (the unquoted instruction)", option)
	}
}
