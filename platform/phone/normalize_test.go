package phone

import "testing"

func TestParseE164(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		region  string
		want    string
		wantErr bool
	}{
		{name: "national US number", input: "(512) 555-0133", region: "US", want: "+15125550133"},
		{name: "already E164", input: "+15125550133", region: "US", want: "+15125550133"},
		{name: "whitespace trimmed", input: "  +15125550133  ", region: "US", want: "+15125550133"},
		{name: "foreign prefix wins over region", input: "+31651234567", region: "US", want: "+31651234567"},
		{name: "empty region falls back", input: "+15125550133", region: "", want: "+15125550133"},
		{name: "empty input", input: "   ", region: "US", wantErr: true},
		{name: "garbage input", input: "call me maybe", region: "US", wantErr: true},
		{name: "too short", input: "12345", region: "US", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseE164(tt.input, tt.region)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseE164(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseE164(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeE164KeepsInputOnFailure(t *testing.T) {
	if got := NormalizeE164(" not-a-number ", "US"); got != "not-a-number" {
		t.Errorf("NormalizeE164 should return trimmed input on failure, got %q", got)
	}
	if got := NormalizeE164("(512) 555-0133", "US"); got != "+15125550133" {
		t.Errorf("NormalizeE164 = %q, want +15125550133", got)
	}
}
