package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StatePending, StateSearching, true},
		{StateSearching, StateCalling, true},
		{StateCalling, StateAnalyzing, true},
		{StateAnalyzing, StateRecommended, true},
		{StateRecommended, StateBooking, true},
		{StateBooking, StateCompleted, true},
		{StateBooking, StateRecommended, true},
		{StateSearching, StateFailed, true},
		{StateCalling, StateFailed, true},
		{StateAnalyzing, StateFailed, true},
		{StateBooking, StateFailed, true},

		{StatePending, StateCalling, false},
		{StatePending, StateFailed, false},
		{StateRecommended, StateFailed, false},
		{StateRecommended, StateCompleted, false},
		{StateCompleted, StateBooking, false},
		{StateFailed, StateSearching, false},
		{StateCalling, StateCalling, false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, state := range []State{StateCompleted, StateFailed} {
		if !IsTerminal(state) {
			t.Errorf("IsTerminal(%q) = false, want true", state)
		}
	}
	for _, state := range []State{StatePending, StateSearching, StateCalling, StateAnalyzing, StateRecommended, StateBooking} {
		if IsTerminal(state) {
			t.Errorf("IsTerminal(%q) = true, want false", state)
		}
	}
}

func TestIsKnownState(t *testing.T) {
	for _, state := range []State{StatePending, StateSearching, StateCalling, StateAnalyzing, StateRecommended, StateBooking, StateCompleted, StateFailed} {
		if !IsKnownState(state) {
			t.Errorf("IsKnownState(%q) = false, want true", state)
		}
	}
	if IsKnownState("paused") {
		t.Error(`IsKnownState("paused") = true, want false`)
	}
}

func provider(status string) Provider {
	return Provider{Name: "P", Phone: "+12125550100", CallStatus: status}
}

func TestEvaluateCallGate(t *testing.T) {
	tests := []struct {
		name      string
		providers []Provider
		want      GateDecision
	}{
		{
			name:      "waits while any dispatched call is live",
			providers: []Provider{provider("completed"), provider("completed"), provider("in_progress")},
			want:      GateWait,
		},
		{
			name:      "waits while calls are still queued",
			providers: []Provider{provider(ProviderCallQueued), provider("completed")},
			want:      GateWait,
		},
		{
			name:      "advances when all dispatched calls settled",
			providers: []Provider{provider("completed"), provider("no_answer"), provider("busy")},
			want:      GateAdvance,
		},
		{
			name:      "ignores providers that were never dispatched",
			providers: []Provider{provider(ProviderCallPending), provider("completed")},
			want:      GateAdvance,
		},
		{
			name:      "all failures short-circuit",
			providers: []Provider{provider("failed"), provider("error"), provider("timeout")},
			want:      GateAllFailed,
		},
		{
			name:      "partial failures with a live call keep waiting",
			providers: []Provider{provider("failed"), provider("failed"), provider(ProviderCallQueued)},
			want:      GateWait,
		},
		{
			name:      "nothing dispatched counts as all failed",
			providers: []Provider{provider(ProviderCallPending), provider(ProviderCallPending)},
			want:      GateAllFailed,
		},
		{
			name:      "empty provider set counts as all failed",
			providers: nil,
			want:      GateAllFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateCallGate(tc.providers); got != tc.want {
				t.Errorf("EvaluateCallGate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSummarizeProviders(t *testing.T) {
	providers := []Provider{
		provider(ProviderCallPending),
		provider(ProviderCallQueued),
		provider("ringing"),
		provider("in_progress"),
		provider("completed"),
		provider("no_answer"),
		provider("failed"),
	}

	got := SummarizeProviders(providers)
	want := StatusSummary{Queued: 2, InProgress: 2, Completed: 1, Failed: 2}
	if got != want {
		t.Errorf("SummarizeProviders() = %+v, want %+v", got, want)
	}
}
