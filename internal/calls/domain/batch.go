package domain

// DispatchError records a per-item failure inside a batch. Item-level
// failures never abort the batch; they are collected here instead.
type DispatchError struct {
	ProviderName string `json:"providerName"`
	Phone        string `json:"phone,omitempty"`
	Reason       string `json:"reason"`
}

// BatchResult aggregates the outcome of dispatching a batch of calls.
type BatchResult struct {
	ExecutionMethod ExecutionMethod `json:"executionMethod"`
	Results         []CallResult    `json:"results"`
	Errors          []DispatchError `json:"errors,omitempty"`
}

// Requested is the total number of items the batch was asked to place.
func (b *BatchResult) Requested() int {
	return len(b.Results) + len(b.Errors)
}

// Succeeded counts calls that reached the completed status.
func (b *BatchResult) Succeeded() int {
	n := 0
	for i := range b.Results {
		if b.Results[i].Status == CallStatusCompleted {
			n++
		}
	}
	return n
}

// Failed counts calls that ended in a failure status, plus items that never
// became calls at all.
func (b *BatchResult) Failed() int {
	n := len(b.Errors)
	for i := range b.Results {
		if IsFailedStatus(b.Results[i].Status) {
			n++
		}
	}
	return n
}

// AllFailed reports whether not a single item in the batch produced a live
// or successful call. An empty batch is not considered failed.
func (b *BatchResult) AllFailed() bool {
	if b.Requested() == 0 {
		return false
	}
	for i := range b.Results {
		if !IsFailedStatus(b.Results[i].Status) {
			return false
		}
	}
	return true
}

// StatusCounts tallies results by their reported status.
func (b *BatchResult) StatusCounts() map[CallStatus]int {
	counts := make(map[CallStatus]int)
	for i := range b.Results {
		counts[b.Results[i].Status]++
	}
	return counts
}

// TotalDurationSeconds sums the talk time across the batch.
func (b *BatchResult) TotalDurationSeconds() int {
	total := 0
	for i := range b.Results {
		total += b.Results[i].DurationSeconds
	}
	return total
}

// AverageDurationSeconds is the mean talk time over results that report a
// duration. Zero when none do.
func (b *BatchResult) AverageDurationSeconds() float64 {
	total, counted := 0, 0
	for i := range b.Results {
		if b.Results[i].DurationSeconds > 0 {
			total += b.Results[i].DurationSeconds
			counted++
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(total) / float64(counted)
}
