package dispatch

import "sync/atomic"

// testNumberRing hands out configured test numbers round-robin so a batch
// dialed outside production spreads across the available test lines.
type testNumberRing struct {
	numbers []string
	next    atomic.Uint64
}

func newTestNumberRing(numbers []string) *testNumberRing {
	return &testNumberRing{numbers: numbers}
}

func (r *testNumberRing) active() bool {
	return len(r.numbers) > 0
}

func (r *testNumberRing) take() string {
	idx := r.next.Add(1) - 1
	return r.numbers[idx%uint64(len(r.numbers))]
}
