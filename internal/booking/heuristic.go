// Package booking infers whether a booking call actually ended with an
// agreed appointment. The analysis engine's structured "booking_confirmed"
// flag is unreliable, so when it is false we classify the transcript
// ourselves. The classifier is deliberately conservative: it requires two
// positive signals (an offer with a concrete slot, plus closing language)
// and the absence of any rejection language before overriding the flag.
package booking

import (
	"regexp"
	"strings"
)

// Inference is the outcome of InferConfirmation. Day and Time are
// best-effort raw tokens lifted from the transcript ("tomorrow", "9 am");
// they are only populated when the heuristic overrides the flag.
type Inference struct {
	Confirmed bool
	Day       string
	Time      string
}

var (
	dayToken = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|today|tonight|next week|this week)\b`)

	timeToken = regexp.MustCompile(`(?i)\b(\d{1,2}[:.]\d{2}|\d{1,2}\s?(?:am|pm)|\d{1,2} o'?clock|morning|afternoon|evening|noon|midday)\b`)

	offerPhrase = regexp.MustCompile(`(?i)\b(we (?:can|could) (?:come|do|be there|make|fit|send|stop by)|i (?:can|could) (?:come|do|be there|make|stop by)|available|availability|have an opening|have a slot|how about|works for (?:us|me)|(?:can|could) schedule)\b`)

	confirmationPhrase = regexp.MustCompile(`(?i)\b(confirmed|i'?ll confirm|we'?ll confirm|confirm (?:that|the|it)|sounds good|that works|see you (?:then|there|at|on|tomorrow|next)|looking forward|it'?s a deal|agreed|perfect|booked you in|put you (?:down|in))\b`)

	rejectionPhrase = regexp.MustCompile(`(?i)\b(not available|no availability|unavailable|fully booked|booked (?:up|out|solid)|can'?t (?:come|make|take|do|help|fit)|cannot (?:come|make|take|do|help|fit)|won'?t be able|will not be able|not possible|no (?:slots|openings|room)|don'?t (?:do|service|cover|handle)|do not (?:do|service|cover|handle)|not interested|have to decline|declined?|unable to)\b`)
)

// InferConfirmation decides whether the booking call confirmed an
// appointment. A true structured flag is authoritative and passes through
// untouched. Otherwise the transcript must contain an offer co-occurring
// with a day token and a time token, plus confirmation phrasing, and no
// rejection phrasing.
func InferConfirmation(confirmedFlag bool, transcript string) Inference {
	if confirmedFlag {
		return Inference{Confirmed: true}
	}

	text := strings.TrimSpace(transcript)
	if text == "" {
		return Inference{}
	}

	offerAgreement := offerPhrase.MatchString(text) &&
		dayToken.MatchString(text) &&
		timeToken.MatchString(text)

	confirmed := offerAgreement &&
		confirmationPhrase.MatchString(text) &&
		!rejectionPhrase.MatchString(text)

	if !confirmed {
		return Inference{}
	}

	return Inference{
		Confirmed: true,
		Day:       strings.ToLower(dayToken.FindString(text)),
		Time:      strings.ToLower(timeToken.FindString(text)),
	}
}
