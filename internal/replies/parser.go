package replies

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// selectionPattern matches the reply instruction, e.g.
// "request 7f9c...: choose 2", "Request 7f9c... choose option 2".
var selectionPattern = regexp.MustCompile(
	`(?i)request\s+([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\s*:?\s*choose\s+(?:option\s+)?#?(\d+)`)

// ParseSelection scans an email body for a provider selection. Quoted lines
// are skipped so the instruction echoed back from the original notification
// cannot trigger a selection by itself.
func ParseSelection(text string) (uuid.UUID, int, bool) {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	m := selectionPattern.FindStringSubmatch(sb.String())
	if m == nil {
		return uuid.Nil, 0, false
	}

	requestID, err := uuid.Parse(m[1])
	if err != nil {
		return uuid.Nil, 0, false
	}
	option, err := strconv.Atoi(m[2])
	if err != nil || option <= 0 {
		return uuid.Nil, 0, false
	}
	return requestID, option, true
}
