package gate

import (
	"fmt"
	"strings"
)

// Decision is the answer to "clear associated configuration and metadata?".
type Decision int

const (
	Undecided Decision = iota
	KeepMetadata
	ClearMetadata
)

// DefaultDecision is what an unanswered request resolves to unless
// configured otherwise.
const DefaultDecision = ClearMetadata

func (d Decision) String() string {
	switch d {
	case Undecided:
		return "undecided"
	case KeepMetadata:
		return "keep"
	case ClearMetadata:
		return "clear"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Arg is the trailing argument uninstall scripts expect. Anything but an
// explicit clear keeps the metadata.
func (d Decision) Arg() string {
	if d == ClearMetadata {
		return "yes"
	}
	return "no"
}

// ParseDecision reads a typed or transcribed answer. Spoken answers tend to
// carry filler ("yes please"), so it looks for the keyword anywhere; "no"
// wins when both appear.
func ParseDecision(s string) (Decision, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "y", "yes", "clear":
		return ClearMetadata, true
	case "n", "no", "keep":
		return KeepMetadata, true
	}

	words := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	var sawYes bool
	for _, w := range words {
		switch w {
		case "no", "keep", "nope":
			return KeepMetadata, true
		case "yes", "clear", "yeah", "yep":
			sawYes = true
		}
	}
	if sawYes {
		return ClearMetadata, true
	}
	return Undecided, false
}
