package memory

import "fmt"

// Detail levels control how much of each memory a read tool renders.
const (
	DetailSummary  = "summary"
	DetailStandard = "standard"
	DetailFull     = "full"
)

// ParseDetailLevel normalizes a detail_level string, defaulting to standard.
func ParseDetailLevel(s string) string {
	switch s {
	case DetailSummary, DetailFull:
		return s
	default:
		return DetailStandard
	}
}

// Render returns the memory content as it should appear at a detail level:
// nothing for summary, a snippet for standard, everything for full.
func Render(content, level string, snippet int) string {
	switch level {
	case DetailSummary:
		return ""
	case DetailFull:
		return content
	default:
		return Truncate(content, snippet)
	}
}

// NavigationHint returns a one-line footer when results are capped by a limit.
// Returns an empty string when all results fit or total is 0.
func NavigationHint(showing, total int, hint string) string {
	if total <= 0 || showing >= total {
		return ""
	}
	if hint != "" {
		return fmt.Sprintf("\nShowing %d of %d. %s", showing, total, hint)
	}
	return fmt.Sprintf("\nShowing %d of %d.", showing, total)
}
