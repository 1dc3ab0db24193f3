package hangar

// Theme defines semantic color mappings for terminal rendering of answers
// using ANSI color indices (0-15). The user's terminal theme determines the
// actual RGB values.
type Theme struct {
	Domain   int // Domain badge
	ToolCall int // Tool call header
	Error    int // Error messages
	Degraded int // Caveat on degraded answers
	Muted    int // Secondary text
	CodeBg   int // Code block background
	Accent   int // Headings, links
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Domain:   4,
		ToolCall: 3,
		Error:    1,
		Degraded: 3,
		Muted:    8,
		CodeBg:   0,
		Accent:   5,
	}
}
