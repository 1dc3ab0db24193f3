package goldmark_test

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/hangar"
	"github.com/fwojciec/hangar/goldmark"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stripANSI(s string) string {
	// Matches SGR, cursor movement, and other CSI sequences.
	re := regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	return re.ReplaceAllString(s, "")
}

func TestMain(m *testing.M) {
	// Force ANSI color output so styled elements produce visible escape
	// codes that we can assert against.
	lipgloss.SetColorProfile(termenv.ANSI)
	os.Exit(m.Run())
}

func TestRender(t *testing.T) {
	t.Parallel()

	theme := hangar.DefaultTheme()

	t.Run("empty input returns empty string", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", goldmark.Render("", 80, theme))
	})

	t.Run("plain paragraph", func(t *testing.T) {
		t.Parallel()
		result := goldmark.Render("N101 is serviceable.", 80, theme)
		assert.Contains(t, stripANSI(result), "N101 is serviceable.")
	})

	t.Run("heading renders content with distinct styling", func(t *testing.T) {
		t.Parallel()
		heading := goldmark.Render("# Findings", 80, theme)
		paragraph := goldmark.Render("Findings", 80, theme)
		assert.Contains(t, stripANSI(heading), "Findings")
		assert.NotEqual(t, heading, paragraph)
	})

	t.Run("emphasis and code spans keep their text", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.Render("**bold** *italic* `MATCH (a:Aircraft)` ~~old~~", 80, theme))
		assert.Contains(t, result, "bold")
		assert.Contains(t, result, "italic")
		assert.Contains(t, result, "MATCH (a:Aircraft)")
		assert.Contains(t, result, "old")
		assert.NotContains(t, result, "~~")
	})

	t.Run("fenced code block preserves content without reflow", func(t *testing.T) {
		t.Parallel()
		src := "```cypher\nMATCH (a:Aircraft)-[:HAS_SYSTEM]->(s:System) RETURN a, s\n```"
		result := stripANSI(goldmark.Render(src, 20, theme))
		assert.Contains(t, result, "cypher")
		assert.Contains(t, result, "MATCH (a:Aircraft)-[:HAS_SYSTEM]->(s:System) RETURN a, s")
	})

	t.Run("indented code block", func(t *testing.T) {
		t.Parallel()
		src := "paragraph\n\n    indented code\n    more code"
		result := stripANSI(goldmark.Render(src, 80, theme))
		assert.Contains(t, result, "indented code")
		assert.Contains(t, result, "more code")
	})

	t.Run("lists", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.Render("- one\n- two\n  - nested\n\n3. third\n4. fourth", 80, theme))
		assert.Contains(t, result, "- one")
		assert.Contains(t, result, "  - nested")
		assert.Contains(t, result, "3. third")
		assert.Contains(t, result, "4. fourth")
	})

	t.Run("list item continuation lines are indented", func(t *testing.T) {
		t.Parallel()
		src := "- this is a very long list item that should wrap and have continuation lines properly indented"
		lines := strings.Split(stripANSI(goldmark.Render(src, 30, theme)), "\n")
		assert.True(t, strings.HasPrefix(lines[0], "- "))
		for _, line := range lines[1:] {
			if strings.TrimSpace(line) != "" {
				assert.True(t, strings.HasPrefix(line, "  "), "continuation line should be indented: %q", line)
			}
		}
	})

	t.Run("paragraph wraps to width", func(t *testing.T) {
		t.Parallel()
		long := "word1 word2 word3 word4 word5 word6 word7 word8 word9 word10 word11 word12"
		result := goldmark.Render(long, 30, theme)
		assert.Contains(t, stripANSI(result), "word12")
		assert.Greater(t, len(strings.Split(result, "\n")), 1)
	})

	t.Run("link shows text and URL", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.Render("[manual](https://example.com/amm)", 80, theme))
		assert.Contains(t, result, "manual")
		assert.Contains(t, result, "example.com/amm")
	})

	t.Run("blockquote is prefixed", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.Render("> deferred defect", 80, theme))
		assert.Contains(t, result, "┃ deferred defect")
	})

	t.Run("table columns are aligned", func(t *testing.T) {
		t.Parallel()
		src := "| Tail | Status |\n|---|---|\n| N101 | AOG |\n| N20345 | In service |"
		result := stripANSI(goldmark.Render(src, 80, theme))
		lines := strings.Split(result, "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "Tail   │ Status", lines[0])
		assert.Contains(t, lines[1], "┼")
		assert.Equal(t, "N101   │ AOG", lines[2])
		assert.Equal(t, "N20345 │ In service", lines[3])
	})

	t.Run("wide table is truncated to width", func(t *testing.T) {
		t.Parallel()
		long := strings.Repeat("hydraulic pump pressure low ", 4)
		src := "| Tail | Fault |\n|---|---|\n| N101 | " + long + "|"
		result := stripANSI(goldmark.Render(src, 40, theme))
		for _, line := range strings.Split(result, "\n") {
			assert.LessOrEqual(t, lipgloss.Width(line), 40, line)
		}
		assert.Contains(t, result, "N101 │ hydraulic")
		assert.Contains(t, result, "…")
	})

	t.Run("width zero defaults to 80", func(t *testing.T) {
		t.Parallel()
		assert.Contains(t, stripANSI(goldmark.Render("hello world", 0, theme)), "hello world")
	})
}

func TestRenderAnswer(t *testing.T) {
	t.Parallel()

	theme := hangar.DefaultTheme()
	view := goldmark.AnswerView{
		Domain: "maintenance",
		Text:   "Two components were **removed**.",
		Steps: []goldmark.Step{
			{Tool: "graph___read_neo4j_cypher"},
			{Tool: "graph___get_neo4j_schema", IsError: true, ErrorKind: "unavailable"},
		},
	}

	t.Run("summary", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.RenderAnswer(view, 80, theme, false))
		assert.True(t, strings.HasPrefix(result, "[maintenance]"))
		assert.Contains(t, result, "2 tool calls, 1 failed")
		assert.Contains(t, result, "Two components were removed.")
		assert.NotContains(t, result, "incomplete")
	})

	t.Run("verbose", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.RenderAnswer(view, 80, theme, true))
		assert.Contains(t, result, "→ graph___read_neo4j_cypher\n")
		assert.Contains(t, result, "→ graph___get_neo4j_schema (unavailable)")
	})

	t.Run("degraded", func(t *testing.T) {
		t.Parallel()
		v := view
		v.Degraded = true
		result := stripANSI(goldmark.RenderAnswer(v, 80, theme, false))
		assert.True(t, strings.HasPrefix(result, "[maintenance] incomplete"))
	})

	t.Run("no steps", func(t *testing.T) {
		t.Parallel()
		result := stripANSI(goldmark.RenderAnswer(goldmark.AnswerView{Domain: "operations", Text: "On time."}, 80, theme, false))
		assert.True(t, strings.HasPrefix(result, "[operations]\n\nOn time."))
		assert.NotContains(t, result, "tool calls")
	})
}
