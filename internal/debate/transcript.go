package debate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"macp/internal/types"
)

// statementExcerptLen bounds each statement's contribution to the visible
// transcript so late-round context stays within small local-model windows.
const statementExcerptLen = 300

var citationPattern = regexp.MustCompile(`\[mem:([A-Za-z0-9_.-]+)\]`)

// ParseCitations extracts cited memory references of the form [mem:ID] from
// statement text, in order of first appearance, deduplicated.
func ParseCitations(text string) []string {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// FormatTranscript renders the visible debate context for a speaker: the
// question, every completed round, and the statements already made earlier
// in the current round. A later speaker's context therefore includes all
// earlier statements of the same round.
func FormatTranscript(question string, history []types.RoundRecord, current []types.Statement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Debate question: %s\n", question)

	for _, round := range history {
		fmt.Fprintf(&b, "\n--- Round %d ---\n", round.Index)
		writeStatements(&b, round.Statements)
		for _, r := range round.Rebuttals {
			fmt.Fprintf(&b, "%s asked %s: %s\n", r.FromID, r.TargetID, excerpt(r.Text))
		}
	}

	if len(current) > 0 {
		b.WriteString("\n--- Current round so far ---\n")
		writeStatements(&b, current)
	}
	return b.String()
}

func writeStatements(b *strings.Builder, statements []types.Statement) {
	for _, s := range statements {
		switch s.Outcome {
		case types.OutcomeOK:
			fmt.Fprintf(b, "%s: %s\n", s.SpeakerID, excerpt(s.Text))
		case types.OutcomeSilent:
			fmt.Fprintf(b, "%s: (silent)\n", s.SpeakerID)
		case types.OutcomeError:
			fmt.Fprintf(b, "%s: (unavailable)\n", s.SpeakerID)
		}
	}
}

func excerpt(text string) string {
	if len(text) <= statementExcerptLen {
		return text
	}
	// back up to a rune boundary so the cut never splits a character
	cut := statementExcerptLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
