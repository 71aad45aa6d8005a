package repl

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

// ctrlCommands are the available control-mode commands.
var ctrlCommands = []string{"help", "vars", "edit", "clear", "quit"}

// isWordBoundary reports whether r ends a completion word. Identifiers are
// ASCII letters, digits and underscores; everything else, including the
// member-access dot and "-", separates words.
func isWordBoundary(r rune) bool { return !isIdentRune(r) }

// wordBounds returns the word at the cursor and its byte boundaries within
// input. The word is empty when the cursor sits between two boundaries.
func wordBounds(input string, cursor int) (word string, start, end int) {
	cursor = min(cursor, len(input))

	start = cursor

	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:start])
		if isWordBoundary(r) {
			break
		}

		start -= size
	}

	end = cursor

	for end < len(input) {
		r, size := utf8.DecodeRuneInString(input[end:])
		if isWordBoundary(r) {
			break
		}

		end += size
	}

	return input[start:end], start, end
}

// parentPath returns the member-access chain leading up to the word at
// wordStart. For "x + user.address.ci" with the word "ci" it is
// "user.address"; for a word not preceded by a dot it is "".
func parentPath(input string, wordStart int) string {
	prefix := input[:wordStart]

	if !strings.HasSuffix(prefix, ".") {
		return ""
	}

	prefix = strings.TrimRight(prefix, ".")
	pos := len(prefix)

	for pos > 0 {
		r, size := utf8.DecodeLastRuneInString(prefix[:pos])
		if r != '.' && isWordBoundary(r) {
			break
		}

		pos -= size
	}

	path := strings.Trim(prefix[pos:], ".")

	// A leading digit makes this a number literal, not a chain.
	if path == "" || (path[0] >= '0' && path[0] <= '9') {
		return ""
	}

	return path
}

// computeMatches ranks the completion candidates for the word at the
// cursor, best first. An empty word at the top level yields nothing so that
// the hint line stays visible; after a dot it yields every member.
func (m model) computeMatches() (matches fuzzy.Matches, funcs map[string]bool, wordStart, wordEnd int) {
	input := m.input.Value()

	word, wordStart, wordEnd := wordBounds(input, m.input.Position())

	if m.mode == modeCtrl {
		if word == "" {
			return nil, nil, wordStart, wordEnd
		}

		return fuzzy.Find(word, ctrlCommands), nil, wordStart, wordEnd
	}

	var candidates []string

	funcs = make(map[string]bool)

	if parent := parentPath(input, wordStart); parent == "" {
		if word == "" {
			return nil, nil, wordStart, wordEnd
		}

		candidates = m.session.Names()

		for _, name := range candidates {
			funcs[name] = m.session.Callable(name)
		}
	} else {
		keys, methods := m.session.Members(m.ctxFunc(), parent)

		for _, name := range methods {
			funcs[name] = true
		}

		candidates = append(keys, methods...)
	}

	if len(candidates) == 0 {
		return nil, nil, wordStart, wordEnd
	}

	if word == "" {
		matches = make(fuzzy.Matches, len(candidates))
		for i, c := range candidates {
			matches[i] = fuzzy.Match{Str: c, Index: i}
		}

		return matches, funcs, wordStart, wordEnd
	}

	return fuzzy.Find(word, candidates), funcs, wordStart, wordEnd
}

// renderCandidateBar builds the single-line completion bar, cut off with an
// ellipsis to fit width. The candidate at suggIdx is shown selected while
// tab-cycling.
func renderCandidateBar(matches fuzzy.Matches, suggIdx int, tabActive bool, width int, funcs map[string]bool) string {
	if len(matches) == 0 || width <= 0 {
		return ""
	}

	const sep = "  "

	sepWidth := lipgloss.Width(sep)
	ellipsis := hintStyle.Render("...")
	ellipsisWidth := lipgloss.Width(ellipsis)

	var b strings.Builder

	used := 0

	for i, match := range matches {
		rendered := renderCandidate(match, tabActive && i == suggIdx, funcs[match.Str])

		entryWidth := lipgloss.Width(rendered)
		if i > 0 {
			entryWidth += sepWidth
		}

		last := i == len(matches)-1

		if i > 0 && used+entryWidth+ellipsisWidth > width && (!last || used+entryWidth > width) {
			b.WriteString(sep)
			b.WriteString(ellipsis)

			break
		}

		if i > 0 {
			b.WriteString(sep)
		}

		b.WriteString(rendered)

		used += entryWidth
	}

	return b.String()
}

// renderCandidate renders a candidate with its matched characters
// highlighted. Functions get a "()" suffix that is not part of the
// completion.
func renderCandidate(match fuzzy.Match, selected, function bool) string {
	base, highlight := suggestionStyle, matchStyle
	if selected {
		base, highlight = selectedStyle, selectedMatchStyle
	}

	matched := make(map[int]bool, len(match.MatchedIndexes))
	for _, idx := range match.MatchedIndexes {
		matched[idx] = true
	}

	var b strings.Builder

	for i, r := range match.Str {
		if matched[i] {
			b.WriteString(highlight.Render(string(r)))
		} else {
			b.WriteString(base.Render(string(r)))
		}
	}

	if function {
		b.WriteString(base.Render("()"))
	}

	return b.String()
}
