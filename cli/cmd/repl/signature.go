package repl

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

var (
	signatureStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	signatureNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6")).
				Bold(true)
	currentParamStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)
	signatureSeparatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// functionCall describes the call whose argument list contains the cursor.
type functionCall struct {
	name     string // callee, possibly dotted ("s.replace")
	argIndex int    // 0-based index of the argument under the cursor
	inCall   bool
}

// detectFunctionCall finds the innermost unclosed call before cursor.
// Commas inside nested parentheses, brackets, braces and string literals do
// not advance the argument index.
func detectFunctionCall(input string, cursor int) functionCall {
	cursor = min(cursor, len(input))

	open := -1
	depth := 0

	for i := cursor; i > 0; {
		r, size := utf8.DecodeLastRuneInString(input[:i])
		i -= size

		switch r {
		case ')', ']', '}':
			depth++
		case '(', '[', '{':
			if depth > 0 {
				depth--

				continue
			}

			if r == '(' {
				open, i = i, 0
			}
		}
	}

	if open < 0 {
		return functionCall{}
	}

	nameStart := open
	for nameStart > 0 {
		r, size := utf8.DecodeLastRuneInString(input[:nameStart])
		if r != '.' && !isIdentRune(r) {
			break
		}

		nameStart -= size
	}

	name := strings.Trim(input[nameStart:open], ".")
	if name == "" {
		return functionCall{}
	}

	return functionCall{
		name:     name,
		argIndex: countArgs(input[open+1 : cursor]),
		inCall:   true,
	}
}

// countArgs returns the number of top-level commas in args.
func countArgs(args string) int {
	var (
		n     int
		depth int
		quote rune
		esc   bool
	)

	for _, r := range args {
		switch {
		case esc:
			esc = false
		case quote != 0:
			switch r {
			case '\\':
				esc = true
			case quote:
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			depth--
		case r == ',' && depth == 0:
			n++
		}
	}

	return n
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// renderSignatureHint renders "name(p1, p2=, *rest)" with the parameter at
// argIndex highlighted. A variadic parameter stays highlighted for every
// argument after it; "**kwargs" is never highlighted by position.
func renderSignatureHint(name string, params []string, argIndex int) string {
	var b strings.Builder

	b.WriteString(signatureNameStyle.Render(name))
	b.WriteString(signatureStyle.Render("("))

	for i, param := range params {
		if i > 0 {
			b.WriteString(signatureSeparatorStyle.Render(", "))
		}

		if isCurrentParam(param, i, argIndex) {
			b.WriteString(currentParamStyle.Render(param))
		} else {
			b.WriteString(signatureStyle.Render(param))
		}
	}

	b.WriteString(signatureStyle.Render(")"))

	return b.String()
}

// isCurrentParam reports whether param, the i-th parameter, receives the
// argument at argIndex.
func isCurrentParam(param string, i, argIndex int) bool {
	if strings.HasPrefix(param, "**") {
		return false
	}

	if strings.HasPrefix(param, "*") {
		return argIndex >= i
	}

	return argIndex == i
}
