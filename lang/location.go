package lang

import (
	"strconv"
	"strings"
)

// Position represents a location in source text.
type Position struct {
	Offset int // byte offset (0-based)
	Line   int // line number (1-based)
	Column int // column number (1-based, in runes)
}

// String returns "line L, col C".
func (p Position) String() string {
	return "line " + strconv.Itoa(p.Line) + ", col " + strconv.Itoa(p.Column)
}

// Location is a span over template source. Literal text has an empty Type;
// tags carry their tag type ("print", "for", ...).
//
// The tag span includes both delimiters. The code span is the trimmed text
// between the tag type and the end delimiter.
type Location struct {
	Source    string
	Type      string
	TagStart  int
	TagEnd    int
	CodeStart int
	CodeEnd   int
}

// Tag returns the full text of the tag (or literal text).
func (l *Location) Tag() string { return l.Source[l.TagStart:l.TagEnd] }

// Code returns the code inside the tag.
func (l *Location) Code() string { return l.Source[l.CodeStart:l.CodeEnd] }

// Position returns the line and column of the tag start.
func (l *Location) Position() Position {
	return positionAt(l.Source, l.TagStart)
}

// String describes the location, e.g. `<?print x?> tag at 12 (line 2, col 5)`.
func (l *Location) String() string {
	var b strings.Builder

	if l.Type == "" {
		b.WriteString("text ")
		b.WriteString(strconv.Quote(truncate(l.Tag(), 40)))
	} else {
		b.WriteString(truncate(l.Tag(), 60))
		b.WriteString(" tag")
	}

	b.WriteString(" at ")
	b.WriteString(strconv.Itoa(l.TagStart))
	b.WriteString(" (")
	b.WriteString(l.Position().String())
	b.WriteByte(')')

	return b.String()
}

func positionAt(source string, offset int) Position {
	offset = min(max(offset, 0), len(source))
	prefix := source[:offset]
	line := strings.Count(prefix, "\n") + 1
	col := len([]rune(prefix[strings.LastIndexByte(prefix, '\n')+1:])) + 1

	return Position{Offset: offset, Line: line, Column: col}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}
