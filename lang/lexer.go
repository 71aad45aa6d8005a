package lang

import (
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenEnd     tokenKind = iota // end of code
	tokenPunct                    // operator or delimiter
	tokenKeyword                  // reserved word
	tokenName                     // identifier
	tokenConst                    // literal value
)

type token struct {
	kind  tokenKind
	text  string // source text of the token
	value any    // literal value for tokenConst
	start int    // absolute offset in the template source
	end   int
}

func (t token) String() string {
	if t.kind == tokenEnd {
		return "end of code"
	}

	return strconv.Quote(t.text)
}

var keywords = map[string]bool{
	"in": true, "not": true, "or": true, "and": true, "del": true,
	"for": true, "if": true,
}

// punctuation is ordered longest first.
var punctuation = []string{
	"//=",
	"==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "//", "**",
	"(", ")", "[", "]", "{", "}", ".", ",", ":", "=", "<", ">",
	"+", "-", "*", "/", "%",
}

var (
	reName  = regexp.MustCompile(`\A[a-zA-Z_][a-zA-Z0-9_]*`)
	reFloat = regexp.MustCompile(`\A(?:\d+\.\d*(?:[eE][+-]?\d+)?|\d+[eE][+-]?\d+)`)
	reHex   = regexp.MustCompile(`\A0[xX][0-9a-fA-F]+`)
	reOct   = regexp.MustCompile(`\A0[oO][0-7]+`)
	reBin   = regexp.MustCompile(`\A0[bB][01]+`)
	reInt   = regexp.MustCompile(`\A\d+`)
	reColor = regexp.MustCompile(`\A#[0-9a-fA-F]+`)
	reDate  = regexp.MustCompile(
		`\A@(\d{4})-(\d{2})-(\d{2})(?:T(?:(\d{2}):(\d{2})(?::(\d{2})(?:\.(\d{1,6}))?)?)?)?`,
	)
)

// tokenize lexes the code part of a tag.
func tokenize(loc *Location) ([]token, error) {
	code := loc.Code()
	base := loc.CodeStart

	var tokens []token

	for pos := 0; pos < len(code); {
		c := code[pos]

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			pos++

			continue
		}

		rest := code[pos:]
		tok := token{start: base + pos}

		switch {
		case c == '@':
			m := reDate.FindStringSubmatch(rest)
			if m == nil {
				return nil, lexError(loc, base+pos, "invalid date literal")
			}

			t, err := parseDateLiteral(m)
			if err != nil {
				return nil, lexError(loc, base+pos, err.Error())
			}

			tok.kind, tok.text, tok.value = tokenConst, m[0], t

		case c == '#':
			m := reColor.FindString(rest)

			col, ok := parseColor(m)
			if !ok {
				return nil, lexError(loc, base+pos, "invalid color literal")
			}

			tok.kind, tok.text, tok.value = tokenConst, m, col

		case c == '\'' || c == '"':
			s, n, err := scanString(rest)
			if err != nil {
				return nil, lexError(loc, base+pos, err.Error())
			}

			tok.kind, tok.text, tok.value = tokenConst, rest[:n], s

		case c >= '0' && c <= '9':
			var err error

			tok.kind = tokenConst
			tok.text, tok.value, err = scanNumber(rest)

			if err != nil {
				return nil, lexError(loc, base+pos, err.Error())
			}

		case c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z'):
			name := reName.FindString(rest)
			tok.text = name

			switch {
			case name == "None":
				tok.kind, tok.value = tokenConst, nil
			case name == "True":
				tok.kind, tok.value = tokenConst, true
			case name == "False":
				tok.kind, tok.value = tokenConst, false
			case keywords[name]:
				tok.kind = tokenKeyword
			default:
				tok.kind = tokenName
			}

		default:
			for _, p := range punctuation {
				if strings.HasPrefix(rest, p) {
					tok.kind, tok.text = tokenPunct, p

					break
				}
			}

			if tok.kind != tokenPunct {
				r, _ := utf8.DecodeRuneInString(rest)

				return nil, lexError(loc, base+pos,
					"unmatched input "+strconv.QuoteRune(r))
			}
		}

		pos += len(tok.text)
		tok.end = base + pos
		tokens = append(tokens, tok)
	}

	return tokens, nil
}

func lexError(loc *Location, offset int, msg string) error {
	pos := positionAt(loc.Source, offset)

	return ErrLexical.Wrapf("%s at %d (%s)", msg, offset, pos).
		With(slog.Int("offset", offset))
}

func scanNumber(s string) (string, any, error) {
	if m := reFloat.FindString(s); m != "" {
		f, err := strconv.ParseFloat(m, 64)

		return m, f, err
	}

	for _, re := range []*regexp.Regexp{reHex, reOct, reBin} {
		if m := re.FindString(s); m != "" {
			n, err := strconv.ParseInt(m, 0, 64)

			return m, int(n), err
		}
	}

	m := reInt.FindString(s)
	n, err := strconv.ParseInt(m, 10, 64)

	return m, int(n), err
}

var errUnterminatedString = errors.New("unterminated string")

var simpleEscapes = map[byte]byte{
	'\\': '\\', '\'': '\'', '"': '"', 'a': '\a', 'b': '\b', 'f': '\f',
	'n': '\n', 'r': '\r', 't': '\t', 'v': '\v', 'e': 0x1b,
}

var hexEscapes = map[byte]int{'x': 2, 'u': 4, 'U': 8}

// scanString scans a quoted string literal at the start of s and returns the
// unescaped value and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	quote := s[0]

	var b strings.Builder

	for i := 1; i < len(s); {
		c := s[i]

		switch {
		case c == quote:
			return b.String(), i + 1, nil

		case c == '\\':
			if i+1 >= len(s) {
				return "", 0, errUnterminatedString
			}

			n := escape(&b, s[i+1:])
			i += 1 + n

		default:
			b.WriteByte(c)
			i++
		}
	}

	return "", 0, errUnterminatedString
}

// escape writes the escape sequence at the start of s (after the backslash)
// and returns the number of bytes consumed.
func escape(b *strings.Builder, s string) int {
	if r, ok := simpleEscapes[s[0]]; ok {
		b.WriteByte(r)

		return 1
	}

	width := hexEscapes[s[0]]
	if width > 0 && len(s) > width {
		if n, err := strconv.ParseUint(s[1:1+width], 16, 32); err == nil {
			b.WriteRune(rune(n))

			return 1 + width
		}
	}

	// Unknown escapes are kept verbatim.
	b.WriteByte('\\')
	b.WriteByte(s[0])

	return 1
}

func parseDateLiteral(m []string) (time.Time, error) {
	num := func(s string) int {
		n, _ := strconv.Atoi(s)

		return n
	}

	var micro int

	if m[7] != "" {
		micro = num((m[7] + "000000")[:6])
	}

	t := time.Date(
		num(m[1]), time.Month(num(m[2])), num(m[3]),
		num(m[4]), num(m[5]), num(m[6]), micro*1000, time.UTC,
	)

	if t.Month() != time.Month(num(m[2])) || t.Day() != num(m[3]) {
		return time.Time{}, NewError("day out of range for month")
	}

	return t, nil
}
