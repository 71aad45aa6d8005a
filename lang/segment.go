package lang

import (
	"iter"
	"regexp"
	"sync"
)

// Default tag delimiters.
const (
	DefaultStartDelim = "<?"
	DefaultEndDelim   = "?>"
)

// tagTypes lists every recognized tag type. Longer names sharing a prefix
// come first so the leftmost-first alternation picks them.
const tagTypes = `printx|print|code|for|if|elif|else|end|break|continue|def|return|render|note`

// tagPatterns caches compiled tag regexps by delimiter pair.
var tagPatterns sync.Map

func tagPattern(start, end string) *regexp.Regexp {
	key := start + "\x00" + end
	if re, ok := tagPatterns.Load(key); ok {
		return re.(*regexp.Regexp) //nolint:forcetypeassert
	}

	re := regexp.MustCompile(
		regexp.QuoteMeta(start) +
			`(` + tagTypes + `)\b(?s:\s*(.*?)\s*)` +
			regexp.QuoteMeta(end),
	)
	actual, _ := tagPatterns.LoadOrStore(key, re)

	return actual.(*regexp.Regexp) //nolint:forcetypeassert
}

// Segment splits source into an ordered, gapless sequence of literal text and
// tag Locations. Tags with an unknown type stay part of the literal text.
// The sequence is produced lazily.
func Segment(source, start, end string) iter.Seq[*Location] {
	if start == "" {
		start = DefaultStartDelim
	}

	if end == "" {
		end = DefaultEndDelim
	}

	re := tagPattern(start, end)

	return func(yield func(*Location) bool) {
		pos := 0

		for pos < len(source) {
			m := re.FindStringSubmatchIndex(source[pos:])
			if m == nil {
				break
			}

			tagStart, tagEnd := pos+m[0], pos+m[1]

			if tagStart > pos {
				text := &Location{
					Source:    source,
					TagStart:  pos,
					TagEnd:    tagStart,
					CodeStart: pos,
					CodeEnd:   tagStart,
				}
				if !yield(text) {
					return
				}
			}

			tag := &Location{
				Source:    source,
				Type:      source[pos+m[2] : pos+m[3]],
				TagStart:  tagStart,
				TagEnd:    tagEnd,
				CodeStart: pos + m[4],
				CodeEnd:   pos + m[5],
			}
			if !yield(tag) {
				return
			}

			pos = tagEnd
		}

		if pos < len(source) {
			yield(&Location{
				Source:    source,
				TagStart:  pos,
				TagEnd:    len(source),
				CodeStart: pos,
				CodeEnd:   len(source),
			})
		}
	}
}
