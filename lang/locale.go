package lang

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// locale holds the calendar names and layouts of one supported language.
type locale struct {
	tag        language.Tag
	months     [12]string
	monthsAbbr [12]string
	days       [7]string // Sunday first, like time.Weekday
	daysAbbr   [7]string
	dateTime   string // %c
	date       string // %x
	time       string // %X
}

var locales = []locale{
	{
		tag: language.English,
		months: [12]string{"January", "February", "March", "April", "May", "June", "July",
			"August", "September", "October", "November", "December"},
		monthsAbbr: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep",
			"Oct", "Nov", "Dec"},
		days:     [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		daysAbbr: [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
		dateTime: "%a %b %d %H:%M:%S %Y",
		date:     "%m/%d/%Y",
		time:     "%H:%M:%S",
	},
	{
		tag: language.German,
		months: [12]string{"Januar", "Februar", "März", "April", "Mai", "Juni", "Juli",
			"August", "September", "Oktober", "November", "Dezember"},
		monthsAbbr: [12]string{"Jan", "Feb", "Mär", "Apr", "Mai", "Jun", "Jul", "Aug", "Sep",
			"Okt", "Nov", "Dez"},
		days:     [7]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"},
		daysAbbr: [7]string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"},
		dateTime: "%a %d %b %Y %H:%M:%S",
		date:     "%d.%m.%Y",
		time:     "%H:%M:%S",
	},
	{
		tag: language.French,
		months: [12]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet",
			"août", "septembre", "octobre", "novembre", "décembre"},
		monthsAbbr: [12]string{"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.",
			"août", "sept.", "oct.", "nov.", "déc."},
		days:     [7]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"},
		daysAbbr: [7]string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."},
		dateTime: "%a %d %b %Y %H:%M:%S",
		date:     "%d/%m/%Y",
		time:     "%H:%M:%S",
	},
	{
		tag: language.Spanish,
		months: [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
			"agosto", "septiembre", "octubre", "noviembre", "diciembre"},
		monthsAbbr: [12]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep",
			"oct", "nov", "dic"},
		days:     [7]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"},
		daysAbbr: [7]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"},
		dateTime: "%a %d %b %Y %H:%M:%S",
		date:     "%d/%m/%y",
		time:     "%H:%M:%S",
	},
	{
		tag: language.Italian,
		months: [12]string{"gennaio", "febbraio", "marzo", "aprile", "maggio", "giugno",
			"luglio", "agosto", "settembre", "ottobre", "novembre", "dicembre"},
		monthsAbbr: [12]string{"gen", "feb", "mar", "apr", "mag", "giu", "lug", "ago", "set",
			"ott", "nov", "dic"},
		days:     [7]string{"domenica", "lunedì", "martedì", "mercoledì", "giovedì", "venerdì", "sabato"},
		daysAbbr: [7]string{"dom", "lun", "mar", "mer", "gio", "ven", "sab"},
		dateTime: "%a %d %b %Y %H:%M:%S",
		date:     "%d/%m/%Y",
		time:     "%H:%M:%S",
	},
}

var localeMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = l.tag
	}

	return language.NewMatcher(tags)
}()

// resolveLocale finds the supported locale for a language name, trying the
// exact tag, then its base language, then falling back to English.
func resolveLocale(name string) *locale {
	if name == "" {
		return &locales[0]
	}

	tag, err := language.Parse(name)
	if err != nil {
		return &locales[0]
	}

	candidates := []language.Tag{tag}
	if base, conf := tag.Base(); conf != language.No {
		candidates = append(candidates, language.Make(base.String()))
	}

	for _, c := range candidates {
		if _, idx, conf := localeMatcher.Match(c); conf >= language.High {
			return &locales[idx]
		}
	}

	return &locales[0]
}

// localeArg resolves an optional lang argument.
func localeArg(v any) (*locale, error) {
	switch v := v.(type) {
	case absentArg, nil:
		return &locales[0], nil
	case string:
		return resolveLocale(v), nil
	default:
		return nil, typeError("lang", v)
	}
}

// strftime formats t with C-style % directives using the names of loc.
func strftime(t time.Time, format string, loc *locale) string {
	var b strings.Builder

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 >= len(format) {
			b.WriteByte(c)

			continue
		}

		i++

		switch format[i] {
		case 'a':
			b.WriteString(loc.daysAbbr[t.Weekday()])
		case 'A':
			b.WriteString(loc.days[t.Weekday()])
		case 'b':
			b.WriteString(loc.monthsAbbr[t.Month()-1])
		case 'B':
			b.WriteString(loc.months[t.Month()-1])
		case 'c':
			b.WriteString(strftime(t, loc.dateTime, loc))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'f':
			fmt.Fprintf(&b, "%06d", t.Nanosecond()/1000)
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'I':
			fmt.Fprintf(&b, "%02d", (t.Hour()+11)%12+1)
		case 'j':
			fmt.Fprintf(&b, "%03d", t.YearDay())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'p':
			if t.Hour() < 12 {
				b.WriteString("AM")
			} else {
				b.WriteString("PM")
			}
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'U':
			fmt.Fprintf(&b, "%02d", (t.YearDay()-1+7-int(t.Weekday()))/7)
		case 'w':
			b.WriteString(strconv.Itoa(int(t.Weekday())))
		case 'W':
			fmt.Fprintf(&b, "%02d", (t.YearDay()-1+7-(int(t.Weekday())+6)%7)/7)
		case 'x':
			b.WriteString(strftime(t, loc.date, loc))
		case 'X':
			b.WriteString(strftime(t, loc.time, loc))
		case 'y':
			fmt.Fprintf(&b, "%02d", t.Year()%100)
		case 'Y':
			b.WriteString(strconv.Itoa(t.Year()))
		case 'z':
			b.WriteString(t.Format("-0700"))
		case 'Z':
			b.WriteString(t.Format("MST"))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}

	return b.String()
}

// formatSpec is a parsed "[[fill]align][sign][#][0][width][,][.precision][type]"
// format specification.
type formatSpec struct {
	fill      rune
	align     byte
	sign      byte
	alt       bool
	width     int
	grouping  bool
	precision int
	typ       byte
}

func parseFormatSpec(s string) (formatSpec, error) {
	spec := formatSpec{fill: ' ', precision: -1}
	rest := s

	isAlign := func(c byte) bool { return strings.IndexByte("<>=^", c) >= 0 }

	if r, n := utf8.DecodeRuneInString(rest); n > 0 && n < len(rest) && isAlign(rest[n]) {
		spec.fill, spec.align, rest = r, rest[n], rest[n+1:]
	} else if rest != "" && isAlign(rest[0]) {
		spec.align, rest = rest[0], rest[1:]
	}

	if rest != "" && strings.IndexByte("+- ", rest[0]) >= 0 {
		spec.sign, rest = rest[0], rest[1:]
	}

	if strings.HasPrefix(rest, "#") {
		spec.alt, rest = true, rest[1:]
	}

	if strings.HasPrefix(rest, "0") {
		if spec.align == 0 {
			spec.fill, spec.align = '0', '='
		}

		rest = rest[1:]
	}

	digits := func() int {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}

		n, _ := strconv.Atoi(rest[:i])
		rest = rest[i:]

		return n
	}

	spec.width = digits()

	if strings.HasPrefix(rest, ",") {
		spec.grouping, rest = true, rest[1:]
	}

	if strings.HasPrefix(rest, ".") {
		rest = rest[1:]
		spec.precision = digits()
	}

	if len(rest) == 1 {
		spec.typ, rest = rest[0], ""
	}

	if rest != "" {
		return spec, ErrValue.Wrapf("invalid format specifier %q", s)
	}

	return spec, nil
}

// pad applies width, fill and alignment; sign stays left of '=' padding.
func (s formatSpec) pad(sign, body string, defAlign byte) string {
	n := s.width - utf8.RuneCountInString(sign) - utf8.RuneCountInString(body)
	if n <= 0 {
		return sign + body
	}

	fill := strings.Repeat(string(s.fill), n)

	align := s.align
	if align == 0 {
		align = defAlign
	}

	switch align {
	case '<':
		return sign + body + fill
	case '^':
		half := strings.Repeat(string(s.fill), n/2)

		return half + sign + body + strings.Repeat(string(s.fill), n-n/2)
	case '=':
		return sign + fill + body
	default:
		return fill + sign + body
	}
}

// group inserts thousands separators into the integer part of digits.
func group(digits string) string {
	intPart, frac, _ := strings.Cut(digits, ".")
	if len(intPart) <= 3 {
		return digits
	}

	var b strings.Builder

	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}

		b.WriteRune(c)
	}

	if frac != "" || strings.Contains(digits, ".") {
		b.WriteByte('.')
		b.WriteString(frac)
	}

	return b.String()
}

// formatNumber formats an int or float according to spec. With a locale,
// decimal types use its separators.
func formatNumber(v any, spec formatSpec, loc *locale) (string, error) {
	f, _ := asFloat(v)
	n, isInt := asInt(v)

	if isFloat(v) {
		isInt = false
	}

	typ := spec.typ
	if typ == 0 {
		if isInt {
			typ = 'd'
		} else {
			typ = 'r'
		}
	}

	neg := f < 0 || (isInt && n < 0)
	absF := f

	if neg {
		absF, n = -f, -n
	}

	var body string

	switch typ {
	case 'd', 'n', 'b', 'o', 'x', 'X', 'c':
		if !isInt {
			return "", ErrValue.Wrapf("unknown format code %q for float", typ)
		}

		body = formatInt(n, typ, spec, loc)
	case 'f', 'F', '%':
		prec := spec.precision
		if prec < 0 {
			prec = 6
		}

		if typ == '%' {
			absF *= 100
		}

		body = formatDecimal(absF, prec, spec.grouping, loc)

		if typ == '%' {
			body += "%"
		}
	case 'e', 'E', 'g', 'G':
		prec := spec.precision
		if prec < 0 {
			prec = 6
		}

		if typ == 'g' || typ == 'G' {
			prec = max(prec, 1)
		}

		body = strconv.FormatFloat(absF, typ, prec, 64)
	case 'r':
		if spec.precision >= 0 {
			body = strconv.FormatFloat(absF, 'g', max(spec.precision, 1), 64)
		} else {
			body = formatFloat(absF)
		}

		if spec.grouping {
			body = group(body)
		}
	default:
		return "", ErrValue.Wrapf("unknown format code %q", typ)
	}

	sign := ""

	switch {
	case neg:
		sign = "-"
	case spec.sign == '+':
		sign = "+"
	case spec.sign == ' ':
		sign = " "
	}

	return spec.pad(sign, body, '>'), nil
}

func formatInt(n int, typ byte, spec formatSpec, loc *locale) string {
	prefix := ""

	switch typ {
	case 'c':
		return string(rune(n))
	case 'b':
		prefix = "0b"
	case 'o':
		prefix = "0o"
	case 'x', 'X':
		prefix = "0x"
	case 'n':
		return message.NewPrinter(loc.tag).Sprint(number.Decimal(n))
	default:
		if loc != &locales[0] {
			var opts []number.Option
			if !spec.grouping {
				opts = append(opts, number.NoSeparator())
			}

			return message.NewPrinter(loc.tag).Sprint(number.Decimal(n, opts...))
		}

		s := strconv.Itoa(n)
		if spec.grouping {
			s = group(s)
		}

		return s
	}

	base := map[byte]int{'b': 2, 'o': 8, 'x': 16, 'X': 16}[typ]
	s := strconv.FormatInt(int64(n), base)

	if typ == 'X' {
		s, prefix = strings.ToUpper(s), "0X"
	}

	if spec.alt {
		s = prefix + s
	}

	return s
}

func formatDecimal(f float64, prec int, grouping bool, loc *locale) string {
	if loc != &locales[0] {
		opts := []number.Option{number.Scale(prec)}
		if !grouping {
			opts = append(opts, number.NoSeparator())
		}

		return message.NewPrinter(loc.tag).Sprint(number.Decimal(f, opts...))
	}

	s := strconv.FormatFloat(f, 'f', prec, 64)
	if grouping {
		s = group(s)
	}

	return s
}

// formatValue implements format(obj, fmt, lang).
func formatValue(v any, format string, loc *locale) (string, error) {
	switch v := v.(type) {
	case time.Time:
		if format == "" {
			return str(v), nil
		}

		return strftime(v, format, loc), nil
	case string:
		spec, err := parseFormatSpec(format)
		if err != nil {
			return "", err
		}

		if spec.typ != 0 && spec.typ != 's' {
			return "", ErrValue.Wrapf("unknown format code %q for str", spec.typ)
		}

		if spec.precision >= 0 && spec.precision < utf8.RuneCountInString(v) {
			v = string([]rune(v)[:spec.precision])
		}

		return spec.pad("", v, '<'), nil
	}

	if isNumber(v) {
		if b, ok := v.(bool); ok {
			v = 0
			if b {
				v = 1
			}
		}

		spec, err := parseFormatSpec(format)
		if err != nil {
			return "", err
		}

		return formatNumber(v, spec, loc)
	}

	return "", typeError("format", v)
}

func builtinFormat(_ *call, a []any) (any, error) {
	loc, err := localeArg(a[2])
	if err != nil {
		return nil, err
	}

	format, ok := or(a[1], "").(string)
	if !ok {
		return nil, typeError("format", a[1])
	}

	return formatValue(a[0], format, loc)
}
