package naming

import (
	"fmt"
	"strings"
	"time"
)

// FormatDate formats t with an LDML date pattern, as used by the settings'
// date format. Supported fields: y, yy, yyyy, M, MM, MMM, MMMM, d, dd, H, HH,
// h, hh, m, mm, s, ss, S (fraction digits), a, E, EEE, EEEE. Text between
// single quotes is literal, '' is a quote. Other characters, including
// unsupported letters, are copied.
func FormatDate(pattern string, t time.Time) string {
	var b strings.Builder
	r := []rune(pattern)
	for i := 0; i < len(r); {
		c := r[i]
		if c == '\'' {
			if i+1 < len(r) && r[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			i++
			for i < len(r) {
				if r[i] == '\'' {
					if i+1 < len(r) && r[i+1] == '\'' {
						b.WriteRune('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteRune(r[i])
				i++
			}
			continue
		}

		n := 1
		for i+n < len(r) && r[i+n] == c {
			n++
		}
		if !writeField(&b, c, n, t) {
			for j := 0; j < n; j++ {
				b.WriteRune(c)
			}
		}
		i += n
	}
	return b.String()
}

func writeField(b *strings.Builder, c rune, n int, t time.Time) bool {
	pad := func(v int) {
		fmt.Fprintf(b, "%0*d", n, v)
	}
	switch c {
	case 'y':
		if n == 2 {
			fmt.Fprintf(b, "%02d", t.Year()%100)
		} else {
			pad(t.Year())
		}
	case 'M':
		switch {
		case n >= 4:
			b.WriteString(t.Month().String())
		case n == 3:
			b.WriteString(t.Month().String()[:3])
		default:
			pad(int(t.Month()))
		}
	case 'd':
		pad(t.Day())
	case 'H':
		pad(t.Hour())
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		pad(h)
	case 'm':
		pad(t.Minute())
	case 's':
		pad(t.Second())
	case 'S':
		frac := fmt.Sprintf("%09d", t.Nanosecond())
		for n > len(frac) {
			frac += "0"
		}
		b.WriteString(frac[:n])
	case 'a':
		if t.Hour() < 12 {
			b.WriteString("AM")
		} else {
			b.WriteString("PM")
		}
	case 'E':
		if n >= 4 {
			b.WriteString(t.Weekday().String())
		} else {
			b.WriteString(t.Weekday().String()[:3])
		}
	default:
		return false
	}
	return true
}
