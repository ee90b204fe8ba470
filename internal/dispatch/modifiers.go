package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ApplyModifier transforms a resolved placeholder value. Modifier names
// are case-insensitive; a purely numeric modifier selects a list element;
// anything else passes the value through.
func ApplyModifier(mod, value string) string {
	switch strings.ToLower(strings.TrimSpace(mod)) {
	case "":
		return value
	case "h8", "hex8":
		return formatHex(value, 8)
	case "h16", "hex16":
		return formatHex(value, 16)
	case "h32", "hex32":
		return formatHex(value, 32)
	case "h64", "hex64":
		return formatHex(value, 64)
	case "#", "int", "long":
		return strconv.FormatInt(leadingInt(value), 10)
	case "ns", "nospace":
		return strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\r', '\n':
				return -1
			}
			return r
		}, value)
	case "q", "quote":
		return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
	case "gp", "gps":
		lat, lon := parseGeoPoint(value)
		return fmt.Sprintf("%.5f/%.5f", lat, lon)
	case "gplat", "lat", "latitude":
		lat, _ := parseGeoPoint(value)
		return fmt.Sprintf("%.5f", lat)
	case "gplon", "lon", "longitude":
		_, lon := parseGeoPoint(value)
		return fmt.Sprintf("%.5f", lon)
	}

	if n, err := strconv.Atoi(mod); err == nil && n >= 0 {
		return listElement(value, n)
	}
	return value
}

// parseInt reads a decimal value, or hex with an explicit 0x prefix.
// Leading zeros stay decimal.
func parseInt(s string) int64 {
	s = strings.TrimSpace(s)
	digits, base := s, 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		digits, base = s[2:], 16
	}
	if n, err := strconv.ParseInt(digits, base, 64); err == nil {
		return n
	}
	if u, err := strconv.ParseUint(digits, base, 64); err == nil {
		return int64(u)
	}
	return leadingInt(s)
}

func formatHex(value string, bits int) string {
	v := uint64(parseInt(value))
	if bits < 64 {
		v &= (uint64(1) << bits) - 1
	}
	return fmt.Sprintf("0x%0*X", bits/4, v)
}

// leadingInt parses the leading (optionally signed) decimal run of s.
func leadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseGeoPoint reads "lat/lon", "lat,lon" or "lat lon". An unparsable or
// out of range pair yields 0/0.
func parseGeoPoint(s string) (lat, lon float64) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == ',' || r == ' '
	})
	if len(parts) < 2 {
		return 0, 0
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lo, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || la < -90 || la > 90 || lo < -180 || lo > 180 {
		return 0, 0
	}
	return la, lo
}

// listElement splits value on its first non-alphanumeric character and
// returns element n.
func listElement(value string, n int) string {
	sep := strings.IndexFunc(value, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if sep < 0 {
		if n == 0 {
			return value
		}
		return ""
	}
	_, size := utf8.DecodeRuneInString(value[sep:])
	parts := strings.Split(value, value[sep:sep+size])
	if n < len(parts) {
		return parts[n]
	}
	return ""
}
