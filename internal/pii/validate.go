package pii

import (
	"strings"
	"unicode"
)

// ssnContextWindow is how many characters around a candidate SSN are
// examined for date-like context.
const ssnContextWindow = 24

// dateKeywords near a nine-digit candidate usually mean it is a date or
// document number, not an SSN.
var dateKeywords = []string{
	"date", "born", "birth", "dob", "issued", "expires",
	"expiration", "effective", "since",
}

// digitsOf strips everything but digits from a candidate value.
func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validLuhn reports whether the candidate passes the Luhn checksum. Card
// numbers outside 13-19 digits are rejected outright.
func validLuhn(candidate string) bool {
	digits := digitsOf(candidate)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}

	return sum%10 == 0
}

// validSSNStructure checks the structural constraints of an SSN: the area
// cannot be 000, 666 or 900-999, the group cannot be 00 and the serial
// cannot be 0000.
func validSSNStructure(digits string) bool {
	if len(digits) != 9 {
		return false
	}

	area := digits[0:3]
	group := digits[3:5]
	serial := digits[5:9]

	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" {
		return false
	}
	if serial == "0000" {
		return false
	}

	return true
}

// hasDateContext reports whether the text surrounding span [start,end)
// contains a date keyword, which suppresses SSN candidates that are more
// likely dates or reference numbers.
func hasDateContext(text string, start, end int) bool {
	lo := start - ssnContextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + ssnContextWindow
	if hi > len(text) {
		hi = len(text)
	}

	window := strings.ToLower(text[lo:hi])
	for _, kw := range dateKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}
