// Package isbn validates ISBN-10 and ISBN-13 check digits.
package isbn

import "strings"

var separators = strings.NewReplacer("-", "", " ", "")

// Strip removes hyphens and spaces.
func Strip(s string) string {
	return separators.Replace(s)
}

// Valid reports whether s, after stripping separators, is a valid ISBN-10 or
// ISBN-13. The length alone picks which checksum applies.
func Valid(s string) bool {
	s = Strip(s)
	return ValidISBN10(s) || ValidISBN13(s)
}

// ValidISBN10 checks an already stripped ISBN-10. The last character may be
// 'X' (or 'x') standing for 10.
func ValidISBN10(s string) bool {
	if len(s) != 10 {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		if !isDigit(s[i]) {
			return false
		}
		sum += (10 - i) * int(s[i]-'0')
	}

	switch last := s[9]; {
	case last == 'X' || last == 'x':
		sum += 10
	case isDigit(last):
		sum += int(last - '0')
	default:
		return false
	}

	return sum%11 == 0
}

// ValidISBN13 checks an already stripped ISBN-13.
func ValidISBN13(s string) bool {
	if len(s) != 13 {
		return false
	}
	for i := 0; i < 13; i++ {
		if !isDigit(s[i]) {
			return false
		}
	}

	sum := 0
	for i := 0; i < 12; i++ {
		d := int(s[i] - '0')
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}

	check := (10 - sum%10) % 10
	return check == int(s[12]-'0')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
