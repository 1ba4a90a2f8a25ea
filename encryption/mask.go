package encryption

import "strings"

const maskRune = '*'

// MaskMail keeps the first character of the local part and the domain.
func MaskMail(s string) string {
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return maskAll(s)
	}
	local := []rune(s[:at])
	for i := 1; i < len(local); i++ {
		local[i] = maskRune
	}
	return string(local) + s[at:]
}

// MaskCenter3 masks three characters in the middle of s.
func MaskCenter3(s string) string {
	r := []rune(s)
	if len(r) <= 3 {
		return maskAll(s)
	}
	start := (len(r) - 3) / 2
	for i := start; i < start+3; i++ {
		r[i] = maskRune
	}
	return string(r)
}

// MaskLast6 masks the last six characters of s.
func MaskLast6(s string) string {
	r := []rune(s)
	start := len(r) - 6
	if start < 0 {
		start = 0
	}
	for i := start; i < len(r); i++ {
		r[i] = maskRune
	}
	return string(r)
}

func maskAll(s string) string {
	return strings.Repeat(string(maskRune), len([]rune(s)))
}
