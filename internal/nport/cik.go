package nport

import "strings"

// NormalizeCIK canonicalizes a raw CIK string by trimming whitespace
// and zero-padding to 10 digits. The canonical form is the sole cache
// key. Normalization happens before validation, so "123" becomes
// "0000000123" and an already-canonical value passes through
// unchanged.
func NormalizeCIK(raw string) (string, bool) {
	cik := strings.TrimSpace(raw)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	for _, c := range cik {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return cik, true
}
