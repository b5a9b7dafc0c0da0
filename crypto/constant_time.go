package crypto

import "crypto/subtle"

// ConstantTimeEq compares a and b in constant time with respect to their
// contents (spec.md §4.1 "constant_time_eq"). Differing lengths are not
// constant time against length, which the spec does not require — only the
// content comparison must resist timing side channels.
func ConstantTimeEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
