// internal/app/system/joincode/joincode.go

// Package joincode generates the short human-typeable codes used to
// join custom groups.
package joincode

import "crypto/rand"

// Length of generated join codes.
const Length = 6

// alphabet omits 0/O/1/I to keep codes unambiguous when read aloud.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// New returns a random join code.
func New() string {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic("joincode: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// Valid reports whether s has the shape of a join code. It does not
// consult the database; callers still resolve the code to a group.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, c := range s {
		ok := false
		for _, a := range alphabet {
			if c == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
