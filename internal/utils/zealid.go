package utils

import "time"

// zealChars is the 64 character alphabet used for zeal ids.
const zealChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789@#"

// ZealID derives a compact shareable code from the current time: the unix
// time in hundredths of a second encoded base-64 over zealChars, most
// significant digit first.  Two calls within the same 100ms quantum return
// the same string, so callers must pair this with a uniqueness check on the
// column it is written to and retry on collision.
func ZealID() string {
	num := time.Now().UnixMilli() / 100
	res := ""
	for {
		res = string(zealChars[num%64]) + res
		num /= 64
		if num == 0 {
			break
		}
	}
	return "Zeal_ID-" + res
}
