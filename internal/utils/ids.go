package utils

import "strconv"

// ParseID parses a positive numeric path parameter.
func ParseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
