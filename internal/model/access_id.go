package model

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// accessIDSuffixLen is the number of base36 characters after the timestamp.
const accessIDSuffixLen = 6

// accessIDPattern matches identifiers produced by NewAccessID.
var accessIDPattern = regexp.MustCompile(`^access-[0-9]+-[0-9a-z]{6}$`)

// NewAccessID returns an identifier of the form access-<unix-ms>-<suffix>,
// where suffix is six random base36 characters.
func NewAccessID(now time.Time) string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8])
	suffix := strconv.FormatUint(n, 36)
	for len(suffix) < accessIDSuffixLen {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("access-%d-%s", now.UnixMilli(), suffix[len(suffix)-accessIDSuffixLen:])
}

// IsAccessID reports whether s has the shape produced by NewAccessID.
func IsAccessID(s string) bool {
	return accessIDPattern.MatchString(s)
}

// AccessIDTime extracts the capture time embedded in an access identifier.
func AccessIDTime(s string) (time.Time, error) {
	if !IsAccessID(s) {
		return time.Time{}, fmt.Errorf("malformed access id %q", s)
	}
	// "access-" prefix is 7 bytes; the timestamp runs until the next dash.
	rest := s[len("access-"):]
	ms, err := strconv.ParseInt(rest[:len(rest)-accessIDSuffixLen-1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed access id %q: %w", s, err)
	}
	return time.UnixMilli(ms), nil
}
