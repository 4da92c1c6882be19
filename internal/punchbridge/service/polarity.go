package service

import (
	"slices"
	"strconv"
	"strings"
)

// PunchPolarity decides whether a device status code is a check-in. The
// vendor convention (0 = check-in, anything else = check-out) is not
// guaranteed across firmware, so the set is configurable.
type PunchPolarity struct {
	checkIn []int
}

// DefaultCheckInCodes is the vendor-documented check-in status.
var DefaultCheckInCodes = []int{0}

// NewPunchPolarity treats codes as check-in and everything else as
// check-out. An empty codes falls back to DefaultCheckInCodes.
func NewPunchPolarity(codes []int) PunchPolarity {
	if len(codes) == 0 {
		codes = DefaultCheckInCodes
	}
	return PunchPolarity{checkIn: slices.Clone(codes)}
}

func (p PunchPolarity) IsCheckIn(status int) bool {
	if p.checkIn == nil {
		return slices.Contains(DefaultCheckInCodes, status)
	}
	return slices.Contains(p.checkIn, status)
}

func (p PunchPolarity) String() string {
	codes := p.checkIn
	if codes == nil {
		codes = DefaultCheckInCodes
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return "check-in=" + strings.Join(parts, ",")
}
