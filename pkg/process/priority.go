package process

import (
	"strings"

	"github.com/brickingsoft/errors"
)

var ErrUnknownPriority = errors.Define("unknown process priority")

// Priority is a coarse scheduling class for the current process.
type Priority int

const (
	Norm Priority = iota
	High
	Realtime
	Idle
)

// ParsePriority maps "norm", "high", "realtime" and "idle" to a Priority.
// The empty string means Norm.
func ParsePriority(s string) (p Priority, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "norm", "normal":
		p = Norm
	case "high":
		p = High
	case "realtime":
		p = Realtime
	case "idle":
		p = Idle
	default:
		err = errors.From(ErrUnknownPriority, errors.WithMeta("priority", s))
	}
	return
}

func (p Priority) String() string {
	switch p {
	case High:
		return "high"
	case Realtime:
		return "realtime"
	case Idle:
		return "idle"
	default:
		return "norm"
	}
}

func (p Priority) nice() int {
	switch p {
	case Realtime:
		return -19
	case High:
		return -15
	case Idle:
		return 15
	default:
		return 0
	}
}
