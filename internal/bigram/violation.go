package bigram

import (
	"fmt"
	"sync/atomic"

	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

type state uint8

const (
	beforeFirst state = iota
	onBigram
	atEnd
	replaced
)

func (s state) String() string {
	switch s {
	case beforeFirst:
		return "before-first"
	case onBigram:
		return "on-bigram"
	case atEnd:
		return "at-end"
	case replaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Violation is the panic value raised when the cursor protocol is broken.
// It matches apperrors.ErrContractViolation under errors.Is.
type Violation struct {
	Op     string
	State  string
	Detail string
}

func (v *Violation) Error() string {
	msg := fmt.Sprintf("bigram cursor: %s called in state %s", v.Op, v.State)
	if v.Detail != "" {
		msg += ": " + v.Detail
	}
	return msg
}

func (v *Violation) Unwrap() error {
	return apperrors.ErrContractViolation
}

func violate(op string, s state, detail string) {
	panic(&Violation{Op: op, State: s.String(), Detail: detail})
}

// mustBeOn panics unless s is on a bigram.
func mustBeOn(op string, s state) {
	if s != onBigram {
		violate(op, s, "")
	}
}

// mustBeLive panics if s belongs to a cursor that handed itself over.
func mustBeLive(op string, s state) {
	if s == replaced {
		violate(op, s, "cursor was replaced by the value returned from Next or SkipTo")
	}
}

var prunes atomic.Uint64

// Prunes reports how many times a composite cursor replaced itself since
// process start.
func Prunes() uint64 {
	return prunes.Load()
}
