package ledger

import (
	"errors"
	"fmt"

	"github.com/mcclellann/fredCredit/pkg/store"
)

// Kind classifies ledger errors so callers can translate them without
// matching on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindPaymentNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation"
	case KindPaymentNotAllowed:
		return "payment not allowed"
	default:
		return "internal"
	}
}

// Error is a classified ledger failure. Msg names the violated rule.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func paymentNotAllowed(format string, args ...any) error {
	return &Error{Kind: KindPaymentNotAllowed, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of err. Unclassified errors are KindInternal,
// except a bare store.ErrNotFound which is KindNotFound.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, store.ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}
