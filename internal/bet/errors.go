package bet

import (
	"errors"
	"strings"
)

// Taxonomia de erros do sync layer. Use errors.Is(err, bet.ErrInvalidState) etc.
var (
	ErrPreconditionUnmet = errors.New("precondition unmet")
	ErrInvalidState      = errors.New("invalid state")
	ErrRemoteRejected    = errors.New("remote rejected")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("unavailable")
	ErrInvalidSeed       = errors.New("invalid seed")
)

var kinds = []error{
	ErrPreconditionUnmet, ErrInvalidState, ErrRemoteRejected,
	ErrOracleUnavailable, ErrNotFound, ErrUnavailable, ErrInvalidSeed,
}

// Error carrega a operação, o tipo da taxonomia e o motivo (ex.: log de rejeição do programa)
type Error struct {
	Op     string
	Kind   error
	Reason string
	Err    error
}

// NewError monta um *Error; err pode ser nil
func NewError(op string, kind error, reason string, err error) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

// KindOf retorna o tipo da taxonomia contido em err, ou nil se não houver
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
