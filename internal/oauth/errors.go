package oauth

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

var (
	// ErrOAuthExchangeFailed means the authorization code could not be
	// turned into an access token.
	ErrOAuthExchangeFailed = errors.New("oauth code exchange failed")
	// ErrProfileFetchFailed means the current user could not be loaded
	// with the access token.
	ErrProfileFetchFailed = errors.New("profile fetch failed")
	// ErrMissingUserID means the profile carried no usable numeric id.
	ErrMissingUserID = errors.New("profile has no numeric user id")
)

// Kind separates provider answers from transport trouble.
type Kind int

const (
	// KindRejected: Discord answered, but with an error or garbage.
	KindRejected Kind = iota
	// KindUnreachable: timeout, connection failure or a 5xx.
	KindUnreachable
)

func (k Kind) String() string {
	if k == KindUnreachable {
		return "unreachable"
	}
	return "rejected"
}

// Error is returned by every Client call. It matches its Op sentinel and
// its cause with errors.Is.
type Error struct {
	Op   error
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op.Error()
	}
	return e.Op.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Op}
	}
	return []error{e.Op, e.Err}
}

// IsUnreachable reports whether err is an oauth Error caused by the
// provider being unreachable.
func IsUnreachable(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == KindUnreachable
}

func transportKind(err error) Kind {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return KindUnreachable
	}
	return KindRejected
}
