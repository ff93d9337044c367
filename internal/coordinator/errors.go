package coordinator

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind enumerates the error kinds from §7.
type Kind int

const (
	Internal Kind = iota
	BadAuth
	NotFound
	AlreadyAttached
	ReadOnly
	ProtocolError
	ShellGone
	Overloaded
)

func (k Kind) String() string {
	switch k {
	case BadAuth:
		return "BadAuth"
	case NotFound:
		return "NotFound"
	case AlreadyAttached:
		return "AlreadyAttached"
	case ReadOnly:
		return "ReadOnly"
	case ProtocolError:
		return "ProtocolError"
	case ShellGone:
		return "ShellGone"
	case Overloaded:
		return "Overloaded"
	default:
		return "Internal"
	}
}

// Error is a coordinator-level error carrying a Kind so callers at the
// transport boundary (gRPC status, WebSocket close code) can map it
// without string-matching.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// GRPCStatus lets grpc-go report an Error returned from an RPC handler with
// the status code GRPCCode maps its Kind to.
func (e *Error) GRPCStatus() *status.Status { return status.New(e.Kind.GRPCCode(), e.Msg) }

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// GRPCCode maps a Kind to the nearest gRPC status code for the host
// channel, per §7.
func (k Kind) GRPCCode() codes.Code {
	switch k {
	case BadAuth:
		return codes.Unauthenticated
	case NotFound:
		return codes.NotFound
	case AlreadyAttached:
		return codes.AlreadyExists
	case ReadOnly:
		return codes.PermissionDenied
	case ProtocolError:
		return codes.InvalidArgument
	case ShellGone:
		return codes.FailedPrecondition
	case Overloaded:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// Terminal reports whether a host should stop retrying and exit, per §7
// ("terminal errors (NotFound, BadAuth) cause the host to exit").
func (k Kind) Terminal() bool {
	return k == NotFound || k == BadAuth
}
