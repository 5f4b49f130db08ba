package tcpkit

import "github.com/pkg/errors"

// Kind categorizes an error raised by the framework, independent of its textual message.
type Kind int

const (
	// KindConfiguration denotes a bad port, bad host, zero buffer size or non-positive connection cap.
	KindConfiguration Kind = iota

	// KindAlreadyRunning denotes Start() invoked while the engine is already running.
	KindAlreadyRunning

	// KindExhausted denotes a pool underflow.
	KindExhausted

	// KindDuplicateIdentity denotes a connection registry collision.
	KindDuplicateIdentity

	// KindClientNotFound denotes DisconnectClient called with an unknown identity.
	KindClientNotFound

	// KindSocket denotes a wrapped OS-reported socket failure.
	KindSocket

	// KindEndOfStream denotes a PacketStream read past the end of its buffer.
	KindEndOfStream

	// KindInvalidOperation denotes a PacketStream operation that conflicts with its read/write mode.
	KindInvalidOperation

	// KindFrameTooLarge denotes an inbound message exceeding BufferSize-headerSize.
	KindFrameTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAlreadyRunning:
		return "alreadyRunning"
	case KindExhausted:
		return "exhausted"
	case KindDuplicateIdentity:
		return "duplicateIdentity"
	case KindClientNotFound:
		return "clientNotFound"
	case KindSocket:
		return "socket"
	case KindEndOfStream:
		return "endOfStream"
	case KindInvalidOperation:
		return "invalidOperation"
	case KindFrameTooLarge:
		return "frameTooLarge"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a message and an optional cause, produced by the framework's internal collaborators.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.cause.Error()
	}

	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is(err, ErrExhausted) style matching against the sentinel errors below.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == other.Kind
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, cause: errors.New(message)}
}

func wrapError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

var (
	// ErrConfiguration is the sentinel for KindConfiguration, for use with errors.Is.
	ErrConfiguration = &Error{Kind: KindConfiguration}

	// ErrAlreadyRunning is the sentinel for KindAlreadyRunning, for use with errors.Is.
	ErrAlreadyRunning = &Error{Kind: KindAlreadyRunning}

	// ErrExhausted is the sentinel for KindExhausted, for use with errors.Is.
	ErrExhausted = &Error{Kind: KindExhausted}

	// ErrDuplicateIdentity is the sentinel for KindDuplicateIdentity, for use with errors.Is.
	ErrDuplicateIdentity = &Error{Kind: KindDuplicateIdentity}

	// ErrClientNotFound is the sentinel for KindClientNotFound, for use with errors.Is.
	ErrClientNotFound = &Error{Kind: KindClientNotFound}

	// ErrSocket is the sentinel for KindSocket, for use with errors.Is.
	ErrSocket = &Error{Kind: KindSocket}

	// ErrEndOfStream is the sentinel for KindEndOfStream, for use with errors.Is.
	ErrEndOfStream = &Error{Kind: KindEndOfStream}

	// ErrInvalidOperation is the sentinel for KindInvalidOperation, for use with errors.Is.
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation}

	// ErrFrameTooLarge is the sentinel for KindFrameTooLarge, for use with errors.Is.
	ErrFrameTooLarge = &Error{Kind: KindFrameTooLarge}
)
