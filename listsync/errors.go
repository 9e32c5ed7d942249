package listsync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = errors.New("listsync: coordinator closed")
	// ErrNoMutator is returned by mutations on a read-only resource.
	ErrNoMutator = errors.New("listsync: resource has no mutator")
	// ErrSuperseded is returned by a fetch whose result lost to a newer fetch.
	// The returned snapshot is still the remote result for that query.
	ErrSuperseded = errors.New("listsync: fetch superseded by a newer request")
)

// ErrorKind classifies a RemoteError.
type ErrorKind int

const (
	// KindTransport covers network failures, timeouts and collaborator panics.
	KindTransport ErrorKind = iota
	// KindBusiness covers server-reported failures (validation, not found, conflict).
	KindBusiness
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBusiness:
		return "business"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const fallbackMessage = "request failed"

// RemoteError is the normalized failure of a remote list or mutation call.
// Error returns the human readable message shown to users.
type RemoteError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func transportError(err error) *RemoteError {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = fallbackMessage
	}
	return &RemoteError{Kind: KindTransport, Message: msg, Err: err}
}

func businessError(message string) *RemoteError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = fallbackMessage
	}
	return &RemoteError{Kind: KindBusiness, Message: message}
}

func panicError(r any) *RemoteError {
	return &RemoteError{Kind: KindTransport, Message: fmt.Sprintf("unexpected failure: %v", r)}
}

// IsKind reports whether err is a RemoteError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Kind == kind
}
