package protocol

import "errors"

// ErrCancelled is returned by Reader.Read when a shutdown signal preempts
// an in-progress read. The underlying connection is not consumed further.
var ErrCancelled = errors.New("protocol: read cancelled")

// ErrMalformed wraps every parse failure a Reader can hit. It is always
// session-fatal: the caller must close the connection without attempting
// to recover a partial request.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return "protocol: malformed input: " + e.Reason
}

// MaxDeclaredLength bounds any length field parsed off the wire (key
// length, value length, echo-message length). A client announcing more
// than this is treated as a protocol error rather than an invitation to
// allocate unbounded memory.
const MaxDeclaredLength = 64 << 20 // 64 MiB
