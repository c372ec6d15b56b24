package protocol

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"
)

type state uint8

const (
	stateStart state = iota
	stateReadOp
	stateReadKeyLen
	stateReadKey
	stateReadEcho
	stateReadValueLen
	stateReadValue
	stateDone
)

// Reader is a resumable, streaming parser for the wire protocol described
// in SPEC_FULL.md §4.1–§4.2. One Reader is owned by exactly one session; it
// is not safe for concurrent use. Read blocks until a full request has been
// framed, the peer closes cleanly (io.EOF), or ctx is cancelled
// (ErrCancelled) — whichever happens first.
//
// Between calls, Reader.cur holds exactly the bytes that arrived after the
// most recent request's payload and have not yet been consumed — that
// request's own terminator included, which the next Read's stateStart
// skips before parsing an opcode. Within a single Read call,
// whenever a state runs out of buffered bytes, the as-yet-unconsumed tail
// r.cur[ptr:] is snapshotted into r.residual immediately before the fill
// that will consume it — never earlier — so a later state in the same
// call can keep advancing ptr past bytes a prior state already stashed
// without the stash going stale.
type Reader struct {
	src      io.Reader
	cur      []byte
	residual []byte
	fresh    bool
}

// NewReader constructs a Reader over src, a freshly accepted connection's
// read half (or any io.Reader — tests use an in-memory one to exercise
// chunking invariance).
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, fresh: true}
}

// fill clears r.cur, issues one cancellable underlying Read, and prepends
// r.residual to the result — the caller is responsible for having just
// snapshotted the true unconsumed tail into r.residual before calling
// fill, so this never sees a stale stash. It never grows r.cur's backing
// array across calls — each fill starts from a pooled DefaultBufSize
// chunk, so the reader's working set can't ratchet upward from repeated
// residual prepending (SPEC_FULL.md §5 resource bounds).
func (r *Reader) fill(ctx context.Context) error {
	chunk := getScratchBuf()
	if cap(chunk) < DefaultBufSize {
		chunk = make([]byte, DefaultBufSize)
	} else {
		chunk = chunk[:DefaultBufSize]
	}

	n, err := cancellableFill(ctx, r.src, chunk, putScratchBuf)
	if err == ErrCancelled {
		// chunk is still owned by the abandoned Read; cancellableFill
		// hands it back to the pool itself once that Read actually
		// returns, never here, so a concurrent session can't be handed
		// the same backing array while it's still being written into.
		return err
	}

	switch {
	case n > 0 && len(r.residual) > 0:
		r.cur = append(r.residual, chunk[:n]...)
		r.residual = nil
	case n > 0:
		r.cur = append(r.cur[:0], chunk[:n]...)
	case len(r.residual) > 0:
		r.cur = r.residual
		r.residual = nil
	default:
		r.cur = r.cur[:0]
	}

	putScratchBuf(chunk)
	return err
}

// Read consumes bytes from the underlying source until a full request is
// framed. It returns (Request, nil) on success, (Request{}, io.EOF) when
// the peer closed cleanly, (Request{}, ErrCancelled) when a shutdown
// signal preempted the read, or (Request{}, *ErrMalformed) on a protocol
// violation — all three of the latter are session-fatal; the caller must
// not call Read again.
func (r *Reader) Read(ctx context.Context) (Request, error) {
	st := stateStart
	op := OpGet
	betweenColons := false
	needsRead := r.fresh
	ptr := 0

	var keyLenBuf []byte
	keyLen := 0
	var key []byte

	var echo []byte

	var valueLenBuf []byte
	valueLen := 0
	var value []byte

	eof := false

	for {
		if needsRead {
			// Snapshot whatever ptr hasn't consumed yet, right now — not
			// earlier — so a stash taken by one state (e.g. stateStart's
			// post-terminator drain) can't outlive further consumption of
			// those same bytes by later states (e.g. stateReadKey/
			// stateReadValue) before a fill is actually needed.
			if ptr < len(r.cur) {
				r.residual = append(r.residual[:0], r.cur[ptr:]...)
			} else {
				r.residual = r.residual[:0]
			}
			switch err := r.fill(ctx); {
			case err == nil:
				// bytes available, fall through to the state switch
			case err == ErrCancelled:
				return Request{}, ErrCancelled
			case err == io.EOF:
				if len(r.cur) == 0 {
					return Request{}, io.EOF
				}
				// reader returned a final chunk alongside EOF; consume it
				// before reporting EndOfStream on the next empty fill.
				eof = true
			default:
				return Request{}, err
			}
			ptr = 0
			needsRead = false
		}

		switch st {
		case stateStart:
			if r.fresh {
				r.fresh = false
				st = stateReadOp
				continue
			}
			drained := false
			for ptr < len(r.cur) {
				if r.cur[ptr] == '\n' {
					ptr++
					st = stateReadOp
					drained = true
					break
				}
				ptr++
			}
			if !drained {
				needsRead = true
			}

		case stateReadOp:
			end := ptr + MinBufSize
			if end > len(r.cur) {
				if eof {
					return Request{}, &ErrMalformed{Reason: "stream ended before a full opcode token was available"}
				}
				needsRead = true
				continue
			}
			switch string(r.cur[ptr:end]) {
			case "GET:":
				op = OpGet
				ptr += 3
			case "SET:":
				op = OpSet
				ptr += 3
			case "ECHO":
				op = OpEcho
				ptr += 4
			default:
				return Request{}, &ErrMalformed{Reason: fmt.Sprintf("unknown opcode %q", r.cur[ptr:end])}
			}
			st = stateReadKeyLen

		case stateReadKeyLen:
			consumed := false
			for ptr < len(r.cur) {
				b := r.cur[ptr]
				if !betweenColons {
					if b != ':' {
						return Request{}, &ErrMalformed{Reason: fmt.Sprintf("expected ':' after opcode, found %q", b)}
					}
					betweenColons = true
					ptr++
					continue
				}
				if b == ':' {
					betweenColons = false
					ptr++
					n, err := parseLength(keyLenBuf)
					if err != nil {
						return Request{}, err
					}
					keyLen = n
					if op == OpEcho {
						st = stateReadEcho
					} else {
						st = stateReadKey
					}
					consumed = true
					break
				}
				keyLenBuf = append(keyLenBuf, b)
				ptr++
			}
			if !consumed {
				needsRead = true
			}

		case stateReadEcho:
			need := keyLen - len(echo)
			take := min(need, len(r.cur)-ptr)
			echo = append(echo, r.cur[ptr:ptr+take]...)
			ptr += take
			if len(echo) >= keyLen {
				st = stateDone
			} else {
				needsRead = true
			}

		case stateReadKey:
			need := keyLen - len(key)
			take := min(need, len(r.cur)-ptr)
			key = append(key, r.cur[ptr:ptr+take]...)
			ptr += take
			if len(key) >= keyLen {
				if op == OpGet {
					st = stateDone
				} else {
					st = stateReadValueLen
				}
			} else {
				needsRead = true
			}

		case stateReadValueLen:
			consumed := false
			for ptr < len(r.cur) {
				b := r.cur[ptr]
				if !betweenColons {
					if b != ':' {
						return Request{}, &ErrMalformed{Reason: fmt.Sprintf("expected ':' before value length, found %q", b)}
					}
					betweenColons = true
					ptr++
					continue
				}
				if b == ':' {
					betweenColons = false
					ptr++
					n, err := parseLength(valueLenBuf)
					if err != nil {
						return Request{}, err
					}
					valueLen = n
					st = stateReadValue
					consumed = true
					break
				}
				valueLenBuf = append(valueLenBuf, b)
				ptr++
			}
			if !consumed {
				needsRead = true
			}

		case stateReadValue:
			need := valueLen - len(value)
			take := min(need, len(r.cur)-ptr)
			value = append(value, r.cur[ptr:ptr+take]...)
			ptr += take
			if len(value) >= valueLen {
				st = stateDone
			} else {
				needsRead = true
			}

		case stateDone:
			// Trim everything up to ptr out of r.cur so the next Read call's
			// stateStart scan (which always starts at ptr 0) begins exactly
			// where this request's payload ended, rather than re-scanning
			// already-consumed bytes from the front of the buffer. Without
			// this, a key or value containing an embedded '\n' byte would
			// make the next call's residual-skip stop at that embedded byte
			// instead of the real terminator.
			r.cur = r.cur[ptr:]
			switch op {
			case OpEcho:
				return Request{Op: OpEcho, Msg: echo}, nil
			case OpGet:
				if !utf8.Valid(key) {
					return Request{}, &ErrMalformed{Reason: "key is not valid UTF-8"}
				}
				return Request{Op: OpGet, Key: string(key)}, nil
			case OpSet:
				if !utf8.Valid(key) {
					return Request{}, &ErrMalformed{Reason: "key is not valid UTF-8"}
				}
				return Request{Op: OpSet, Key: string(key), Value: value}, nil
			}
		}
	}
}

// parseLength parses a run of decimal ASCII digits into a bounded int,
// rejecting empty runs, non-digit bytes, and declared lengths over
// MaxDeclaredLength.
func parseLength(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, &ErrMalformed{Reason: "empty length field"}
	}
	n := 0
	for _, b := range buf {
		if b < '0' || b > '9' {
			return 0, &ErrMalformed{Reason: fmt.Sprintf("non-digit byte %q in length field", b)}
		}
		n = n*10 + int(b-'0')
		if n > MaxDeclaredLength {
			return 0, &ErrMalformed{Reason: "declared length exceeds maximum"}
		}
	}
	return n, nil
}
