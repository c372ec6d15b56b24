package session

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unifydb/kave/internal/protocol"
	"github.com/unifydb/kave/internal/store"
)

// Session drives one accepted connection end to end: parse a request,
// apply it against the store, write the response, repeat until the peer
// disconnects, the stream is malformed, or ctx is cancelled by server
// shutdown.
type Session struct {
	id     string
	conn   net.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	store  *store.Store
	log    *zap.Logger
}

// New wires a Session around an accepted connection. The connection is
// expected to already be TLS-authenticated by the caller (internal/transport).
func New(conn net.Conn, st *store.Store, log *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		reader: protocol.NewReader(conn),
		writer: protocol.NewWriter(conn),
		store:  st,
		log:    log.With(zap.String("session", id), zap.String("remote", conn.RemoteAddr().String())),
	}
}

// Run processes requests until the connection ends or ctx is cancelled. It
// always closes conn before returning, regardless of outcome.
func (s *Session) Run(ctx context.Context) {
	defer s.closeQuietly()

	s.log.Info("session started")
	for {
		req, err := s.reader.Read(ctx)
		if err != nil {
			s.logSessionEnd(err)
			return
		}

		if err := s.handle(req); err != nil {
			s.log.Warn("failed to write response", zap.Error(err))
			return
		}
		if err := s.writer.Flush(); err != nil {
			s.log.Warn("failed to flush response", zap.Error(err))
			return
		}
	}
}

func (s *Session) handle(req protocol.Request) error {
	switch req.Op {
	case protocol.OpGet:
		value, ok := s.store.Get(req.Key)
		if !ok {
			return s.writer.WriteNull()
		}
		return s.writer.WriteValue(value)

	case protocol.OpSet:
		if err := s.store.Transact(store.Transaction{}.Set(req.Key, req.Value)); err != nil {
			return err
		}
		return s.writer.WriteSetAck(len(req.Value))

	case protocol.OpEcho:
		return s.writer.WriteValue(req.Msg)

	default:
		return errors.New("session: unreachable request opcode")
	}
}

func (s *Session) logSessionEnd(err error) {
	switch {
	case errors.Is(err, io.EOF):
		s.log.Info("session closed by peer")
	case errors.Is(err, protocol.ErrCancelled):
		s.log.Info("session cancelled by shutdown")
	default:
		var malformed *protocol.ErrMalformed
		if errors.As(err, &malformed) {
			s.log.Warn("malformed request, closing connection", zap.Error(err))
		} else {
			s.log.Warn("session ended with error", zap.Error(err))
		}
	}
}

func (s *Session) closeQuietly() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("error closing connection", zap.Error(err))
	}
}
