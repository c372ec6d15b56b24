package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unifydb/kave/internal/session"
	"github.com/unifydb/kave/internal/store"
)

// Server accepts TLS connections and spawns one goroutine per session,
// tracked by a conc.WaitGroup so Stop can wait for every in-flight
// session to drain — a panicking session handler is recovered and
// reported rather than taking the whole process down.
type Server struct {
	addr      string
	tlsConfig *tls.Config
	store     *store.Store
	log       *zap.Logger

	listener net.Listener
	wg       conc.WaitGroup

	cancel context.CancelFunc
}

// New builds a Server bound to addr. Serve does the actual bind; New
// only records configuration.
func New(addr string, tlsConfig *tls.Config, st *store.Store, log *zap.Logger) *Server {
	return &Server{addr: addr, tlsConfig: tlsConfig, store: st, log: log}
}

// Serve binds the listener and accepts connections until ctx is
// cancelled or Stop is called. It blocks for the lifetime of the server.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := tls.Listen("tcp", s.addr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.log.Info("listening", zap.String("addr", s.addr))

	go func() {
		<-runCtx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		s.wg.Go(func() {
			sess := session.New(conn, s.store, s.log)
			sess.Run(runCtx)
		})
	}
}

// Stop cancels the running server's context, closes the listener, and
// waits for every in-flight session to finish. Errors from the listener
// close and any recovered session panic are aggregated and returned
// together. Cancelling runCtx also wakes the goroutine Serve spawned to
// close the listener on external ctx cancellation, so this Close and that
// one race harmlessly — whichever loses just observes the listener is
// already closed, same as a session racing its own conn.Close (see
// session.closeQuietly).
func (s *Server) Stop() error {
	var errs error
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}
	if recovered := s.wg.WaitAndRecover(); recovered != nil {
		errs = multierr.Append(errs, recovered.AsError())
	}
	return errs
}
