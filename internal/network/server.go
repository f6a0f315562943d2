// Package network accepts catalog clients over TCP and runs one handler
// goroutine per connection.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"catalogd/internal/images"
	"catalogd/internal/logger"
	"catalogd/internal/session"
)

var ErrServerClosed = errors.New("network: server closed")

// Options tunes the listener and the per-connection protocol limits.
type Options struct {
	Addr          string
	MaxFrameBytes uint32
	MaxImageBytes uint32
	// IdleTimeout closes connections that send nothing for this long. 0 disables.
	IdleTimeout time.Duration
}

type Server struct {
	opts   Options
	worker session.Submitter
	images *images.Store

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewServer(opts Options, worker session.Submitter, imgs *images.Store) *Server {
	return &Server{
		opts:   opts,
		worker: worker,
		images: imgs,
		conns:  make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on Options.Addr and serves until ctx is cancelled
// or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It returns ErrServerClosed after a
// shutdown and any other accept error otherwise.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.closeListener() })
	defer stop()

	// Cancelling ctx only stops accepting. Handlers keep their values but not
	// the cancellation, so work already in the worker queue is answered; the
	// worker's own Stop decides when submissions end.
	connCtx := context.WithoutCancel(ctx)

	logger.Info("Catalog server listening on %s", ln.Addr())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				logger.Warn("Accept error: %v; retrying in %v", err, backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetReadBuffer(65536)
			tcpConn.SetWriteBuffer(65536)
			tcpConn.SetNoDelay(true)
		}

		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			newConnHandler(connCtx, s, conn).serve()
		}()
	}
}

// Addr is the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, unblocks idle readers and waits for every handler
// to return. A request already submitted to the worker still gets its answer
// written before the handler exits.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListener()

	s.mu.Lock()
	for c := range s.conns {
		c.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.ln != nil {
		s.ln.Close()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// armDeadline sets the idle read deadline unless the server is shutting down.
func (s *Server) armDeadline(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	if s.opts.IdleTimeout > 0 {
		c.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
	}
	return true
}
