// Package server accepts encrypted connections and hands each one to the
// router on its own goroutine.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"chat-relay/router"
)

// Listener binds the TLS endpoint and runs the accept loop. A handshake or
// transport failure on one incoming connection never stops the loop; only
// context cancellation or a listener-level error does.
type Listener struct {
	addr      string
	tlsConfig *tls.Config
	router    *router.Router
	log       *slog.Logger
	listener  net.Listener
}

func NewListener(addr string, tlsConfig *tls.Config, r *router.Router, log *slog.Logger) *Listener {
	return &Listener{addr: addr, tlsConfig: tlsConfig, router: r, log: log}
}

// Listen binds the endpoint. It is separate from Serve so callers can learn
// the bound address (":0" in tests) before any client connects.
func (l *Listener) Listen() error {
	inner, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.addr, err)
	}
	l.listener = tls.NewListener(inner, l.tlsConfig)
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts connections until ctx is canceled, then waits for the
// per-connection goroutines to finish (cancellation closes their
// transports, so they unblock promptly).
func (l *Listener) Serve(ctx context.Context) error {
	if l.listener == nil {
		if err := l.Listen(); err != nil {
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() { _ = l.listener.Close() })
	defer stop()

	l.log.Info("Listening", "addr", l.listener.Addr().String())

	var wg sync.WaitGroup
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			// A single failed accept (e.g. a client that dies mid TLS
			// negotiation) must not take the server down.
			l.log.Warn("Accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.router.HandleConn(ctx, conn)
		}()
	}

	wg.Wait()
	return nil
}
