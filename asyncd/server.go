/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package asyncd

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// connEvent is what a connection's reader goroutine (and, for INIT, the
// accept path) posts to the
// server's self-notification channel for the loop goroutine to pick up.
// This is the channel side of "one server owns one loop": every other
// goroutine only ever produces connEvents, and only the loop consumes them.
type connEvent struct {
	conn  *Conn
	event Event
	err   error
}

// Server is the container described in spec §2: an options map, a hook
// chain, a listener, and the single event loop that ties them together.
// The zero value is not ready to use; call New.
type Server struct {
	mu      sync.RWMutex
	options map[string]string

	logger *logrus.Logger
	stats  *Stats
	hooks  hookChain

	listener  net.Listener
	tlsConfig *tls.Config

	notify chan connEvent

	connsMu sync.Mutex
	conns   map[*Conn]struct{}

	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc

	started bool
}

// New returns a Server with no hooks registered and logrus.StandardLogger
// as its default logger. Register hooks and set options, then call Start.
func New() *Server {
	return &Server{
		options: make(map[string]string),
		logger:  logrus.StandardLogger(),
		stats:   NewStats(),
		conns:   make(map[*Conn]struct{}),
	}
}

// SetLogger replaces the server's logger. Must be called before Start.
func (s *Server) SetLogger(l *logrus.Logger) { s.logger = l }

// Stats returns the server's stats registry.
func (s *Server) Stats() *Stats { return s.stats }

// Addr returns the listener's bound address. Only meaningful after Start
// has bound the listener — useful when server.port was left as "0" and
// the OS picked an ephemeral port, as tests do.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// RegisterHook adds fn to the end of the hook chain, matching every
// method (ad_server_register_hook).
func (s *Server) RegisterHook(name string, fn HookFunc) {
	s.hooks.register(Hook{Name: name, Func: fn})
}

// RegisterHookOnMethod adds fn to the end of the hook chain, restricted to
// connections whose current Method() equals method
// (ad_server_register_hook_on_method).
func (s *Server) RegisterHookOnMethod(name, method string, fn HookFunc) {
	s.hooks.register(Hook{Name: name, Method: method, Func: fn})
}

// Start applies default options, resolves the bind address, optionally
// builds a TLS context, binds the listener, and runs the event loop. If
// server.thread=1 the loop runs on a spawned goroutine and Start returns
// immediately; otherwise Start blocks until Stop is called or a fatal
// error occurs.
func (s *Server) Start() error {
	s.applyDefaults()

	addr, err := s.resolveAddr()
	if err != nil {
		return configError("resolveAddr", err)
	}

	if s.GetOption(OptEnableSSL) == "1" {
		cert := s.GetOption(OptSSLCert)
		key := s.GetOption(OptSSLKey)
		tlsCert, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return configError("LoadX509KeyPair", err)
		}
		s.tlsConfig = &tls.Config{Certificates: []tls.Certificate{tlsCert}}
	}

	network := "tcp"
	if strings.HasPrefix(addr, "/") {
		network = "unix"
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return configError("Listen", err)
	}
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		ln = tcpKeepAliveListener{tcpLn}
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.notify = make(chan connEvent, 256)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	group, groupCtx := errgroup.WithContext(ctx)
	s.group = group
	s.groupCtx = groupCtx

	group.Go(func() error { return s.acceptLoop(groupCtx) })
	group.Go(func() error { return s.dispatchLoop(groupCtx) })

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	if s.GetOption(OptThread) == "1" {
		go func() {
			if err := s.group.Wait(); err != nil && !errors.Is(err, ErrServerClosed) {
				s.logger.WithError(err).Error("asyncd server exited")
			}
		}()
		return nil
	}
	return s.Wait()
}

// Wait blocks until the loop exits (via Stop or a fatal error) and
// returns the first such error, or nil on a clean shutdown.
func (s *Server) Wait() error {
	err := s.group.Wait()
	if errors.Is(err, ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop cancels the loop's context (the Go equivalent of writing to the
// self-notification channel the C original uses) and closes the listener.
// In-flight hook calls complete; the loop exits at the next event; new
// accepts are refused immediately.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()
	if listener != nil {
		listener.Close()
	}

	s.connsMu.Lock()
	for c := range s.conns {
		c.close("shutdown")
	}
	s.connsMu.Unlock()

	if s.GetOption(OptFreeOnStop) == "1" {
		s.logger.Debug("asyncd server freed after stop")
	}
	return nil
}

// resolveAddr implements spec §6's bind-address rule: a value starting
// with "/" is a Unix socket path, otherwise it's a host (IPv4 or an IPv6
// literal — net.JoinHostPort brackets it either way) combined with
// server.port.
func (s *Server) resolveAddr() (string, error) {
	addr := s.GetOption(OptAddr)
	if strings.HasPrefix(addr, "/") {
		return addr, nil
	}
	port := s.GetOption(OptPort)
	if _, err := strconv.Atoi(port); err != nil {
		return "", errors.Wrapf(err, "invalid %s %q", OptPort, port)
	}
	return net.JoinHostPort(addr, port), nil
}

func (s *Server) trackConn(c *Conn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrackConn(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

// notifyConnReadable is the single producer-side entry point every
// connection's background reader uses to wake the loop. It never blocks
// the caller on hook execution — it only ever enqueues.
func (s *Server) notifyConnReadable(c *Conn, err error) {
	event := EventRead
	if err != nil {
		event = EventClose
	}
	select {
	case s.notify <- connEvent{conn: c, event: event, err: err}:
	case <-s.groupCtx.Done():
	}
}
