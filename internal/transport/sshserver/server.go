// Package sshserver serves the console over SSH.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/frederikbeimgraben/mcssh/internal/session"
)

// DefaultHandshakeTimeout bounds the SSH handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	// ServerVersion must start with "SSH-2.0-".
	ServerVersion    string
	HandshakeTimeout time.Duration
}

// Server accepts SSH connections and runs console sessions on them.
type Server struct {
	config           *ssh.ServerConfig
	keys             *KeyStore
	commander        session.Commander
	feed             session.Feed
	handshakeTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[*ssh.ServerConn]struct{}
	closing  bool
	wg       sync.WaitGroup

	sessions atomic.Int64
}

// NewServer creates a new Server.
func NewServer(signer ssh.Signer, keys *KeyStore, commander session.Commander, feed session.Feed, opts Options) *Server {
	s := &Server{
		keys:             keys,
		commander:        commander,
		feed:             feed,
		handshakeTimeout: opts.HandshakeTimeout,
		conns:            make(map[*ssh.ServerConn]struct{}),
	}
	if s.handshakeTimeout <= 0 {
		s.handshakeTimeout = DefaultHandshakeTimeout
	}

	s.config = &ssh.ServerConfig{
		PublicKeyCallback: s.authenticate,
		ServerVersion:     opts.ServerVersion,
	}
	s.config.AddHostKey(signer)
	return s
}

func (s *Server) authenticate(meta ssh.ConnMetadata, pub ssh.PublicKey) (*ssh.Permissions, error) {
	fp := ssh.FingerprintSHA256(pub)
	name, ok := s.keys.Lookup(pub)
	if !ok {
		log.Printf("[ssh] Rejected key ...%s for %s from %s", keySuffix(fp), meta.User(), meta.RemoteAddr())
		return nil, fmt.Errorf("unknown public key for %q", meta.User())
	}
	log.Printf("[ssh] Accepted key ...%s (%s) for %s from %s", keySuffix(fp), name, meta.User(), meta.RemoteAddr())
	return &ssh.Permissions{
		Extensions: map[string]string{"key-file": name, "fingerprint": fp},
	}, nil
}

// Sessions returns the number of running sessions.
func (s *Server) Sessions() int {
	return int(s.sessions.Load())
}

// Serve accepts connections on l until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return net.ErrClosed
	}
	s.listener = l
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	log.Printf("[ssh] Listening on %s", l.Addr())
	for {
		nc, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, nc)
		}()
	}
}

// Shutdown closes the listener and waits for live connections. When ctx
// expires first, the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	if s.listener != nil {
		s.listener.Close()
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
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	nc.SetDeadline(time.Now().Add(s.handshakeTimeout))
	conn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		log.Printf("[ssh] Handshake with %s failed: %v", nc.RemoteAddr(), err)
		nc.Close()
		return
	}
	nc.SetDeadline(time.Time{})

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		log.Printf("[ssh] Connection from %s (%s) closed", conn.RemoteAddr(), conn.User())
	}()

	log.Printf("[ssh] Connection from %s (%s, %s)", conn.RemoteAddr(), conn.User(), conn.ClientVersion())
	go ssh.DiscardRequests(reqs)

	// Idle connections are closed on shutdown; busy ones close after their
	// session ends.
	var active atomic.Int32
	stop := context.AfterFunc(ctx, func() {
		if active.Load() == 0 {
			conn.Close()
		}
	})
	defer stop()

	var wg sync.WaitGroup
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.Prohibited, "only session channels are supported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			log.Printf("[ssh] Failed to accept channel: %v", err)
			continue
		}
		wg.Add(1)
		active.Add(1)
		go func() {
			defer wg.Done()
			defer active.Add(-1)
			s.handleChannel(ctx, conn, ch, chReqs)
		}()
	}
	wg.Wait()
}

type ptyRequest struct {
	Term     string
	Width    uint32
	Height   uint32
	PxWidth  uint32
	PxHeight uint32
	Modes    string
}

type windowChange struct {
	Width    uint32
	Height   uint32
	PxWidth  uint32
	PxHeight uint32
}

type envRequest struct {
	Name  string
	Value string
}

type execRequest struct {
	Command string
}

type exitStatus struct {
	Status uint32
}

func (s *Server) handleChannel(ctx context.Context, conn ssh.Conn, ch ssh.Channel, reqs <-chan *ssh.Request) {
	user := conn.User()
	var (
		width, height int
		sess          *session.Session
		started       bool
	)
	finished := make(chan struct{})

	finish := func(status uint32) {
		ch.SendRequest("exit-status", false, ssh.Marshal(&exitStatus{Status: status}))
		ch.Close()
		close(finished)
		if ctx.Err() != nil {
			conn.Close()
		}
	}

	for req := range reqs {
		switch req.Type {
		case "pty-req":
			var p ptyRequest
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				req.Reply(false, nil)
				continue
			}
			width, height = int(p.Width), int(p.Height)
			req.Reply(true, nil)
		case "window-change":
			var w windowChange
			if err := ssh.Unmarshal(req.Payload, &w); err != nil {
				req.Reply(false, nil)
				continue
			}
			width, height = int(w.Width), int(w.Height)
			if sess != nil {
				sess.Resize(width, height)
			}
			req.Reply(true, nil)
		case "env":
			var e envRequest
			if err := ssh.Unmarshal(req.Payload, &e); err == nil {
				log.Printf("[ssh] %s env %s=%s", user, e.Name, e.Value)
			}
			req.Reply(true, nil)
		case "shell":
			if started {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)
			sess = session.New(user, ch, s.commander, s.feed, width, height)
			go func() {
				s.sessions.Add(1)
				defer s.sessions.Add(-1)
				if err := sess.Run(ctx); err != nil {
					log.Printf("[ssh] Session for %s failed: %v", user, err)
				}
				finish(0)
			}()
		case "exec":
			var e execRequest
			if started || ssh.Unmarshal(req.Payload, &e) != nil {
				req.Reply(false, nil)
				continue
			}
			started = true
			req.Reply(true, nil)
			go func() {
				finish(session.RunExec(ctx, s.commander, user, e.Command, ch))
			}()
		default:
			req.Reply(false, nil)
		}
	}

	// The client closed the channel.
	if started {
		<-finished
	} else {
		ch.Close()
	}
}
