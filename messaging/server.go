package messaging

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/pool"
)

// Server is the accept loop of spec.md §4.2: it binds listenAddr and spawns
// one Receiver per accepted socket, registered in the pool under its
// pre-handshake remote socket address. The backlog value is stored but not
// applied: net.Listen uses the operating system's default backlog.
type Server struct {
	listenAddr string
	backlog    int

	pool       *pool.Pool
	controller *Controller

	lis net.Listener
	wg  sync.WaitGroup
}

// NewServer builds a Server bound to listenAddr, not yet listening.
func NewServer(listenAddr string, backlog int, p *pool.Pool, c *Controller) *Server {
	return &Server{
		listenAddr: listenAddr,
		backlog:    backlog,
		pool:       p,
		controller: c,
	}
}

// Start binds the listening socket. It must succeed before Run is called.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("messaging: server: listen on %s: %w", s.listenAddr, err)
	}
	s.lis = lis
	logger.Infof("server", "listening on %s", s.listenAddr)
	return nil
}

// Run accepts connections until ctx is cancelled, which closes the
// listener. Accept failures are logged and the loop continues; only ctx
// cancellation ends it.
func (s *Server) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.lis.Close()
	}()

	for {
		conn, err := s.lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return
			default:
			}
			logger.Errorf("server", "accept failed: %v", err)
			continue
		}

		remoteAddr := conn.RemoteAddr().String()
		if _, err := s.pool.Add(remoteAddr, conn, ""); err != nil {
			logger.Errorf("server", "pool.Add(%s): %v", remoteAddr, err)
			conn.Close()
			continue
		}

		recv := NewReceiver(conn, remoteAddr, s.pool, s.controller)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			recv.Run()
		}()
	}
}
