package messaging

import (
	"net"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/pool"
)

// Receiver owns one accepted or dialed socket (spec.md §4.3). It reads
// frames in a tight loop and posts each as a RECEIVED_MESSAGE item to the
// Controller's inbound queue. On EOF or a decode failure it posts
// CONNECTION_LOST, removes the connection from the pool, and exits.
type Receiver struct {
	conn       net.Conn
	remoteAddr string
	pool       *pool.Pool
	controller *Controller
}

// NewReceiver builds a Receiver for an already-established socket.
func NewReceiver(conn net.Conn, remoteAddr string, p *pool.Pool, c *Controller) *Receiver {
	return &Receiver{conn: conn, remoteAddr: remoteAddr, pool: p, controller: c}
}

// Run reads frames until the socket is closed or a frame fails to decode.
func (r *Receiver) Run() {
	for {
		frame, err := wire.ReadFrame(r.conn)
		if err != nil {
			r.teardown(err)
			return
		}

		r.controller.postReceived(r.remoteAddr, Message{
			Code:       frame.Code,
			SourceAddr: frame.SourceAddr,
			Data:       frame.Payload,
		})
	}
}

func (r *Receiver) teardown(cause error) {
	logger.Infof("receiver", "connection to %s closed: %v", r.remoteAddr, cause)
	r.pool.Remove(r.remoteAddr)
	r.conn.Close()
	r.controller.postConnectionLost(r.remoteAddr)
}
