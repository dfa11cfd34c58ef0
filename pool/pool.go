// Package pool implements the connection pool described in spec.md §4.1: a
// single-mutex map from remote socket address to connection, plus a reverse
// alias map, so I/O actors can resolve a peer by either its raw dial/accept
// address or its advertised listen address (the alias learned via
// handshake). It is the sole authority on which actor owns a given socket.
package pool

import (
	"net"
	"sync"

	"github.com/rs/xid"

	"github.com/gossipring/cassandra/internal/kverrors"
	"github.com/gossipring/cassandra/internal/logger"
)

// Conn is one pooled connection.
type Conn struct {
	// RemoteAddr is the socket's remote address as seen by accept/dial.
	RemoteAddr string
	// Socket is the underlying TCP connection. Only the Sender writes to it.
	Socket net.Conn
	// Alias is the peer's advertised listen address, set once via handshake.
	// Empty until the handshake completes.
	Alias string
	// ID is a correlation identifier for log lines, distinct from any wire
	// protocol key.
	ID xid.ID
}

// Pool is the process-wide connection table.
type Pool struct {
	mu            sync.Mutex
	byRemote      map[string]*Conn
	aliasToRemote map[string]string
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		byRemote:      make(map[string]*Conn),
		aliasToRemote: make(map[string]string),
	}
}

// Add inserts a connection if remoteAddr is not already present; the insert
// is otherwise a no-op and the existing *Conn is returned (pool.Add is
// idempotent per spec.md §8). If identifier is non-empty and not already
// claimed by a different connection, it is recorded as the alias; a
// duplicate identifier is logged and rejected without replacing the holder.
func (p *Pool) Add(remoteAddr string, socket net.Conn, identifier string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byRemote[remoteAddr]; ok {
		if identifier != "" && existing.Alias == "" {
			p.tryAssignAliasLocked(existing, identifier)
		}
		return existing, nil
	}

	c := &Conn{RemoteAddr: remoteAddr, Socket: socket, ID: xid.New()}
	if identifier != "" {
		p.tryAssignAliasLocked(c, identifier)
	}
	p.byRemote[remoteAddr] = c
	return c, nil
}

// tryAssignAliasLocked must be called with mu held.
func (p *Pool) tryAssignAliasLocked(c *Conn, identifier string) {
	if holder, taken := p.aliasToRemote[identifier]; taken && holder != c.RemoteAddr {
		logger.Errorf("pool", "duplicate identifier %q rejected for %s (held by %s)", identifier, c.RemoteAddr, holder)
		return
	}
	c.Alias = identifier
	p.aliasToRemote[identifier] = c.RemoteAddr
}

// Remove deletes both mappings for remoteAddr and returns the removed socket.
func (p *Pool) Remove(remoteAddr string) (net.Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.byRemote[remoteAddr]
	if !ok {
		return nil, false
	}
	delete(p.byRemote, remoteAddr)
	if c.Alias != "" {
		delete(p.aliasToRemote, c.Alias)
	}
	return c.Socket, true
}

// Get resolves name, trying the alias table first and the remote-address
// table second. It fails with kverrors.IdentifierNotFound if neither has it.
func (p *Pool) Get(name string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if remote, ok := p.aliasToRemote[name]; ok {
		if c, ok := p.byRemote[remote]; ok {
			return c, nil
		}
	}
	if c, ok := p.byRemote[name]; ok {
		return c, nil
	}
	return nil, kverrors.New(kverrors.IdentifierNotFound, "pool.Get", errIdentifierNotFound(name))
}

// Update installs alias as the canonical identifier for the connection
// currently keyed by remoteAddr, unless alias is already held by a different
// connection.
func (p *Pool) Update(remoteAddr, alias string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.byRemote[remoteAddr]
	if !ok {
		return kverrors.New(kverrors.IdentifierNotFound, "pool.Update", errIdentifierNotFound(remoteAddr))
	}
	if holder, taken := p.aliasToRemote[alias]; taken && holder != remoteAddr {
		return kverrors.New(kverrors.DuplicateIdentifier, "pool.Update", errDuplicateIdentifier(alias, holder))
	}
	if c.Alias != "" {
		delete(p.aliasToRemote, c.Alias)
	}
	c.Alias = alias
	p.aliasToRemote[alias] = remoteAddr
	return nil
}

// Len reports how many connections are currently pooled.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byRemote)
}
