// Package partitioner implements the consistent-hash ring of spec.md §4.7:
// each physical node owns a configurable number of virtual nodes scattered
// around a 32-bit token space, and key lookups walk the sorted ring to find
// the owning replica set.
package partitioner

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/messaging"
)

const subscriberName = "partitioner"

// vnodeRecord is one virtual node's bookkeeping entry.
type vnodeRecord struct {
	token    int32
	physical string
}

// physicalRecord tracks a physical node's vnode membership and a version
// counter bumped on every topology change, so callers can detect staleness
// without diffing the whole ring.
type physicalRecord struct {
	vnodeIDs []string
	version  int64
}

// Ring is the consistent-hash ring. All state is guarded by mu; reads
// (FindReplicas) and writes (NewPhysicalNode/DeletePhysicalNode) can both
// come from the Run loop reacting to gossip notifications and from direct
// calls by the coordinator, so the struct is safe for concurrent use.
type Ring struct {
	mu sync.RWMutex

	vnode   int // virtual nodes per physical node
	replica int // replication factor

	tokenToVnode map[int32]string
	vnodeToToken map[string]int32
	physicals    map[string]*physicalRecord
	dht          []int32 // sorted ascending, no duplicates
}

// New builds an empty Ring with the given vnode count and replication factor.
func New(vnode, replica int) *Ring {
	return &Ring{
		vnode:        vnode,
		replica:      replica,
		tokenToVnode: make(map[int32]string),
		vnodeToToken: make(map[string]int32),
		physicals:    make(map[string]*physicalRecord),
	}
}

// hash32 is the ring's token function. spec.md §4.7 allows any
// deterministic, uniformly-distributed 32-bit hash as long as every node in
// the cluster uses the same one; FNV-1a is the stdlib's.
func hash32(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int32(h.Sum32())
}

// NewPhysicalNode inserts phyID's vnodes into the ring. A second call for an
// already-known phyID is a no-op: membership changes come from gossip, which
// may redeliver NEW_LIVE_NODE for an endpoint the ring already knows about.
func (r *Ring) NewPhysicalNode(phyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.physicals[phyID]; known {
		return
	}

	rec := &physicalRecord{vnodeIDs: make([]string, 0, r.vnode)}
	for i := 0; i < r.vnode; i++ {
		vnodeID := fmt.Sprintf("%s$%d", phyID, i)
		token := hash32(vnodeID)

		r.tokenToVnode[token] = vnodeID
		r.vnodeToToken[vnodeID] = token
		rec.vnodeIDs = append(rec.vnodeIDs, vnodeID)
		r.insertTokenLocked(token)
	}
	r.physicals[phyID] = rec
}

// DeletePhysicalNode removes phyID and all its vnodes from the ring.
func (r *Ring) DeletePhysicalNode(phyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, known := r.physicals[phyID]
	if !known {
		return
	}
	for _, vnodeID := range rec.vnodeIDs {
		token := r.vnodeToToken[vnodeID]
		delete(r.tokenToVnode, token)
		delete(r.vnodeToToken, vnodeID)
		r.removeTokenLocked(token)
	}
	delete(r.physicals, phyID)
}

func (r *Ring) insertTokenLocked(token int32) {
	i := sort.Search(len(r.dht), func(i int) bool { return r.dht[i] >= token })
	if i < len(r.dht) && r.dht[i] == token {
		return
	}
	r.dht = append(r.dht, 0)
	copy(r.dht[i+1:], r.dht[i:])
	r.dht[i] = token
}

func (r *Ring) removeTokenLocked(token int32) {
	i := sort.Search(len(r.dht), func(i int) bool { return r.dht[i] >= token })
	if i < len(r.dht) && r.dht[i] == token {
		r.dht = append(r.dht[:i], r.dht[i+1:]...)
	}
}

// ErrEmptyRing is returned by FindReplicas when the ring has no members.
var ErrEmptyRing = fmt.Errorf("partitioner: ring has no physical nodes")

// FindReplicas returns up to `replica` distinct physical node identifiers
// responsible for key, walking the ring clockwise from key's token. Per
// spec.md §9's resolution of the source's hashing inconsistency, the key is
// always hashed as its stringified form.
func (r *Ring) FindReplicas(key string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.dht) == 0 {
		return nil, ErrEmptyRing
	}

	token := hash32(key)
	start := sort.Search(len(r.dht), func(i int) bool { return r.dht[i] > token })

	seen := make(map[string]struct{})
	var replicas []string
	for i := 0; i < len(r.dht) && len(replicas) < r.replica; i++ {
		idx := (start + i) % len(r.dht)
		vnodeID := r.tokenToVnode[r.dht[idx]]
		phyID := vnodeID[:strings.IndexByte(vnodeID, '$')]
		if _, dup := seen[phyID]; dup {
			continue
		}
		seen[phyID] = struct{}{}
		replicas = append(replicas, phyID)
	}
	return replicas, nil
}

// Tokens returns a snapshot of every physical node's vnode tokens, sorted
// ascending, for the admin diagnostics service to render the ring layout.
func (r *Ring) Tokens() map[string][]int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]int32, len(r.physicals))
	for phyID, rec := range r.physicals {
		tokens := make([]int32, 0, len(rec.vnodeIDs))
		for _, vnodeID := range rec.vnodeIDs {
			tokens = append(tokens, r.vnodeToToken[vnodeID])
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
		out[phyID] = tokens
	}
	return out
}

// Run subscribes to NEW_LIVE_NODE/LOST_LIVE_NODE gossip notifications and
// keeps the ring's membership in sync with the cluster's liveness view.
func Run(hub *messaging.Hub, r *Ring, stop <-chan struct{}) {
	inbox := hub.Register(wire.CodeNewLiveNode, subscriberName)
	hub.Register(wire.CodeLostLiveNode, subscriberName)

	for {
		select {
		case <-stop:
			return
		case m := <-inbox:
			switch m.Code {
			case wire.CodeNewLiveNode:
				r.NewPhysicalNode(m.SourceAddr)
			case wire.CodeLostLiveNode:
				r.DeletePhysicalNode(m.SourceAddr)
			}
		}
	}
}
