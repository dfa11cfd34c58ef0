package gossip

// Engine runs on the messaging Hub rather than a dedicated gRPC
// HeartbeatService: that keeps it testable in-process and lets it reuse the
// substrate's connection pool and retry logic instead of managing its own
// dial loop.

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/messaging"
)

const subscriberName = "gossip"

// stalenessFactor bounds how many gossip intervals may elapse between a SYN
// being sent and its ACK/ACK2 reply before the reply is discarded as stale,
// per spec.md §9's instruction that late replies must not corrupt state.
const stalenessFactor = 10

// Engine owns this node's view of cluster membership and liveness. All
// state reads/writes go through mu; the tick and message-handling methods
// run on the same goroutine (Run's loop), so mu mostly guards against
// concurrent access from Applications calling SetLocalAppState,
// LiveEndpoints or Snapshot.
type Engine struct {
	mu sync.Mutex

	self  Endpoint
	seeds map[Endpoint]struct{}

	states                map[Endpoint]*EndpointState
	liveEndpoints         map[Endpoint]struct{}
	unreachableEndpoints  map[Endpoint]int64 // endpoint -> loss timestamp (unix millis)

	hub            *messaging.Hub
	inbox          chan messaging.Message
	gossipInterval time.Duration
	rng            *rand.Rand
}

// NewEngine builds an Engine for self, seeded with the cluster's seed list.
// self's own EndpointState is initialized with generation = process start
// time, matching the HeartBeat generation semantics in the glossary.
func NewEngine(hub *messaging.Hub, self string, seeds []string, gossipInterval time.Duration) *Engine {
	seedSet := make(map[Endpoint]struct{}, len(seeds))
	for _, s := range seeds {
		seedSet[Endpoint(s)] = struct{}{}
	}

	e := &Engine{
		self:                 Endpoint(self),
		seeds:                seedSet,
		states:               make(map[Endpoint]*EndpointState),
		liveEndpoints:        make(map[Endpoint]struct{}),
		unreachableEndpoints: make(map[Endpoint]int64),
		hub:                  hub,
		gossipInterval:       gossipInterval,
		rng:                  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.states[e.self] = &EndpointState{
		Heartbeat: HeartbeatSnapshot{Generation: time.Now().Unix(), Version: 0},
		AppStates: make(map[AppStateKey]AppState),
		IsAlive:   true,
	}
	return e
}

// SetLocalAppState installs or bumps the local node's application state for
// key, stamping it with the next heartbeat version. Applications call this
// (e.g. the partitioner publishing ring ownership, storage publishing load)
// rather than touching EndpointState directly.
func (e *Engine) SetLocalAppState(key AppStateKey, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	local := e.states[e.self]
	local.Heartbeat.Version++
	local.AppStates[key] = AppState{Value: value, Version: local.Heartbeat.Version}
}

// LiveEndpoints returns a snapshot of currently-live peers, excluding self.
func (e *Engine) LiveEndpoints() []Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Endpoint, 0, len(e.liveEndpoints))
	for ep := range e.liveEndpoints {
		out = append(out, ep)
	}
	return out
}

// Snapshot returns a deep copy of every known endpoint's state, for the
// admin diagnostics service to render without risking a data race with the
// Run loop's concurrent merges.
func (e *Engine) Snapshot() map[Endpoint]*EndpointState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[Endpoint]*EndpointState, len(e.states))
	for ep, es := range e.states {
		out[ep] = cloneEndpointState(es)
	}
	return out
}

// Run subscribes to the gossip-relevant message codes and drives the tick
// loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.inbox = e.hub.Register(wire.CodeGossip, subscriberName)
	e.hub.Register(wire.CodeNewConnection, subscriberName)
	e.hub.Register(wire.CodeConnectionLost, subscriberName)

	ticker := time.NewTicker(e.gossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		case m := <-e.inbox:
			e.handleMessage(m)
		}
	}
}

func (e *Engine) handleMessage(m messaging.Message) {
	switch m.Code {
	case wire.CodeGossip:
		e.onGossip(Endpoint(m.SourceAddr), m.Data)
	case wire.CodeNewConnection:
		e.onNewConnection(Endpoint(m.SourceAddr))
	case wire.CodeConnectionLost:
		e.onConnectionLost(Endpoint(m.SourceAddr))
	}
}

// tick advances the local heartbeat and fans a SYN out to up to three
// targets per spec.md §4.6: a random live peer, possibly an unreachable
// endpoint (so dead nodes are eventually reconciled), and possibly a seed
// when the live target wasn't already one (so seeds anchor the cluster view
// even when gossip would otherwise drift toward a live clique).
func (e *Engine) tick() {
	e.mu.Lock()
	local := e.states[e.self]
	local.Heartbeat.Version++

	digests := e.buildDigestsLocked()
	live := e.liveEndpointsSliceLocked()
	unreachable := e.unreachableSliceLocked()
	e.mu.Unlock()

	e.rng.Shuffle(len(digests), func(i, j int) { digests[i], digests[j] = digests[j], digests[i] })

	seededTarget := false
	if len(live) > 0 {
		target := live[e.rng.Intn(len(live))]
		e.sendSyn(target, digests)
		seededTarget = e.isSeed(target)
	}

	if len(unreachable) > 0 {
		if e.rng.Float64() < float64(len(unreachable))/float64(len(live)+1) {
			e.sendSyn(unreachable[e.rng.Intn(len(unreachable))], digests)
		}
	}

	e.maybeGossipToSeed(digests, seededTarget, len(live), len(unreachable))
}

// maybeGossipToSeed implements tick's step 5: when no seed has been reached
// this round, or live membership has fallen below the seed count, there's a
// standing chance of pinging a seed directly so the cluster view doesn't
// drift away from the nodes new joiners bootstrap against.
func (e *Engine) maybeGossipToSeed(digests []GossipDigest, seededTarget bool, liveCount, unreachableCount int) {
	seeds := make([]Endpoint, 0, len(e.seeds))
	for s := range e.seeds {
		if s != e.self {
			seeds = append(seeds, s)
		}
	}
	if len(seeds) == 0 {
		return
	}
	if seededTarget && liveCount >= len(seeds) {
		return
	}
	probability := float64(len(seeds)) / float64(liveCount+unreachableCount+1)
	if e.rng.Float64() < probability {
		e.sendSyn(seeds[e.rng.Intn(len(seeds))], digests)
	}
}

func (e *Engine) isSeed(ep Endpoint) bool {
	_, ok := e.seeds[ep]
	return ok
}

func (e *Engine) buildDigestsLocked() []GossipDigest {
	digests := make([]GossipDigest, 0, len(e.states))
	for ep, es := range e.states {
		digests = append(digests, GossipDigest{Endpoint: ep, Generation: es.Heartbeat.Generation, MaxVersion: es.maxVersion()})
	}
	return digests
}

func (e *Engine) liveEndpointsSliceLocked() []Endpoint {
	out := make([]Endpoint, 0, len(e.liveEndpoints))
	for ep := range e.liveEndpoints {
		out = append(out, ep)
	}
	return out
}

func (e *Engine) unreachableSliceLocked() []Endpoint {
	out := make([]Endpoint, 0, len(e.unreachableEndpoints))
	for ep := range e.unreachableEndpoints {
		out = append(out, ep)
	}
	return out
}

func (e *Engine) sendSyn(target Endpoint, digests []GossipDigest) {
	payload, err := encodeEnvelope("SYN", GossipDigestSyn{Digests: digests})
	if err != nil {
		logger.Errorf("gossip", "encode SYN for %s: %v", target, err)
		return
	}
	e.hub.Send(string(target), messaging.Message{Code: wire.CodeGossip, Data: payload})
}

func (e *Engine) onGossip(from Endpoint, data []byte) {
	var env wire.GossipEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Errorf("gossip", "decode envelope from %s: %v", from, err)
		return
	}
	switch env.Type {
	case "SYN":
		var syn GossipDigestSyn
		if err := json.Unmarshal(env.Params, &syn); err != nil {
			logger.Errorf("gossip", "decode SYN from %s: %v", from, err)
			return
		}
		e.handleSyn(from, syn)
	case "ACK":
		var ack GossipDigestAck
		if err := json.Unmarshal(env.Params, &ack); err != nil {
			logger.Errorf("gossip", "decode ACK from %s: %v", from, err)
			return
		}
		e.handleAck(from, ack)
	case "ACK2":
		var ack2 GossipDigestAck2
		if err := json.Unmarshal(env.Params, &ack2); err != nil {
			logger.Errorf("gossip", "decode ACK2 from %s: %v", from, err)
			return
		}
		e.handleAck2(from, ack2)
	default:
		logger.Errorf("gossip", "unknown envelope type %q from %s", env.Type, from)
	}
}

// handleSyn is the examiner of spec.md §4.6: for every digest in the
// incoming SYN, it decides whether it needs the peer's full state, a slice
// above some version, whether it has newer state the peer needs, or
// whether the two sides already agree.
func (e *Engine) handleSyn(from Endpoint, syn GossipDigestSyn) {
	e.mu.Lock()

	var requestDigests []GossipDigest
	sendStates := make(map[Endpoint]*EndpointState)

	for _, d := range syn.Digests {
		local, known := e.states[d.Endpoint]
		switch {
		case !known:
			requestDigests = append(requestDigests, GossipDigest{Endpoint: d.Endpoint, Generation: d.Generation, MaxVersion: 0})

		case d.Generation > local.Heartbeat.Generation:
			requestDigests = append(requestDigests, GossipDigest{Endpoint: d.Endpoint, Generation: d.Generation, MaxVersion: 0})

		case d.Generation == local.Heartbeat.Generation:
			localMax := local.maxVersion()
			switch {
			case localMax > d.MaxVersion:
				sendStates[d.Endpoint] = stateAbove(local, d.MaxVersion)
			case localMax < d.MaxVersion:
				// NOTE: spec.md §4.6 literally says to add
				// (D.endpoint, D.maxVersion, local.maxVersion) here, but a
				// GossipDigest is always (endpoint, generation, maxVersion)
				// everywhere else in the protocol, and generation is already
				// known equal in this branch. Treating the literal wording
				// as a transcription slip and requesting (endpoint,
				// generation, localMax) instead, flagged rather than
				// silently carried forward.
				requestDigests = append(requestDigests, GossipDigest{Endpoint: d.Endpoint, Generation: d.Generation, MaxVersion: localMax})
			}
			// localMax == d.MaxVersion: already in sync, nothing to do.

		default:
			// local.Generation > d.Generation: we're ahead of what the peer
			// reported for itself; nothing to request or send here.
		}
	}

	e.mu.Unlock()

	deltaStates := ""
	if len(sendStates) > 0 {
		deltaStates = SerializeStates(sendStates)
	}

	ack := GossipDigestAck{DeltaDigests: requestDigests, DeltaStates: deltaStates, SentAt: time.Now().UnixMilli()}
	payload, err := encodeEnvelope("ACK", ack)
	if err != nil {
		logger.Errorf("gossip", "encode ACK for %s: %v", from, err)
		return
	}
	e.hub.Send(string(from), messaging.Message{Code: wire.CodeGossip, Data: payload})
}

func (e *Engine) handleAck(from Endpoint, ack GossipDigestAck) {
	if e.isStale(ack.SentAt) {
		logger.Infof("gossip", "discarding stale ACK from %s", from)
		return
	}

	if ack.DeltaStates != "" {
		remote, err := DeserializeStates(ack.DeltaStates)
		if err != nil {
			logger.Errorf("gossip", "decode ACK delta states from %s: %v", from, err)
		} else {
			e.notifyNewLiveNodes(e.applyStatesLocally(remote))
		}
	}

	e.mu.Lock()
	answer := make(map[Endpoint]*EndpointState)
	for _, d := range ack.DeltaDigests {
		if local, ok := e.states[d.Endpoint]; ok {
			answer[d.Endpoint] = stateAbove(local, d.MaxVersion)
		}
	}
	e.mu.Unlock()

	ack2 := GossipDigestAck2{States: SerializeStates(answer), SentAt: time.Now().UnixMilli()}
	payload, err := encodeEnvelope("ACK2", ack2)
	if err != nil {
		logger.Errorf("gossip", "encode ACK2 for %s: %v", from, err)
		return
	}
	e.hub.Send(string(from), messaging.Message{Code: wire.CodeGossip, Data: payload})
}

func (e *Engine) handleAck2(from Endpoint, ack2 GossipDigestAck2) {
	if e.isStale(ack2.SentAt) {
		logger.Infof("gossip", "discarding stale ACK2 from %s", from)
		return
	}
	if ack2.States == "" {
		return
	}
	remote, err := DeserializeStates(ack2.States)
	if err != nil {
		logger.Errorf("gossip", "decode ACK2 states from %s: %v", from, err)
		return
	}
	e.notifyNewLiveNodes(e.applyStatesLocally(remote))
}

func (e *Engine) isStale(sentAt int64) bool {
	if sentAt == 0 {
		return false
	}
	age := time.Since(time.UnixMilli(sentAt))
	return age > e.gossipInterval*stalenessFactor
}

// onNewConnection marks ep live. Per spec.md §4.6 this never itself emits a
// NEW_LIVE_NODE notification; that's reserved for applyStatesLocally
// discovering a genuinely unknown endpoint.
func (e *Engine) onNewConnection(ep Endpoint) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ep == e.self {
		return
	}
	e.liveEndpoints[ep] = struct{}{}
	delete(e.unreachableEndpoints, ep)
	if _, known := e.states[ep]; !known {
		e.states[ep] = &EndpointState{AppStates: make(map[AppStateKey]AppState)}
	}
}

func (e *Engine) onConnectionLost(ep Endpoint) {
	e.mu.Lock()
	delete(e.liveEndpoints, ep)
	e.unreachableEndpoints[ep] = time.Now().UnixMilli()
	if es, ok := e.states[ep]; ok {
		es.IsAlive = false
	}
	e.mu.Unlock()

	e.hub.Notify(messaging.Message{Code: wire.CodeLostLiveNode, SourceAddr: string(ep)})
}
