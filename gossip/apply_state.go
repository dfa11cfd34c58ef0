package gossip

/*
State Management and Merging

Applying remote state is the convergence step of the gossip protocol: a
received EndpointState is reconciled against whatever the engine already
believes about that endpoint using generation then version, exactly as
spec.md §4.6 describes:

  - unknown endpoint -> install wholesale, it's a major state change
  - known endpoint, same generation, remote is newer -> merge per key,
    last-writer-wins by version
  - known endpoint, same generation, remote is not newer -> ignore
  - known endpoint, remote generation higher -> ignored here; only the SYN
    examiner's request-all branch is allowed to surface a generation jump
  - remote generation beyond the current wall clock -> logged as corrupt
*/

import (
	"time"

	"github.com/gossipring/cassandra/internal/logger"
	"github.com/gossipring/cassandra/internal/wire"
	"github.com/gossipring/cassandra/messaging"
)

// applyStatesLocally merges remote into the engine's view, returning the set
// of endpoints that just transitioned from unknown to known so the caller
// can emit NEW_LIVE_NODE notifications outside the lock.
func (e *Engine) applyStatesLocally(remote map[Endpoint]*EndpointState) []Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()

	var newlyLive []Endpoint
	now := time.Now()

	for ep, rs := range remote {
		if ep == e.self {
			continue
		}

		local, known := e.states[ep]
		switch {
		// A generation-0 entry is the placeholder onNewConnection installs
		// before any gossip state arrives; it counts as unknown here.
		case !known || (local.Heartbeat.Generation == 0 && rs.Heartbeat.Generation > 0):
			e.states[ep] = cloneEndpointState(rs)
			e.states[ep].IsAlive = true
			e.states[ep].UpdateTimestamp = now.UnixMilli()
			e.liveEndpoints[ep] = struct{}{}
			delete(e.unreachableEndpoints, ep)
			newlyLive = append(newlyLive, ep)

		case rs.Heartbeat.Generation == local.Heartbeat.Generation:
			if rs.maxVersion() > local.maxVersion() {
				e.mergeInto(local, rs, now)
			}

		case rs.Heartbeat.Generation > local.Heartbeat.Generation:
			if rs.Heartbeat.Generation > now.Unix() {
				logger.Errorf("gossip", "endpoint %s reports corrupt generation %d (now=%d)", ep, rs.Heartbeat.Generation, now.Unix())
				continue
			}
			logger.Infof("gossip", "ignoring higher-generation state for %s outside the request-all path (local=%d remote=%d)", ep, local.Heartbeat.Generation, rs.Heartbeat.Generation)

		default:
			// remote.generation < local.generation: stale incarnation, ignore.
		}
	}

	return newlyLive
}

func (e *Engine) mergeInto(local, remote *EndpointState, now time.Time) {
	local.Heartbeat = remote.Heartbeat
	for k, v := range remote.AppStates {
		if existing, ok := local.AppStates[k]; !ok || v.Version > existing.Version {
			local.AppStates[k] = v
		}
	}
	local.IsAlive = true
	local.UpdateTimestamp = now.UnixMilli()
}

func (e *Engine) notifyNewLiveNodes(endpoints []Endpoint) {
	for _, ep := range endpoints {
		e.hub.Notify(messaging.Message{Code: wire.CodeNewLiveNode, SourceAddr: string(ep)})
	}
}
