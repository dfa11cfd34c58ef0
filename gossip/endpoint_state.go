package gossip

/*
EndpointState is the per-node snapshot that ties everything together: the
heartbeat (generation, version) pair plus a map of opaque application state
slots, and the liveness metadata the gossip engine maintains about when it
last heard from this endpoint.
*/

// EndpointState is one peer's complete known gossip state.
type EndpointState struct {
	Heartbeat       HeartbeatSnapshot
	AppStates       map[AppStateKey]AppState
	IsAlive         bool
	UpdateTimestamp int64 // unix millis
}

// maxVersion is the largest version across the heartbeat and every
// application-state entry, per the MaxVersion glossary definition.
func (es *EndpointState) maxVersion() int64 {
	max := es.Heartbeat.Version
	for _, s := range es.AppStates {
		if s.Version > max {
			max = s.Version
		}
	}
	return max
}

// stateAbove returns the subset of es strictly newer than version: the
// heartbeat only if its version exceeds the threshold, and every
// application-state entry whose version exceeds it. Used to answer both
// "send-all-above" in the SYN examiner and ACK's reply-to-request step.
func stateAbove(es *EndpointState, version int64) *EndpointState {
	above := &EndpointState{
		Heartbeat: HeartbeatSnapshot{Generation: es.Heartbeat.Generation},
		AppStates: make(map[AppStateKey]AppState),
	}
	if es.Heartbeat.Version > version {
		above.Heartbeat.Version = es.Heartbeat.Version
	}
	for k, v := range es.AppStates {
		if v.Version > version {
			above.AppStates[k] = v
		}
	}
	return above
}

func cloneEndpointState(es *EndpointState) *EndpointState {
	clone := &EndpointState{
		Heartbeat:       es.Heartbeat,
		AppStates:       make(map[AppStateKey]AppState, len(es.AppStates)),
		IsAlive:         es.IsAlive,
		UpdateTimestamp: es.UpdateTimestamp,
	}
	for k, v := range es.AppStates {
		clone.AppStates[k] = v
	}
	return clone
}
