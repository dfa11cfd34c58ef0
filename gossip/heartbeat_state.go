package gossip

/*
Reference model: https://github.com/apache/cassandra/blob/trunk/src/java/org/apache/cassandra/gms/HeartBeatState.java

Unlike the teacher's mutex-guarded HeartbeatState, ownership here is simpler:
the Engine's single mutex already guards every EndpointState in its map, so a
HeartbeatSnapshot is a plain, copyable value with no lock of its own.
*/

// HeartbeatSnapshot is a point-in-time (generation, version) pair for one
// endpoint. Generation is fixed for the endpoint's current incarnation;
// version increases by one on every gossip tick performed by its owner.
type HeartbeatSnapshot struct {
	Generation int64
	Version    int64
}
