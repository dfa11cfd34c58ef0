package gossip

import (
	"encoding/json"
	"fmt"

	"github.com/gossipring/cassandra/internal/wire"
)

// GossipDigestSyn is phase one of the exchange: a shuffled digest list.
type GossipDigestSyn struct {
	Digests []GossipDigest `json:"digests"`
}

// GossipDigestAck is phase two: digests the sender should answer, plus any
// state the examiner already knows is newer than what the peer reported.
type GossipDigestAck struct {
	DeltaDigests []GossipDigest `json:"delta_digests"`
	DeltaStates  string         `json:"delta_states"`
	SentAt       int64          `json:"sent_at"`
}

// GossipDigestAck2 is phase three: the state the ACK's digests asked for.
type GossipDigestAck2 struct {
	States string `json:"states"`
	SentAt int64  `json:"sent_at"`
}

func encodeEnvelope(msgType string, params interface{}) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("gossip: marshal %s params: %w", msgType, err)
	}
	return json.Marshal(wire.GossipEnvelope{Type: msgType, Params: raw})
}
