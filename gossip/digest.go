package gossip

/*
Digest Creation

In the gossip protocol's SYN phase, digests are compact summaries of a
node's state used to figure out who needs to send what:

	GossipDigestSyn  -> send digest list (endpoint, generation, maxVersion)
	GossipDigestAck  -> peer replies "you're outdated on X, here's my newer state"
	GossipDigestAck2 -> initiator sends back whatever the peer asked for

Digests let two nodes reconcile state without exchanging the full state
up front.
*/

import "encoding/json"

// GossipDigest is the (endpoint, generation, maxVersion) triple carried by
// SYN and ACK messages. It serializes as a 3-element JSON array,
// per spec.md §6, not as an object.
type GossipDigest struct {
	Endpoint   Endpoint
	Generation int64
	MaxVersion int64
}

// MarshalJSON renders the digest as [endpoint, generation, maxVersion].
func (d GossipDigest) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{d.Endpoint, d.Generation, d.MaxVersion})
}

// UnmarshalJSON parses a digest from its 3-element array form.
func (d *GossipDigest) UnmarshalJSON(data []byte) error {
	var arr [3]json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	var endpoint string
	if err := json.Unmarshal(arr[0], &endpoint); err != nil {
		return err
	}
	var generation, maxVersion int64
	if err := json.Unmarshal(arr[1], &generation); err != nil {
		return err
	}
	if err := json.Unmarshal(arr[2], &maxVersion); err != nil {
		return err
	}
	d.Endpoint = Endpoint(endpoint)
	d.Generation = generation
	d.MaxVersion = maxVersion
	return nil
}
