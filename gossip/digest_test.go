package gossip

import (
	"encoding/json"
	"testing"
)

func TestGossipDigestJSONRoundTrip(t *testing.T) {
	d := GossipDigest{Endpoint: "10.0.0.1:9042", Generation: 123, MaxVersion: 45}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `["10.0.0.1:9042",123,45]` {
		t.Fatalf("expected 3-element array wire form, got %s", data)
	}

	var got GossipDigest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestGossipDigestSynEnvelopeRoundTrip(t *testing.T) {
	syn := GossipDigestSyn{Digests: []GossipDigest{
		{Endpoint: "a:1", Generation: 1, MaxVersion: 1},
		{Endpoint: "b:1", Generation: 2, MaxVersion: 9},
	}}

	payload, err := encodeEnvelope("SYN", syn)
	if err != nil {
		t.Fatalf("encodeEnvelope: %v", err)
	}

	var env struct {
		Type   string          `json:"type"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != "SYN" {
		t.Fatalf("expected type SYN, got %q", env.Type)
	}

	var got GossipDigestSyn
	if err := json.Unmarshal(env.Params, &got); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if len(got.Digests) != 2 || got.Digests[0] != syn.Digests[0] || got.Digests[1] != syn.Digests[1] {
		t.Fatalf("digest list mismatch: got %+v want %+v", got.Digests, syn.Digests)
	}
}
