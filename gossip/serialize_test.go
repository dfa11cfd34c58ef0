package gossip

import (
	"reflect"
	"testing"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	states := map[Endpoint]*EndpointState{
		"10.0.0.1:9042": {
			Heartbeat: HeartbeatSnapshot{Generation: 100, Version: 7},
			AppStates: map[AppStateKey]AppState{
				AppStateStatus: {Value: "NORMAL", Version: 3},
				AppStateLoad:   {Value: "1024", Version: 5},
			},
		},
		"10.0.0.2:9042": {
			Heartbeat: HeartbeatSnapshot{Generation: 200, Version: 1},
			AppStates: map[AppStateKey]AppState{},
		},
	}

	blob := SerializeStates(states)
	got, err := DeserializeStates(blob)
	if err != nil {
		t.Fatalf("DeserializeStates: %v", err)
	}
	if !reflect.DeepEqual(got, states) {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, states)
	}
}

func TestSerializeStatesIsDeterministic(t *testing.T) {
	states := map[Endpoint]*EndpointState{
		"b:1": {Heartbeat: HeartbeatSnapshot{Generation: 1, Version: 1}, AppStates: map[AppStateKey]AppState{}},
		"a:1": {Heartbeat: HeartbeatSnapshot{Generation: 1, Version: 1}, AppStates: map[AppStateKey]AppState{}},
	}
	first := SerializeStates(states)
	second := SerializeStates(states)
	if first != second {
		t.Fatalf("serialization not deterministic:\n%s\nvs\n%s", first, second)
	}
	if first[0] != 'a' {
		t.Fatalf("expected endpoints sorted alphabetically, got %q", first)
	}
}

func TestDeserializeEmptyBlob(t *testing.T) {
	states, err := DeserializeStates("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("expected empty map, got %+v", states)
	}
}

func TestDeserializeRejectsMissingHeartbeat(t *testing.T) {
	_, err := DeserializeStates("10.0.0.1:9042-[STATUS NORMAL, version 1]")
	if err == nil {
		t.Fatal("expected error for record missing HeartBeat segment")
	}
}
