package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
	}{
		{"empty payload", Frame{Code: CodeNewConnection, SourceAddr: "127.0.0.1:9042", Payload: nil}},
		{"gossip payload", Frame{Code: CodeGossip, SourceAddr: "10.0.0.5:6000", Payload: []byte(`{"type":"GossipDigestSyn"}`)}},
		{"request payload", Frame{Code: CodeRequest, SourceAddr: "192.168.1.1:1", Payload: []byte(`{"request":["get","k"],"request_hash":42}`)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.f)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := ReadFrame(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if decoded.Code != tc.f.Code {
				t.Errorf("code: got %v want %v", decoded.Code, tc.f.Code)
			}
			if decoded.SourceAddr != tc.f.SourceAddr {
				t.Errorf("source addr: got %q want %q", decoded.SourceAddr, tc.f.SourceAddr)
			}
			if !bytes.Equal(decoded.Payload, tc.f.Payload) {
				t.Errorf("payload: got %q want %q", decoded.Payload, tc.f.Payload)
			}
		})
	}
}

func TestReadFrameMultipleInStream(t *testing.T) {
	var buf bytes.Buffer
	want := []Frame{
		{Code: CodeNewConnection, SourceAddr: "127.0.0.1:1", Payload: []byte("a")},
		{Code: CodeConnectionLost, SourceAddr: "127.0.0.1:2", Payload: []byte("bb")},
	}
	for _, f := range want {
		enc, err := Encode(f)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		buf.Write(enc)
	}

	for i, f := range want {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame #%d: %v", i, err)
		}
		if got.Code != f.Code || got.SourceAddr != f.SourceAddr || !bytes.Equal(got.Payload, f.Payload) {
			t.Errorf("frame #%d mismatch: got %+v want %+v", i, got, f)
		}
	}
}

func TestEncodeRejectsNonIPv4(t *testing.T) {
	_, err := Encode(Frame{Code: CodeGossip, SourceAddr: "[::1]:9000"})
	if err == nil {
		t.Fatal("expected error encoding an IPv6 source address")
	}
}
