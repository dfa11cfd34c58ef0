package admin

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the status service ride on grpc.Server/grpc.ClientConn
// without the protobuf toolchain: spec.md's wire protocol between peers is
// the hand-rolled framing in internal/wire, and pulling in protoc-generated
// stubs just for an operator-facing status RPC would mean carrying a build
// step this module otherwise has no use for. See DESIGN.md for the longer
// version of this tradeoff.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
