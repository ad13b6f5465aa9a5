package rpc

import "encoding/json"

// jsonCodec is the gRPC message codec for the store's data plane, which
// frames its messages as JSON. Field absence (nil pointers) round-trips
// through omitempty, which the chunk grammar relies on.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
