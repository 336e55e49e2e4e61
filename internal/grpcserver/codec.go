package grpcserver

import (
	"encoding/json"
	"time"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// CodecName is the content-subtype clients select with
// grpc.CallContentSubtype.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the plain Go request and response structs of this
// package as encoding/json. Timestamps inside them are written by protojson
// through Timestamp.
type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Timestamp is a protobuf timestamp in its canonical JSON form, an RFC 3339
// string such as "2026-03-02T09:00:00Z".
type Timestamp struct {
	*timestamppb.Timestamp
}

func newTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Timestamp: timestamppb.New(t)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Timestamp == nil {
		return []byte("null"), nil
	}
	return protojson.Marshal(t.Timestamp)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Timestamp = nil
		return nil
	}
	ts := &timestamppb.Timestamp{}
	if err := protojson.Unmarshal(data, ts); err != nil {
		return err
	}
	t.Timestamp = ts
	return nil
}
