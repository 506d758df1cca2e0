package report

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Encoder turns a value into a response body of a fixed content type.
type Encoder[T any] struct {
	ContentType string
	Marshal     func(T) ([]byte, error)
}

// Encode marshals v.
func (e Encoder[T]) Encode(v T) ([]byte, error) {
	data, err := e.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("report: failed to encode %s: %w", e.ContentType, err)
	}
	return data, nil
}

// NewJSONEncoder encodes values with encoding/json.
func NewJSONEncoder[T any]() Encoder[T] {
	return Encoder[T]{
		ContentType: "application/json",
		Marshal: func(v T) ([]byte, error) {
			return json.Marshal(v)
		},
	}
}

// NewProtoEncoder encodes values in the protobuf wire format after converting them
// to a message.
func NewProtoEncoder[T any](toMessage func(T) (proto.Message, error)) Encoder[T] {
	return Encoder[T]{
		ContentType: "application/x-protobuf",
		Marshal: func(v T) ([]byte, error) {
			msg, err := toMessage(v)
			if err != nil {
				return nil, err
			}
			return proto.Marshal(msg)
		},
	}
}

// NewProtoJSONEncoder encodes values with the canonical protobuf JSON mapping.
func NewProtoJSONEncoder[T any](toMessage func(T) (proto.Message, error)) Encoder[T] {
	return Encoder[T]{
		ContentType: "application/json",
		Marshal: func(v T) ([]byte, error) {
			msg, err := toMessage(v)
			if err != nil {
				return nil, err
			}
			return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
		},
	}
}
