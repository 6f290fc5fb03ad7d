package kafka

import (
	"encoding/json"
	"fmt"
)

// Serializer encodes a key or value for topic.
type Serializer[T any] interface {
	Serialize(topic string, v T) ([]byte, error)
}

// Deserializer decodes a key or value read from topic.
type Deserializer[T any] interface {
	Deserialize(topic string, data []byte) (T, error)
}

// SerializerFunc adapts a function to Serializer.
type SerializerFunc[T any] func(topic string, v T) ([]byte, error)

func (f SerializerFunc[T]) Serialize(topic string, v T) ([]byte, error) { return f(topic, v) }

// DeserializerFunc adapts a function to Deserializer.
type DeserializerFunc[T any] func(topic string, data []byte) (T, error)

func (f DeserializerFunc[T]) Deserialize(topic string, data []byte) (T, error) { return f(topic, data) }

// StringSerde encodes strings as their UTF-8 bytes.
type StringSerde struct{}

func (StringSerde) Serialize(_ string, v string) ([]byte, error) { return []byte(v), nil }

func (StringSerde) Deserialize(_ string, data []byte) (string, error) { return string(data), nil }

// BytesSerde passes bytes through untouched.
type BytesSerde struct{}

func (BytesSerde) Serialize(_ string, v []byte) ([]byte, error) { return v, nil }

func (BytesSerde) Deserialize(_ string, data []byte) ([]byte, error) { return data, nil }

// JSONSerde encodes T as JSON.
type JSONSerde[T any] struct{}

func (JSONSerde[T]) Serialize(topic string, v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json for topic %q: %w", topic, err)
	}
	return data, nil
}

func (JSONSerde[T]) Deserialize(topic string, data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode json from topic %q: %w", topic, err)
	}
	return v, nil
}
