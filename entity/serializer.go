package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Serializer converts records between their native form and the values the
// storage driver accepts.
type Serializer interface {
	// Serialize converts every stored field of the record.
	Serialize(s *Schema, r Record) (Record, error)
	// PartialSerialize converts only the fields present in the record.
	PartialSerialize(s *Schema, r Record) (Record, error)
	// Deserialize converts a raw database record into its native form.
	Deserialize(s *Schema, r Record) (Record, error)
}

// DefaultSerializer is the serializer used for schemas without their own.
var DefaultSerializer Serializer = SQLSerializer{}

// SerializerOf returns the serializer of the schema, or DefaultSerializer.
func SerializerOf(s *Schema) Serializer {
	if s != nil && s.Serializer != nil {
		return s.Serializer
	}
	return DefaultSerializer
}

// SQLSerializer maps logical field types onto database/sql compatible values.
// UUIDs are stored as canonical text, JSON fields as encoded text and
// references by the primary key of the referenced record.
type SQLSerializer struct{}

// Serialize implements Serializer.
func (z SQLSerializer) Serialize(s *Schema, r Record) (Record, error) {
	out := make(Record, len(s.Fields))
	for _, f := range s.StoredFields() {
		v, err := z.encode(f, r[f.Name])
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

// PartialSerialize implements Serializer.
func (z SQLSerializer) PartialSerialize(s *Schema, r Record) (Record, error) {
	out := make(Record, len(r))
	for name, v := range r {
		f, ok := s.Field(name)
		if !ok || !f.IsStored() {
			continue
		}
		ev, err := z.encode(f, v)
		if err != nil {
			return nil, err
		}
		out[name] = ev
	}
	return out, nil
}

// Deserialize implements Serializer.
func (z SQLSerializer) Deserialize(s *Schema, r Record) (Record, error) {
	out := make(Record, len(r))
	for name, v := range r {
		f, ok := s.Field(name)
		if !ok || !f.IsStored() {
			out[name] = v
			continue
		}
		dv, err := z.decode(f, v)
		if err != nil {
			return nil, err
		}
		out[name] = dv
	}
	return out, nil
}

// EncodeValue serializes a single value of the field.
func (z SQLSerializer) EncodeValue(f *Field, v any) (any, error) { return z.encode(f, v) }

func (z SQLSerializer) encode(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.IsReference() {
		if rec, ok := v.(Record); ok {
			pk, err := f.Reference.PrimaryField()
			if err != nil {
				return nil, err
			}
			return z.encode(pk, rec[pk.Name])
		}
	}
	switch f.Type {
	case TypeUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id.String(), nil
		case [16]byte:
			return uuid.UUID(id).String(), nil
		case string:
			parsed, err := uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("entity: field %q: %w", f.Name, err)
			}
			return parsed.String(), nil
		}
	case TypeJSON:
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("entity: field %q: %w", f.Name, err)
		}
		return string(buf), nil
	case TypeTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return v, nil
}

func (z SQLSerializer) decode(f *Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case TypeBool:
		switch b := v.(type) {
		case int64:
			return b != 0, nil
		case int:
			return b != 0, nil
		case []byte:
			return string(b) == "1" || string(b) == "true", nil
		}
	case TypeUUID:
		switch id := v.(type) {
		case string:
			return uuid.Parse(id)
		case []byte:
			if len(id) == 16 {
				return uuid.FromBytes(id)
			}
			return uuid.ParseBytes(id)
		}
	case TypeJSON:
		var raw []byte
		switch s := v.(type) {
		case string:
			raw = []byte(s)
		case []byte:
			raw = s
		default:
			return v, nil
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("entity: field %q: %w", f.Name, err)
		}
		return out, nil
	case TypeString, TypeEnum:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	case TypeTime:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return v, nil
			}
			return t, nil
		}
	}
	return v, nil
}
