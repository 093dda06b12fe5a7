package lead

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrMalformedPayload = errors.New("malformed lead payload")

// PayloadKind identifies which inbound shape a payload had.
type PayloadKind string

const (
	// PayloadObject is a record sent as a JSON object.
	PayloadObject PayloadKind = "object"
	// PayloadEncoded is a record serialized into a JSON string.
	PayloadEncoded PayloadKind = "encoded"
	// PayloadWrapped is an object whose payload field carries the record.
	PayloadWrapped PayloadKind = "wrapped"
)

// wrapperKeys are the envelope fields that may carry a nested record.
var wrapperKeys = []string{"payload", "data"}

// Payload is the normalized result of parsing an inbound request.
type Payload struct {
	Kind   PayloadKind
	Record Record
}

// ParsePayload decodes an inbound display request. The record may arrive as
// an object, as a JSON string holding the object, or wrapped in an envelope
// whose payload or data field holds either of those.
func ParsePayload(raw string) (Payload, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return Payload{}, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	switch data[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		obj, err := decodeObject([]byte(inner))
		if err != nil {
			return Payload{}, err
		}
		if nested, ok, err := unwrap(obj); err != nil {
			return Payload{}, err
		} else if ok {
			return Payload{Kind: PayloadWrapped, Record: nested}, nil
		}
		rec, err := recordFromObject(obj)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: PayloadEncoded, Record: rec}, nil
	case '{':
		obj, err := decodeObject(data)
		if err != nil {
			return Payload{}, err
		}
		if nested, ok, err := unwrap(obj); err != nil {
			return Payload{}, err
		} else if ok {
			return Payload{Kind: PayloadWrapped, Record: nested}, nil
		}
		rec, err := recordFromObject(obj)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: PayloadObject, Record: rec}, nil
	default:
		return Payload{}, fmt.Errorf("%w: expected object or encoded object", ErrMalformedPayload)
	}
}

// ParseRecord is ParsePayload without the shape information.
func ParseRecord(raw string) (Record, error) {
	p, err := ParsePayload(raw)
	if err != nil {
		return nil, err
	}
	return p.Record, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrMalformedPayload)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return obj, nil
}

// unwrap reports whether obj is an envelope and returns the nested record.
// An envelope carries no lead fields of its own and has a field named in
// wrapperKeys holding an object or a string-encoded object. Other envelope
// fields such as request ids are ignored.
func unwrap(obj map[string]json.RawMessage) (Record, bool, error) {
	for key := range obj {
		if isLeadField(key) {
			return nil, false, nil
		}
	}
	for _, key := range wrapperKeys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 {
			return nil, false, nil
		}
		switch v[0] {
		case '"':
			var inner string
			if err := json.Unmarshal(v, &inner); err != nil {
				return nil, true, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			nested, err := decodeObject([]byte(inner))
			if err != nil {
				return nil, true, err
			}
			rec, err := recordFromObject(nested)
			return rec, true, err
		case '{':
			nested, err := decodeObject(v)
			if err != nil {
				return nil, true, err
			}
			rec, err := recordFromObject(nested)
			return rec, true, err
		}
	}
	return nil, false, nil
}

func isLeadField(key string) bool {
	switch key {
	case FieldName, FieldInquiry, FieldContactDetail, FieldEmail, FieldPhone:
		return true
	}
	_, ok := canonicalName(key)
	return ok
}

func recordFromObject(obj map[string]json.RawMessage) (Record, error) {
	flat := make(map[string]string, len(obj))
	for k, v := range obj {
		s, err := scalarString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrMalformedPayload, k, err)
		}
		flat[k] = s
	}
	return Normalize(flat), nil
}

func scalarString(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", nil
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case '{', '[':
		return "", errors.New("nested values are not supported")
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}
