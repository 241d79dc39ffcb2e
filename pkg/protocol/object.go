package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/pretty"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Object is a JSON object that keeps its members in document order. The zero
// value is an empty object.
type Object struct {
	m *orderedmap.OrderedMap[string, json.RawMessage]
}

func (o *Object) members() *orderedmap.OrderedMap[string, json.RawMessage] {
	if o.m == nil {
		o.m = orderedmap.New[string, json.RawMessage]()
	}
	return o.m
}

// Get returns the raw value of key.
func (o Object) Get(key string) (json.RawMessage, bool) {
	if o.m == nil {
		return nil, false
	}
	return o.m.Get(key)
}

// Set encodes value and stores it under key. An existing key keeps its
// position.
func (o *Object) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	o.SetRaw(key, raw)
	return nil
}

// SetRaw stores a copy of an encoded value under key.
func (o *Object) SetRaw(key string, raw json.RawMessage) {
	o.members().Set(key, append(json.RawMessage(nil), raw...))
}

// Delete removes key.
func (o *Object) Delete(key string) {
	if o.m != nil {
		o.m.Delete(key)
	}
}

// Len returns the number of members.
func (o Object) Len() int {
	if o.m == nil {
		return 0
	}
	return o.m.Len()
}

// Keys returns the member names in document order.
func (o Object) Keys() []string {
	keys := make([]string, 0, o.Len())
	o.Each(func(key string, _ json.RawMessage) {
		keys = append(keys, key)
	})
	return keys
}

// Each calls fn for every member in document order.
func (o Object) Each(fn func(key string, value json.RawMessage)) {
	if o.m == nil {
		return
	}
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Clone returns a deep copy of o.
func (o Object) Clone() Object {
	var out Object
	o.Each(out.SetRaw)
	return out
}

func (o Object) MarshalJSON() ([]byte, error) {
	if o.m == nil {
		return []byte("{}"), nil
	}
	return o.m.MarshalJSON()
}

func (o *Object) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, json.RawMessage]()
	if !isNull(data) {
		if err := m.UnmarshalJSON(data); err != nil {
			return err
		}
	}
	o.m = m
	return nil
}

// Indent renders o with the given indentation and a trailing newline.
func (o Object) Indent(indent string) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: indent}), nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
