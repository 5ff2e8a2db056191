package kernel

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Properties holds open, caller defined attributes attached to an aggregate
// next to its typed fields.
type Properties map[string]any

// Get returns the value stored under key
func (p Properties) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// Clone returns a shallow copy; nil stays nil
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// MarshalFlat encodes known and then adds every property whose name is not a
// known field. The result is a single JSON object.
func MarshalFlat(known any, props Properties) ([]byte, error) {
	raw, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(props) == 0 {
		return raw, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range props {
		if _, exists := merged[k]; exists {
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = encoded
	}
	return json.Marshal(merged)
}

// UnmarshalFlat decodes data into known (a pointer to a struct) and returns
// the members that do not belong to it as Properties.
func UnmarshalFlat(data []byte, known any) (Properties, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	keys := jsonKeys(reflect.TypeOf(known))
	var props Properties
	for k, v := range all {
		if _, ok := keys[k]; ok {
			continue
		}
		if props == nil {
			props = make(Properties)
		}
		props[k] = v
	}
	return props, nil
}

var jsonKeyCache sync.Map

func jsonKeys(t reflect.Type) map[string]struct{} {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := jsonKeyCache.Load(t); ok {
		return cached.(map[string]struct{})
	}

	keys := make(map[string]struct{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			if f.Anonymous {
				for k := range jsonKeys(f.Type) {
					keys[k] = struct{}{}
				}
				continue
			}
			name = f.Name
		}
		keys[name] = struct{}{}
	}
	jsonKeyCache.Store(t, keys)
	return keys
}
