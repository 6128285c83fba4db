package graphql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Kind identifies the shape of a Node
type Kind int

const (
	KindScalar Kind = iota
	KindArray
	KindObject
)

// Node is a parsed JSON value: *Object, Array or Scalar
type Node interface {
	Kind() Kind
	// Interface converts the node back to plain Go values
	Interface() interface{}
}

// Object is a JSON object that remembers key order
type Object struct {
	Keys   []string
	Values map[string]Node
}

// Array is a JSON array
type Array []Node

// Scalar holds a string, json.Number, bool or nil
type Scalar struct {
	Value interface{}
}

func (*Object) Kind() Kind { return KindObject }
func (Array) Kind() Kind   { return KindArray }
func (Scalar) Kind() Kind  { return KindScalar }

// Get returns the child under key, or nil
func (o *Object) Get(key string) Node {
	if o == nil {
		return nil
	}
	return o.Values[key]
}

// Has reports whether key is present
func (o *Object) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.Values[key]
	return ok
}

// Object returns the child object under key, or nil
func (o *Object) Object(key string) *Object {
	child, _ := o.Get(key).(*Object)
	return child
}

// String returns the child string under key
func (o *Object) String(key string) (string, bool) {
	s, ok := o.Get(key).(Scalar)
	if !ok {
		return "", false
	}
	str, ok := s.Value.(string)
	return str, ok
}

// Path walks nested objects, returning nil on the first missing step
func (o *Object) Path(keys ...string) Node {
	var cur Node = o
	for _, k := range keys {
		obj, ok := cur.(*Object)
		if !ok || obj == nil {
			return nil
		}
		cur = obj.Get(k)
	}
	return cur
}

func (o *Object) Interface() interface{} {
	return o.Map()
}

// Map converts the object to a plain map. Numbers stay json.Number so ids
// keep full precision.
func (o *Object) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(o.Keys))
	for _, k := range o.Keys {
		m[k] = o.Values[k].Interface()
	}
	return m
}

func (a Array) Interface() interface{} {
	out := make([]interface{}, len(a))
	for i, n := range a {
		out[i] = n.Interface()
	}
	return out
}

func (s Scalar) Interface() interface{} {
	return s.Value
}

// Parse decodes a JSON document into a Node tree
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return node, nil
}

func parseValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return Scalar{Value: t}, nil
	}
}

func parseObject(dec *json.Decoder) (*Object, error) {
	obj := &Object{Values: make(map[string]Node)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, not string", tok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		if _, dup := obj.Values[key]; !dup {
			obj.Keys = append(obj.Keys, key)
		}
		obj.Values[key] = val
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseArray(dec *json.Decoder) (Array, error) {
	arr := Array{}
	for dec.More() {
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}
