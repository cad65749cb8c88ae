// ABOUTME: JSON decoding into ordered value trees for JSON-RPC envelopes.
// ABOUTME: Malformed input yields an empty object from Parse rather than an error.

package jsonwire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrSyntax is returned by ParseValue for malformed JSON text.
var ErrSyntax = errors.New("jsonwire: syntax error")

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 512

// Parse decodes a JSON object. Anything that is not exactly one well-formed
// object (blank input, arrays, scalars, unterminated strings, unbalanced
// brackets, trailing text) yields an empty object, which callers treat as a
// parse failure.
func Parse(data []byte) *Object {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return NewObject()
	}
	v, err := ParseValue(trimmed)
	if err != nil {
		return NewObject()
	}
	obj, ok := v.(*Object)
	if !ok {
		return NewObject()
	}
	return obj
}

// ParseString is Parse for string input.
func ParseString(s string) *Object {
	return Parse([]byte(s))
}

// ParseValue decodes any JSON value: nil, bool, int64, float64, string, *Object or []any.
// Numbers without a fraction or exponent decode as int64 unless they overflow.
func ParseValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, wrapSyntax(err)
	}
	v, err := parseValue(dec, tok, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after value", ErrSyntax)
	}
	return v, nil
}

func parseValue(dec *json.Decoder, tok json.Token, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting exceeds %d levels", ErrSyntax, maxDepth)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec, depth+1)
		case '[':
			return parseArray(dec, depth+1)
		}
		return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, t.String())
	case json.Number:
		return parseNumber(t)
	case string, bool, nil:
		return t, nil
	}
	return nil, fmt.Errorf("%w: unexpected token %v", ErrSyntax, tok)
}

func parseObject(dec *json.Decoder, depth int) (*Object, error) {
	obj := NewObject()
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapSyntax(err)
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return obj, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key must be a string", ErrSyntax)
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, wrapSyntax(err)
		}
		val, err := parseValue(dec, valTok, depth)
		if err != nil {
			return nil, err
		}
		obj.Set(key, val)
	}
}

func parseArray(dec *json.Decoder, depth int) ([]any, error) {
	arr := []any{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, wrapSyntax(err)
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return arr, nil
		}
		val, err := parseValue(dec, tok, depth)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
}

func parseNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid number %q", ErrSyntax, s)
	}
	return f, nil
}

func wrapSyntax(err error) error {
	if errors.Is(err, ErrSyntax) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", ErrSyntax, err)
}
