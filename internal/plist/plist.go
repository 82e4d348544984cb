// Package plist parses and re-encodes Apple property lists (binary or XML)
// on behalf of the injection planner, which reads Manifest.plist and
// Info.plist out of an IPA and re-emits iTunesMetadata.plist as binary.
package plist

import (
	"bytes"

	"howett.net/plist"
)

// binaryMagic is the leading bytes of a binary plist container.
const binaryMagic = "bplist"

// Parse accepts either a binary (magic "bplist") or XML plist and yields a
// generic value tree, typically a map[string]interface{}. It returns an
// error if the bytes are neither.
func Parse(data []byte) (interface{}, error) {
	var v interface{}
	_, err := plist.Unmarshal(data, &v)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// IsBinary reports whether data begins with the binary plist magic.
func IsBinary(data []byte) bool {
	return bytes.HasPrefix(data, []byte(binaryMagic))
}

// GetString performs a typed lookup of a string value at key, returning
// ("", false) on absence or type mismatch.
func GetString(value interface{}, key string) (string, bool) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// GetStringArray performs a typed lookup of a string-array value at key,
// returning (nil, false) on absence or type mismatch. Mixed-type arrays
// fail the whole lookup rather than silently dropping non-string elements,
// since a partial SinfPaths list would misalign SINF tuples with paths.
func GetStringArray(value interface{}, key string) ([]string, bool) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// XMLToBinary re-emits an XML plist document as binary. Callers fall back
// to injecting the original bytes verbatim when this fails, since a
// malformed-but-acceptable-to-iOS metadata plist is better than none.
func XMLToBinary(xml []byte) ([]byte, error) {
	var v interface{}
	if _, err := plist.Unmarshal(xml, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := plist.NewBinaryEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
