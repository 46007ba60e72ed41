package persistence

import (
	"bytes"
	"encoding/gob"

	"github.com/petrijr/revisor/pkg/api"
)

// EncodeRevision serializes a revision using encoding/gob. Custom Revision
// implementations must be gob-registered by callers; api.BasicRevision is
// registered out of the box.
func EncodeRevision(rev api.Revision) ([]byte, error) {
	if rev == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode through the interface so the concrete type travels with the
	// payload and DecodeRevision works for any registered implementation.
	iv := rev
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRevision reverses EncodeRevision. Empty input yields (nil, nil).
func DecodeRevision(data []byte) (api.Revision, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv api.Revision
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// EncodeOptions serializes a job's options bag.
func EncodeOptions(opts map[string]any) ([]byte, error) {
	if len(opts) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeOptions reverses EncodeOptions. Empty input yields (nil, nil).
func DecodeOptions(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var opts map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&opts); err != nil {
		return nil, err
	}
	return opts, nil
}
