package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalJSON returns the canonical structured encoding of v: its JSON
// form re-marshaled through a map so object keys come out sorted. Claims are
// signed over exactly these bytes.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal claim: %w", err)
	}

	// UseNumber keeps integer amounts exact through the round trip.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rawMap map[string]any
	if err := dec.Decode(&rawMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into map: %w", err)
	}

	// encoding/json sorts map keys, nested maps included.
	canonical, err := json.Marshal(rawMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create canonical json: %w", err)
	}
	return canonical, nil
}
