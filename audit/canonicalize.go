package audit

import "encoding/json"

// Canonicalize normalizes an AuditPayload for fingerprinting: the raw
// diff bytes themselves already are the canonical content, so this just
// validates the envelope shape and re-marshals it deterministically.
func Canonicalize(payload []byte) ([]byte, error) {
	var p AuditPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
