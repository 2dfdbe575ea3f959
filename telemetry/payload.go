package telemetry

import (
	"encoding/json"
	"sort"
)

// WindowUpdate is the payload a submitEdits call carries: the telemetry
// delta to merge into a session's Window plus the context the Lesson
// Synthesizer needs.
type WindowUpdate struct {
	SessionID string       `json:"session_id"`
	UserLevel string       `json:"user_level,omitempty"`
	Edits     []EditEvent  `json:"edits"`
	Errors    []ErrorEvent `json:"errors"`
}

// NormalizeWindowBounds canonicalizes a WindowUpdate for fingerprinting:
// sorted signatures and file paths, timestamps dropped, since the
// fingerprint identifies "this session, these signatures" rather than
// "these events at these instants."
func NormalizeWindowBounds(payload []byte) ([]byte, error) {
	var u WindowUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil, err
	}

	signatures := make([]string, 0, len(u.Errors))
	seen := make(map[string]struct{})
	for _, e := range u.Errors {
		if _, ok := seen[e.Signature]; !ok {
			seen[e.Signature] = struct{}{}
			signatures = append(signatures, e.Signature)
		}
	}
	sort.Strings(signatures)

	files := make([]string, 0, len(u.Edits))
	fseen := make(map[string]struct{})
	for _, e := range u.Edits {
		if _, ok := fseen[e.FilePath]; !ok {
			fseen[e.FilePath] = struct{}{}
			files = append(files, e.FilePath)
		}
	}
	sort.Strings(files)

	canonical := struct {
		SessionID  string   `json:"session_id"`
		Signatures []string `json:"signatures"`
		Files      []string `json:"files"`
	}{SessionID: u.SessionID, Signatures: signatures, Files: files}

	return json.Marshal(canonical)
}
