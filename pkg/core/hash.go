package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// HashContent computes a stable sha256 hash of a manifest document.
// encoding/json serializes map keys in sorted order, so two documents with the
// same field values always produce identical bytes regardless of how the maps
// were constructed.
func HashContent(content map[string]any) string {
	if len(content) == 0 {
		return ""
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// HashSpec hashes an Application spec so the loop can detect declaration
// changes that should reset retry and degraded state.
func HashSpec(spec ApplicationSpec) string {
	raw, err := json.Marshal(spec)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
