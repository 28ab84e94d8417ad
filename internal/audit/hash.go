package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ComputeIntegrityHash hashes the core fields of an entry. The canonical form
// is a JSON object with keys in sorted order and empty fields omitted, so the
// hash is stable across storage round-trips regardless of column defaults.
// Metadata is deliberately excluded: the hash lives there.
func ComputeIntegrityHash(e *Entry) (string, error) {
	core := map[string]any{
		"deletionRequestId": e.DeletionRequestID.String(),
		"action":            string(e.Action),
		"performedBy":       e.PerformedBy,
		"performedByType":   string(e.PerformedByType),
		"createdAt":         e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	putNonEmpty(core, "performedByRole", e.PerformedByRole)
	putNonEmpty(core, "tableName", e.TableName)
	putNonEmpty(core, "recordId", e.RecordID)
	putNonEmpty(core, "previousStatus", e.PreviousStatus)
	putNonEmpty(core, "newStatus", e.NewStatus)
	putNonEmpty(core, "actionDetails", e.ActionDetails)
	putNonEmpty(core, "ipAddress", e.IPAddress)
	putNonEmpty(core, "userAgent", e.UserAgent)
	putNonEmpty(core, "sessionId", e.SessionID)
	if e.RecordCount != 0 {
		core["recordCount"] = e.RecordCount
	}

	// encoding/json writes map keys in sorted order, which is the canonical
	// ordering the hash depends on.
	raw, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("canonicalize audit entry: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyEntry recomputes the entry's hash and compares it with the stored
// one. Entries without a stored hash fail verification: an attacker who can
// rewrite rows can also drop the hash.
func VerifyEntry(e *Entry) (bool, error) {
	stored := e.IntegrityHash()
	if stored == "" {
		return false, nil
	}
	computed, err := ComputeIntegrityHash(e)
	if err != nil {
		return false, err
	}
	return stored == computed, nil
}

func putNonEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
