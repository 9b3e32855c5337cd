package daemon

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// identityRecord is the on-disk shape of identity.json.
type identityRecord struct {
	PeerID string `json:"peer_id"`
}

// LoadOrCreateIdentity loads the peer's stable identity from
// dir/identity.json, generating and persisting one on first launch.
// Identities look like "peer_" followed by 8 hex characters.
func LoadOrCreateIdentity(dir string) (string, error) {
	path := filepath.Join(dir, "identity.json")

	if raw, err := os.ReadFile(path); err == nil {
		var rec identityRecord
		if err := json.Unmarshal(raw, &rec); err == nil && rec.PeerID != "" {
			return rec.PeerID, nil
		}
		// Unreadable record: fall through and mint a new identity.
	}

	u := uuid.New()
	id := "peer_" + hex.EncodeToString(u[:])[:8]

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create identity dir: %w", err)
	}
	raw, err := json.MarshalIndent(identityRecord{PeerID: id}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return "", fmt.Errorf("persist identity: %w", err)
	}
	return id, nil
}
