package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest returns the SHA-256 of the RFC 8785 canonical form of the bullets
// and paths_count. Two runs over the same input and configuration produce
// the same digest; elapsed time is excluded.
func Digest(b *Bundle) (string, error) {
	raw, err := json.Marshal(struct {
		Bullets    []Bullet `json:"bullets"`
		PathsCount int      `json:"paths_count"`
	}{b.Bullets, b.Stats.PathsCount})
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize bundle: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
