package core

import (
	"bytes"
	"chainledger/internal/blob"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ArchivePrefix returns the key prefix under which snapshots of the named
// chain are stored.
func ArchivePrefix(chainName string) string {
	return "chains/" + archiveSlug(chainName) + "/"
}

// archiveSlug folds a chain name into a key segment: accents are stripped,
// letters lowered and every other run of characters becomes a single dash.
func archiveSlug(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "chain"
	}
	return slug
}

// Archive writes a full snapshot of the chain to store under a fresh key.
func (s *Service) Archive(ctx context.Context, store blob.Store) (blob.Info, error) {
	raw, err := json.MarshalIndent(s.chain, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode chain: %w", err)
	}
	key := ArchivePrefix(s.chain.Name) + uuid.NewString() + ".json"
	info, err := store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"chain":      s.chain.Name,
			"jumps":      strconv.Itoa(len(s.chain.JumpList)),
			"characters": strconv.Itoa(len(s.chain.CharacterList)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive chain %q: %w", s.chain.Name, err)
	}
	s.log.Info("archived chain", "chain", s.chain.Name, "key", info.Key, "driver", store.Driver(), "bytes", info.Size)
	return info, nil
}

// Archives lists the snapshots stored for the current chain name.
func (s *Service) Archives(ctx context.Context, store blob.Store) ([]blob.Info, error) {
	return store.List(ctx, ArchivePrefix(s.chain.Name))
}

// RestoreArchive replaces the chain with the snapshot at key. The snapshot
// is checked against the invariant rules first; a rejected snapshot leaves
// the current chain untouched. The next flush rewrites the whole document.
func (s *Service) RestoreArchive(ctx context.Context, store blob.Store, key string) error {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	if err := s.ImportChain(raw); err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	s.log.Info("restored chain", "chain", s.chain.Name, "key", key)
	return nil
}
