// Package filecache persists the last resolved catalog per client as a
// versioned blob on the local filesystem.
package filecache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/amberlow/catalink/internal/resolver"
)

var _ resolver.Store = (*Store)(nil)

// Store implements resolver.Store with one JSON blob file per client id
// under a base directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache directory")
	}
	return &Store{dir: dir}, nil
}

// path maps a client id to its blob file. Ids are sanitized so a hostile id
// cannot escape the cache directory.
func (s *Store) path(clientID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, clientID)
	return filepath.Join(s.dir, safe+".catalog.json")
}

// Load implements resolver.Store.
func (s *Store) Load(ctx context.Context, clientID string) (*resolver.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.path(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, resolver.ErrCacheMiss
		}
		return nil, errors.Wrap(err, "read cache entry")
	}

	entry, err := decodeEntry(blob)
	if err != nil {
		return nil, errors.Wrap(err, "parse cache entry")
	}
	if entry.Version != resolver.CacheEntryVersion {
		return nil, errors.Errorf("unsupported cache entry version %d", entry.Version)
	}
	return entry, nil
}

// Save implements resolver.Store. Writes are atomic: a temp file in the same
// directory is renamed over the destination, so readers never observe a
// partial blob.
func (s *Store) Save(ctx context.Context, entry *resolver.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blob := encodeEntry(entry)
	dst := s.path(entry.ClientID)

	tmp, err := os.CreateTemp(s.dir, ".catalog-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write cache entry")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return errors.Wrap(err, "replace cache entry")
	}
	return nil
}

func encodeEntry(entry *resolver.CacheEntry) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("version")
	e.Int(entry.Version)
	e.FieldStart("clientId")
	e.Str(entry.ClientID)
	e.FieldStart("resolvedAt")
	e.Int64(entry.ResolvedAt.Unix())
	e.FieldStart("transport")
	e.Str(entry.Transport)
	e.ObjEnd()
	return e.Bytes()
}

func decodeEntry(blob []byte) (*resolver.CacheEntry, error) {
	entry := &resolver.CacheEntry{}
	d := jx.DecodeBytes(blob)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			v, err := d.Int()
			entry.Version = v
			return err
		case "clientId":
			v, err := d.Str()
			entry.ClientID = v
			return err
		case "resolvedAt":
			sec, err := d.Int64()
			entry.ResolvedAt = time.Unix(sec, 0).UTC()
			return err
		case "transport":
			v, err := d.Str()
			entry.Transport = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
