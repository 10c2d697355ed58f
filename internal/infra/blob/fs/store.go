// Package fs implements the filesystem object store backend.
//
// Objects live under a configurable root directory. Each object carries a
// JSON sidecar (<path>.meta) holding content type, user metadata, a sha256
// etag and the write timestamp. Writes stream through a temp file and move
// into place with a rename, so readers never observe partial content.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stitchcore/internal/blob/core"
)

const (
	defaultRoot   = "./blobdata"
	sidecarSuffix = ".meta"
)

// Store implements core.Store on the local filesystem. It is the default
// backend for development and single-node deployments.
type Store struct {
	root string
}

// New returns a filesystem store rooted at path, creating the directory if
// needed. An empty root selects ./blobdata.
func New(root string) (*Store, error) {
	if root == "" {
		root = defaultRoot
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Root returns the configured directory root.
func (s *Store) Root() string { return s.root }

// Driver returns the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey rejects keys that could escape the root or collide with a
// sidecar file.
func sanitizeKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("absolute key %q", key)
	}
	if strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("key %q contains '..'", key)
	}
	if strings.HasSuffix(trimmed, sidecarSuffix) {
		return "", fmt.Errorf("key %q collides with sidecar suffix", key)
	}
	clean := filepath.ToSlash(filepath.Clean(trimmed))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("key %q escapes root", key)
	}
	return clean, nil
}

func (s *Store) paths(key string) (dataPath, metaPath string, err error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, filepath.FromSlash(clean))
	return dataPath, dataPath + sidecarSuffix, nil
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	WrittenAt   time.Time         `json:"written_at"`
}

func (s *Store) infoFor(key string, sc sidecar) core.Info {
	return core.Info{
		Key:          key,
		Size:         sc.Size,
		ContentType:  sc.ContentType,
		ETag:         sc.ETag,
		Metadata:     cloneMetadata(sc.Metadata),
		LastModified: sc.WrittenAt,
		URL:          s.devURL(key),
	}
}

// Put streams r to a temp file, fsyncs, renames into place and records the
// sidecar. Existing keys are rejected; callers replacing an object delete it
// first.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".put-*")
	if err != nil {
		return core.Info{}, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err != nil {
		_ = tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmpName, dataPath); err != nil {
		return core.Info{}, err
	}

	sc := sidecar{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		WrittenAt:   time.Now().UTC(),
	}
	if err := writeSidecar(metaPath, sc); err != nil {
		// Without a sidecar the object is invisible to Head/List; drop the
		// data file rather than leave an orphan behind.
		_ = os.Remove(dataPath)
		return core.Info{}, err
	}
	return s.infoFor(key, sc), nil
}

// Get opens the object for reading along with its recorded metadata.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return s.infoFor(key, sc), file, nil
}

// Head returns recorded metadata without opening the object.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return core.Info{}, err
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		return core.Info{}, err
	}
	return s.infoFor(key, sc), nil
}

// Delete removes the object and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root collecting sidecars and filters by prefix. Ordering is
// stable, key ascending.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, sidecarSuffix) {
			return nil
		}
		sc, err := readSidecar(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, sidecarSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, s.infoFor(key, sc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a development pseudo URL; only GET is supported.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	if _, err := sanitizeKey(key); err != nil {
		return "", err
	}
	return s.devURL(key), nil
}

// devURL yields a stable opaque URL; the blob.local host marks it as a
// development artifact rather than a signed endpoint.
func (s *Store) devURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "blob.local", Path: "/" + key}).String()
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeSidecar(path string, sc sidecar) error {
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readSidecar(path string) (sidecar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		return sidecar{}, err
	}
	return sc, nil
}
