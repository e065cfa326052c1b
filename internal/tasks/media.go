package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/talkvault/talkvault/client"
)

var ErrMissingPath = errors.New("job has no path")

// MediaPayload names one recording of the library, relative to the library directory.
type MediaPayload struct {
	Path string `json:"path"`
}

// Hasher computes the fingerprint used to detect changed thumbnails.
type Hasher interface {
	Hash(ctx context.Context, path string) (string, error)
}

// MetadataGenerator writes the metadata that media players read next to a recording.
type MetadataGenerator interface {
	Generate(ctx context.Context, path string) error
}

func NewThumbnailHashHandler(h Hasher, libraryDir string) client.Handler {
	return func(ctx context.Context, job *client.JobRecord, done client.DoneFunc) error {
		path, err := mediaPath(job, libraryDir)
		if err != nil {
			return err
		}
		_, err = h.Hash(ctx, path)
		done(err)
		return nil
	}
}

func NewMetadataHandler(g MetadataGenerator, libraryDir string) client.Handler {
	return func(ctx context.Context, job *client.JobRecord, done client.DoneFunc) error {
		path, err := mediaPath(job, libraryDir)
		if err != nil {
			return err
		}
		done(g.Generate(ctx, path))
		return nil
	}
}

func mediaPath(job *client.JobRecord, libraryDir string) (string, error) {
	var p MediaPayload
	if err := job.Bind(&p); err != nil {
		return "", err
	}
	if p.Path == "" {
		return "", ErrMissingPath
	}
	if filepath.IsAbs(p.Path) {
		return p.Path, nil
	}
	return filepath.Join(libraryDir, p.Path), nil
}

// FileHasher hashes the thumbnail stored next to a recording (same name, .jpg) and falls back to the
// recording itself when there is none.
type FileHasher struct{}

func (FileHasher) Hash(ctx context.Context, path string) (string, error) {
	target := thumbnailPath(path)
	if _, err := os.Stat(target); err != nil {
		target = path
	}

	f, err := os.Open(target)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, readerWithContext(ctx, f)); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", target, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func thumbnailPath(path string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ".jpg"
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

type sidecar struct {
	File          string    `json:"file"`
	Size          int64     `json:"size"`
	ModifiedAt    time.Time `json:"modified_at"`
	ThumbnailHash string    `json:"thumbnail_hash,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// SidecarGenerator writes <recording>.json with the file facts talkvault knows locally.
// Conference data from remote APIs is merged by the web application, not here.
type SidecarGenerator struct {
	Hasher Hasher
	Now    func() time.Time
}

func (g SidecarGenerator) Generate(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	meta := sidecar{
		File:        filepath.Base(path),
		Size:        info.Size(),
		ModifiedAt:  info.ModTime().UTC(),
		GeneratedAt: now().UTC(),
	}
	if g.Hasher != nil {
		if meta.ThumbnailHash, err = g.Hasher.Hash(ctx, path); err != nil {
			return err
		}
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	out := path[:len(path)-len(filepath.Ext(path))] + ".json"
	tmp := out + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, out)
}
