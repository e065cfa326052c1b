package tasks

import (
	"context"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/client"
)

// Reconciler brings the media index in line with what is on disk.
type Reconciler interface {
	Reconcile(ctx context.Context, progress func(int)) error
}

func NewReconcileHandler(r Reconciler) client.Handler {
	return func(ctx context.Context, job *client.JobRecord, done client.DoneFunc) error {
		done(r.Reconcile(ctx, func(pct int) { job.UpdateProgress(ctx, pct) }))
		return nil
	}
}

type MediaFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

var DefaultMediaExtensions = []string{".mp4", ".mkv", ".webm", ".mov", ".m4v", ".avi"}

// DirReconciler walks Root and hands every media file to Visit, relative to Root.
// Hidden directories are skipped.
type DirReconciler struct {
	Root       string
	Extensions []string
	Visit      func(ctx context.Context, f MediaFile) error
	log        zerolog.Logger
}

func NewDirReconciler(root string, log zerolog.Logger) *DirReconciler {
	return &DirReconciler{Root: root, Extensions: DefaultMediaExtensions, log: log}
}

func (d *DirReconciler) Reconcile(ctx context.Context, progress func(int)) error {
	files, err := d.scan(ctx)
	if err != nil {
		return err
	}
	progress(10)

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Visit != nil {
			if err := d.Visit(ctx, f); err != nil {
				return err
			}
		}
		progress(10 + 90*(i+1)/len(files))
	}

	d.log.Info().Str("root", d.Root).Int("files", len(files)).Msg("library reconciled")
	progress(100)
	return nil
}

func (d *DirReconciler) scan(ctx context.Context) ([]MediaFile, error) {
	var files []MediaFile
	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path != d.Root && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !slices.Contains(d.Extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		files = append(files, MediaFile{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	return files, err
}
