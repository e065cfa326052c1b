package tasks

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/client"
	"github.com/talkvault/talkvault/internal/constants"
	"github.com/talkvault/talkvault/internal/lock"
)

// Collaborators are the external systems the task handlers drive. A nil collaborator leaves its task unregistered.
type Collaborators struct {
	Fetcher    Fetcher
	Reconciler Reconciler
	Hasher     Hasher
	Metadata   MetadataGenerator
}

// Register adds the talkvault task types to m. download and reconcile both write into the library,
// so they share the library-write lock.
func Register(m *client.JobManager, locks lock.Manager, c Collaborators, libraryDir string, concurrency map[string]int, log zerolog.Logger) error {
	type entry struct {
		name    string
		handler client.Handler
		guarded bool
	}

	var entries []entry
	if c.Fetcher != nil {
		entries = append(entries, entry{constants.TaskDownload, NewDownloadHandler(c.Fetcher, libraryDir), true})
	}
	if c.Reconciler != nil {
		entries = append(entries, entry{constants.TaskReconcile, NewReconcileHandler(c.Reconciler), true})
	}
	if c.Hasher != nil {
		entries = append(entries, entry{constants.TaskThumbnailHash, NewThumbnailHashHandler(c.Hasher, libraryDir), false})
	}
	if c.Metadata != nil {
		entries = append(entries, entry{constants.TaskMetadata, NewMetadataHandler(c.Metadata, libraryDir), false})
	}

	for _, e := range entries {
		h := e.handler
		if e.guarded {
			h = WithLock(locks, constants.LibraryWriteLock, log, h)
		}
		limit, ok := concurrency[e.name]
		if !ok {
			limit = constants.DefaultWorkerLimit
		}
		if err := m.AddWorker(e.name, h, limit); err != nil {
			return fmt.Errorf("failed to register %s: %w", e.name, err)
		}
	}
	return nil
}
