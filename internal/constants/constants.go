package constants

import "time"

// Postgres advisory lock ids used by process-level bootstrapping.
const (
	MigrationLock = iota + 7300
)

// Task names registered by the talkvault service.
const (
	TaskDownload      = "download"
	TaskReconcile     = "reconcile"
	TaskThumbnailHash = "thumbnail-hash"
	TaskMetadata      = "metadata"
)

// Lock names shared between task types that must never interleave.
const (
	// LibraryWriteLock serializes every task that writes into the media library directory.
	LibraryWriteLock = "library-write"
)

const (
	DefaultTickInterval   = 500 * time.Millisecond
	DefaultWorkerLimit    = 1
	DefaultStopTimeout    = 30 * time.Second
	DefaultListenerBuffer = 64
	MaxProgress           = 100
	MinProgress           = 0
)
