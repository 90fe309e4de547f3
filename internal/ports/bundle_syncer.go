package ports

import "context"

// BundleSyncer mirrors a published rule bundle into the local bundle
// directory.
type BundleSyncer interface {
	// Sync fetches remote bundle files that changed since the last
	// call. It reports whether any local file was updated.
	Sync(ctx context.Context) (bool, error)
}
