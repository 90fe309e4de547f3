// Package bundlesync keeps the local bundle directory aligned with
// wherever the published bundle lives.
package bundlesync

import "context"

// Local is the null syncer for deployments where the bundle directory
// is maintained in place by configuration management.
type Local struct{}

// NewLocal creates a new local syncer
func NewLocal() Local {
	return Local{}
}

// Sync implements ports.BundleSyncer; there is nothing to fetch.
func (Local) Sync(ctx context.Context) (bool, error) {
	return false, nil
}
