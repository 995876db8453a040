package network

import (
	"context"
)

// BlockStore is the narrow contract the sink needs from a backing object
// store. Blocks are staged under caller-generated IDs and become part of the
// destination object only when the ordered block list is committed.
type BlockStore interface {
	// ValidateContainer reports whether the destination container exists and is reachable.
	ValidateContainer(ctx context.Context) (bool, error)
	// CreateObject creates the destination object empty. Safe to call once per session.
	CreateObject(ctx context.Context) error
	// StageBlock uploads a single block under the given ID.
	StageBlock(ctx context.Context, blockID string, data []byte) error
	// CommitObject assembles the staged blocks, in the given order, into the final object.
	CommitObject(ctx context.Context, blockIDs []string) error
	// Close releases the underlying client resources.
	Close()
}
