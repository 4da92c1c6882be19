// Package cloud holds the remote directory and attendance store contracts
// consumed by the agent, plus a Firestore implementation and an in-memory
// implementation with the same merge semantics.
package cloud

import "context"

// Document is one entry of a remote collection.
type Document struct {
	ID     string
	Fields map[string]any
}

// DirectorySource lists a whole remote collection.
type DirectorySource interface {
	ListAll(ctx context.Context, collection string) ([]Document, error)
}

// AttendanceSink performs partial merge writes. Fields not named in fields
// are left untouched; the document is created when absent.
type AttendanceSink interface {
	MergeUpsert(ctx context.Context, collection, docID string, fields map[string]any) error
}

type serverTimestamp struct{}

// ServerTimestamp, used as a field value, asks the remote store to fill in
// its own commit time.
var ServerTimestamp any = serverTimestamp{}

func isServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}
