package cloud

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

type Firestore struct {
	client *firestore.Client
}

// NewFirestore opens a Firestore client. An empty projectID is detected from
// the credentials; an empty credentialsFile falls back to application
// default credentials.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Firestore{client: client}, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) ListAll(ctx context.Context, collection string) ([]Document, error) {
	snaps, err := f.client.Collection(collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("ListAll %s: %w", collection, err)
	}

	out := make([]Document, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, Document{ID: s.Ref.ID, Fields: s.Data()})
	}
	return out, nil
}

func (f *Firestore) MergeUpsert(ctx context.Context, collection, docID string, fields map[string]any) error {
	data := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if isServerTimestamp(v) {
			v = firestore.ServerTimestamp
		}
		data[k] = v
	}

	if _, err := f.client.Collection(collection).Doc(docID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("MergeUpsert %s/%s: %w", collection, docID, err)
	}
	return nil
}
