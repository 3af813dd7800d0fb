package store

import (
	"context"
	"fmt"

	"mcpconnect/pkg/logging"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBackend stores one document per record, keyed by server id.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
}

var _ Backend = (*FirestoreBackend)(nil)

// NewFirestoreBackend connects to Firestore. An empty database or
// "(default)" selects the default database.
func NewFirestoreBackend(ctx context.Context, projectID, database, collection string) (*FirestoreBackend, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	logging.Info("FirestoreStore", "Using Firestore collection %s in project %s", collection, projectID)
	return &FirestoreBackend{client: client, collection: collection}, nil
}

func (f *FirestoreBackend) Get(ctx context.Context, id string) (*Record, error) {
	doc, err := f.client.Collection(f.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get record %s from Firestore: %w", id, err)
	}

	var rec Record
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return &rec, nil
}

func (f *FirestoreBackend) Put(ctx context.Context, rec *Record) error {
	if _, err := f.client.Collection(f.collection).Doc(rec.ID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to store record %s in Firestore: %w", rec.ID, err)
	}
	return nil
}

func (f *FirestoreBackend) List(ctx context.Context) ([]*Record, error) {
	iter := f.client.Collection(f.collection).Documents(ctx)
	defer iter.Stop()

	var out []*Record
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating Firestore documents: %w", err)
		}

		var rec Record
		if err := doc.DataTo(&rec); err != nil {
			logging.Warn("FirestoreStore", "Skipping malformed record %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, &rec)
	}
	sortRecords(out)
	return out, nil
}

func (f *FirestoreBackend) Delete(ctx context.Context, id string) error {
	ref := f.client.Collection(f.collection).Doc(id)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return &NotFoundError{ID: id}
		}
		return fmt.Errorf("failed to get record %s from Firestore: %w", id, err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete record %s from Firestore: %w", id, err)
	}
	return nil
}

func (f *FirestoreBackend) Close() error {
	return f.client.Close()
}
