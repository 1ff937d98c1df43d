package policy

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// FirestoreSink writes audit entries to a Firestore collection for
// durable retention across restarts.
type FirestoreSink struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreSink connects to Firestore. Credentials follow the
// standard application-default chain unless a credentials file is given.
func NewFirestoreSink(ctx context.Context, projectID, collection, credentialsFile string) (*FirestoreSink, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	if collection == "" {
		collection = "audit_entries"
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreSink{client: client, collection: collection}, nil
}

func (s *FirestoreSink) Write(ctx context.Context, entry AuditEntry) error {
	_, _, err := s.client.Collection(s.collection).Add(ctx, map[string]any{
		"transaction_id": entry.TransactionID,
		"timestamp":      entry.Timestamp,
		"subject_id":     entry.SubjectID,
		"role":           entry.Role,
		"resource_type":  string(entry.ResourceType),
		"resource_id":    entry.ResourceID,
		"operation":      entry.Operation,
		"allowed":        entry.Allowed,
		"reason":         entry.Reason,
		"latency_ns":     int64(entry.Latency),
	})
	return err
}

// Close releases the Firestore client.
func (s *FirestoreSink) Close() error {
	return s.client.Close()
}
