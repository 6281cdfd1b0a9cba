package db

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"

	"github.com/example/quakealert/internal/models"
)

type firestoreAuditRepository struct {
	client *firestore.Client
}

// Create writes an audit entry with a server timestamp.
func (r *firestoreAuditRepository) Create(ctx context.Context, logEntry models.AuditLog) error {
	if _, _, err := r.client.Collection(auditLogsCollection).Add(ctx, logEntry); err != nil {
		return mapError(err, fmt.Sprintf("create audit log '%s'", logEntry.Action))
	}
	return nil
}

func (r *firestoreAuditRepository) ListByUser(ctx context.Context, userID string) ([]models.AuditLog, error) {
	q := r.client.Collection(auditLogsCollection).Where("userId", "==", userID)
	entries, err := getAll(ctx, q, func(doc *firestore.DocumentSnapshot) (models.AuditLog, error) {
		var entry models.AuditLog
		if err := doc.DataTo(&entry); err != nil {
			return entry, err
		}
		entry.ID = doc.Ref.ID
		return entry, nil
	})
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("audit logs of '%s'", userID))
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	return entries, nil
}
