package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/example/quakealert/internal/models"
)

// ownerWrites accumulates the array transforms for one user document.
type ownerWrites struct {
	addContacts     []interface{}
	removeContacts  []interface{}
	removeEmergency []interface{}
}

// firestoreGraphBatch commits contact-graph writes in one transaction. Writes
// to the same user are merged into a single update.
type firestoreGraphBatch struct {
	client   *firestore.Client
	order    []string
	owners   map[string]*ownerWrites
	requests [][2]string
	discards [][2]string
}

func (b *firestoreGraphBatch) owner(ownerID string) *ownerWrites {
	if b.owners == nil {
		b.owners = make(map[string]*ownerWrites)
	}
	w, ok := b.owners[ownerID]
	if !ok {
		w = &ownerWrites{}
		b.owners[ownerID] = w
		b.order = append(b.order, ownerID)
	}
	return w
}

func (b *firestoreGraphBatch) AddContact(ownerID string, ref models.ContactRef) {
	w := b.owner(ownerID)
	w.addContacts = append(w.addContacts, ref)
}

func (b *firestoreGraphBatch) RemoveContact(ownerID string, ref models.ContactRef) {
	w := b.owner(ownerID)
	w.removeContacts = append(w.removeContacts, ref)
}

func (b *firestoreGraphBatch) RemoveEmergencyContact(ownerID, contactID string) {
	w := b.owner(ownerID)
	w.removeEmergency = append(w.removeEmergency, contactID)
}

func (b *firestoreGraphBatch) DeleteFriendRequest(recipientID, requestID string) {
	b.requests = append(b.requests, [2]string{recipientID, requestID})
}

func (b *firestoreGraphBatch) DiscardFriendRequest(recipientID, requestID string) {
	b.discards = append(b.discards, [2]string{recipientID, requestID})
}

func (b *firestoreGraphBatch) requestRef(r [2]string) *firestore.DocumentRef {
	return b.client.Collection(usersCollection).Doc(r[0]).Collection(pendingRequestsCollection).Doc(r[1])
}

func (b *firestoreGraphBatch) Commit(ctx context.Context) error {
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, ownerID := range b.order {
			w := b.owners[ownerID]
			updates := []firestore.Update{{Path: "updatedAt", Value: firestore.ServerTimestamp}}
			if len(w.addContacts) > 0 {
				updates = append(updates, firestore.Update{Path: "contacts", Value: firestore.ArrayUnion(w.addContacts...)})
			}
			if len(w.removeContacts) > 0 {
				updates = append(updates, firestore.Update{Path: "contacts", Value: firestore.ArrayRemove(w.removeContacts...)})
			}
			if len(w.removeEmergency) > 0 {
				updates = append(updates, firestore.Update{Path: "emergencyContactIds", Value: firestore.ArrayRemove(w.removeEmergency...)})
			}
			if err := tx.Update(b.client.Collection(usersCollection).Doc(ownerID), updates); err != nil {
				return err
			}
		}
		for _, r := range b.requests {
			if err := tx.Delete(b.requestRef(r), firestore.Exists); err != nil {
				return err
			}
		}
		for _, r := range b.discards {
			if err := tx.Delete(b.requestRef(r)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapError(err, fmt.Sprintf("commit contact batch (%d users, %d requests)", len(b.order), len(b.requests)))
	}
	return nil
}
