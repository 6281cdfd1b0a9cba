package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
	"github.com/example/quakealert/pkg/messagequeue"
)

// SOSReport summarizes one broadcast. Attempted counts the emergency contacts
// a message was written for; Failed lists the ones whose write failed.
type SOSReport struct {
	Attempted int      `json:"attempted"`
	Delivered int      `json:"delivered"`
	Failed    []string `json:"failed"`
}

// SOSAlertEvent is published to the SOS queue after a broadcast.
type SOSAlertEvent struct {
	ActorID   string           `json:"actorId"`
	Attempted int              `json:"attempted"`
	Delivered int              `json:"delivered"`
	Location  *models.Location `json:"location,omitempty"`
	SentAt    time.Time        `json:"sentAt"`
}

// FormatSOSMessage renders the alert body sent to every emergency contact.
func FormatSOSMessage(displayName string, location *models.Location, sentAt time.Time) string {
	where := "Location unavailable."
	if location != nil {
		where = fmt.Sprintf("Location: https://maps.google.com/?q=%s,%s.",
			strconv.FormatFloat(location.Lat, 'f', -1, 64),
			strconv.FormatFloat(location.Lng, 'f', -1, 64))
	}
	return fmt.Sprintf("🚨 SOS ALERT: %s needs help! %s Sent at %s.", displayName, where, sentAt.UTC().Format(time.RFC1123))
}

// sosService implements SOSService.
type sosService struct {
	userRepo     db.UserRepository
	messageRepo  db.MessageRepository
	auditService AuditService
	queue        messagequeue.MessageQueue
	queueName    string
	maxParallel  int
	logger       *zap.Logger
	now          func() time.Time
}

// NewSOSService creates an SOSService. queue may be nil when no broker is configured.
func NewSOSService(
	userRepo db.UserRepository,
	messageRepo db.MessageRepository,
	auditService AuditService,
	queue messagequeue.MessageQueue,
	queueName string,
	maxParallel int,
	logger *zap.Logger,
) SOSService {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &sosService{
		userRepo:     userRepo,
		messageRepo:  messageRepo,
		auditService: auditService,
		queue:        queue,
		queueName:    queueName,
		maxParallel:  maxParallel,
		logger:       logger,
		now:          time.Now,
	}
}

// SendSOS writes one system message into the direct channel with every
// emergency contact. Writes are independent: a failed recipient is reported
// in the result and never stops the others.
func (s *sosService) SendSOS(ctx context.Context, actorID string, location *models.Location) (*SOSReport, error) {
	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, storeErr(err, "get user '%s'", actorID)
	}
	if len(actor.EmergencyContactIDs) == 0 {
		return nil, ErrNoEmergencyContacts
	}

	var recipients []string
	seen := make(map[string]bool)
	for _, id := range actor.EmergencyContactIDs {
		if seen[id] || !actor.HasContact(id) {
			continue
		}
		seen[id] = true
		recipients = append(recipients, id)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: none of %d emergency ids is a current contact", ErrNoEmergencyContacts, len(actor.EmergencyContactIDs))
	}

	name := actor.DisplayName
	if name == "" {
		name = actor.Email
	}
	sentAt := s.now()
	body := FormatSOSMessage(name, location, sentAt)

	report := &SOSReport{Attempted: len(recipients), Failed: []string{}}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.maxParallel)
	for _, recipientID := range recipients {
		recipientID := recipientID
		g.Go(func() error {
			channel := DirectChannel(actorID, recipientID)
			msg := &models.Message{Text: body, SenderID: models.SystemSenderID}
			_, err := s.messageRepo.Create(ctx, channel, msg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, recipientID)
				sosDeliveries.WithLabelValues("failed").Inc()
				s.logger.Warn("SOS delivery failed",
					zap.String("actorID", actorID),
					zap.String("recipientID", recipientID),
					zap.Error(err))
				return nil
			}
			report.Delivered++
			sosDeliveries.WithLabelValues("delivered").Inc()
			messagesSent.WithLabelValues(string(models.ChannelDirect)).Inc()
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Failed)

	s.logger.Info("SOS broadcast",
		zap.String("actorID", actorID),
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Strings("failed", report.Failed))

	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     actorID,
		Action:     models.AuditSOSBroadcast,
		TargetType: "USER",
		TargetID:   actorID,
		Details: map[string]interface{}{
			"attempted": report.Attempted,
			"delivered": report.Delivered,
			"failed":    report.Failed,
		},
	})
	s.publish(SOSAlertEvent{
		ActorID:   actorID,
		Attempted: report.Attempted,
		Delivered: report.Delivered,
		Location:  location,
		SentAt:    sentAt.UTC(),
	})
	return report, nil
}

func (s *sosService) publish(event SOSAlertEvent) {
	if s.queue == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("Failed to encode SOS event", zap.String("actorID", event.ActorID), zap.Error(err))
		return
	}
	if err := s.queue.Publish(s.queueName, body); err != nil {
		s.logger.Warn("Failed to publish SOS event", zap.String("actorID", event.ActorID), zap.String("queue", s.queueName), zap.Error(err))
	}
}
