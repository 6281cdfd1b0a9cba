package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
)

// auditService implements the AuditService interface.
type auditService struct {
	auditRepo db.AuditRepository
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(auditRepo db.AuditRepository) AuditService {
	return &auditService{
		auditRepo: auditRepo,
	}
}

// CreateAuditLog creates a new audit log entry.
func (s *auditService) CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error {
	if s.auditRepo == nil {
		return fmt.Errorf("AuditRepository not initialized in AuditService")
	}
	if err := s.auditRepo.Create(ctx, logEntry); err != nil {
		return fmt.Errorf("failed to create audit log via repository: %w", err)
	}
	return nil
}

// recordAudit writes logEntry and only logs a failure. Audit entries never
// decide the outcome of the operation they describe.
func recordAudit(ctx context.Context, audit AuditService, logger *zap.Logger, logEntry models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.CreateAuditLog(ctx, logEntry); err != nil {
		logger.Warn("Failed to write audit log",
			zap.String("action", logEntry.Action),
			zap.String("userID", logEntry.UserID),
			zap.String("targetID", logEntry.TargetID),
			zap.Error(err))
	}
}
