package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/pkg/jobs"
)

// Admission notification event types.
const (
	EventAdmissionSubmitted = "admission.submitted"
	EventAdmissionApproved  = "admission.approved"
	EventAdmissionRejected  = "admission.rejected"
)

// AdmissionEvent is handed to the notification collaborator. It never carries
// credentials; the temporary password is delivered by the submission response only.
type AdmissionEvent struct {
	Type        string    `json:"type"`
	AdmissionID string    `json:"admission_id"`
	StudentID   string    `json:"student_id"`
	Status      string    `json:"status"`
	IndexNumber string    `json:"index_number,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers admission events (SMS, email, ...).
type Notifier interface {
	Notify(ctx context.Context, event AdmissionEvent) error
}

// LogNotifier is the default Notifier; it records the event and delivers nothing.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, event AdmissionEvent) error {
	n.logger.Info("admission notification",
		zap.String("type", event.Type),
		zap.String("admission_id", event.AdmissionID),
		zap.String("status", event.Status))
	return nil
}

type eventQueue interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService fans admission events out to a Notifier through a worker queue,
// so delivery retries and timeouts never touch the request path.
type NotificationService struct {
	queue  eventQueue
	logger *zap.Logger
}

// NewNotificationService constructs the dispatcher around an existing queue.
func NewNotificationService(queue eventQueue, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger}
}

// NotificationJobHandler adapts a Notifier to the queue's handler signature.
func NotificationJobHandler(notifier Notifier) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(AdmissionEvent)
		if !ok {
			return fmt.Errorf("unexpected notification payload %T", job.Payload)
		}
		return notifier.Notify(ctx, event)
	}
}

// Publish enqueues event. Dispatch failures are logged, never returned: the admission
// has already been committed.
func (s *NotificationService) Publish(event AdmissionEvent) {
	if s == nil || s.queue == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	job := jobs.Job{ID: uuid.NewString(), Type: event.Type, Payload: event}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("admission notification dropped",
			zap.String("type", event.Type),
			zap.String("admission_id", event.AdmissionID),
			zap.Error(err))
	}
}
