// Package exports keeps an audit trail of TSV downloads. The gateway publishes
// one event per download; the auditor persists them.
package exports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/genomics-portal/platform/pkg/common/kafka"
	"github.com/genomics-portal/platform/pkg/common/logger"
	"github.com/google/uuid"
)

const (
	EventGenerated = "export.generated"
	EventSource    = "portal-gateway"

	KindEntity = "entity"
	KindErrors = "errors"
)

var errMalformedEvent = errors.New("malformed export event")

type Record struct {
	ID        uuid.UUID              `json:"id"`
	Kind      string                 `json:"kind"`
	Program   string                 `json:"program"`
	Entity    string                 `json:"entity"`
	FileName  string                 `json:"fileName"`
	Rows      int                    `json:"rows"`
	Subject   string                 `json:"subject"`
	Email     string                 `json:"email,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Store interface {
	Create(ctx context.Context, rec Record) error
}

// Service records downloads. Either sink may be nil.
type Service struct {
	publisher Publisher
	store     Store
	now       func() time.Time
}

func NewService(publisher Publisher, store Store) *Service {
	return &Service{publisher: publisher, store: store, now: time.Now}
}

// Record audits one download. Failures are logged and never surface to the
// caller: the file has already been served.
func (s *Service) Record(ctx context.Context, rec Record) Record {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	entry := logger.Log.WithFields(map[string]interface{}{
		"export_id": rec.ID.String(),
		"program":   rec.Program,
		"entity":    rec.Entity,
		"kind":      rec.Kind,
		"rows":      rec.Rows,
	})

	if s.publisher != nil {
		event := kafka.NewEvent(EventGenerated, EventSource, EventData(rec))
		if err := s.publisher.Publish(ctx, event); err != nil {
			entry.WithError(err).Warn("export audit event not published")
		}
	}
	if s.store != nil {
		if err := s.store.Create(ctx, rec); err != nil {
			entry.WithError(err).Warn("export audit record not stored")
		}
	}
	entry.Info("export generated")
	return rec
}

// Handle persists an export event consumed from the audit topic.
func (s *Service) Handle(ctx context.Context, event kafka.Event) error {
	if event.Type != EventGenerated {
		return nil
	}
	if s.store == nil {
		return errors.New("export store not configured")
	}
	rec, err := FromEvent(event)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Warn("dropping export event")
		return nil
	}
	return s.store.Create(ctx, rec)
}

func EventData(rec Record) map[string]interface{} {
	data := map[string]interface{}{
		"id":        rec.ID.String(),
		"kind":      rec.Kind,
		"program":   rec.Program,
		"entity":    rec.Entity,
		"fileName":  rec.FileName,
		"rows":      rec.Rows,
		"subject":   rec.Subject,
		"createdAt": rec.CreatedAt.Format(time.RFC3339Nano),
	}
	if rec.Email != "" {
		data["email"] = rec.Email
	}
	if rec.RequestID != "" {
		data["requestId"] = rec.RequestID
	}
	if len(rec.Options) > 0 {
		data["options"] = rec.Options
	}
	return data
}

// FromEvent decodes the data of an export event. Numbers arrive as float64
// after the JSON round trip.
func FromEvent(event kafka.Event) (Record, error) {
	d := event.Data
	id, err := uuid.Parse(stringField(d, "id"))
	if err != nil {
		return Record{}, fmt.Errorf("%w: id: %v", errMalformedEvent, err)
	}
	program := stringField(d, "program")
	if program == "" {
		return Record{}, fmt.Errorf("%w: program missing", errMalformedEvent)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stringField(d, "createdAt"))
	if err != nil {
		createdAt = event.Timestamp
	}

	rec := Record{
		ID:        id,
		Kind:      stringField(d, "kind"),
		Program:   program,
		Entity:    stringField(d, "entity"),
		FileName:  stringField(d, "fileName"),
		Subject:   stringField(d, "subject"),
		Email:     stringField(d, "email"),
		RequestID: stringField(d, "requestId"),
		CreatedAt: createdAt,
	}
	switch n := d["rows"].(type) {
	case float64:
		rec.Rows = int(n)
	case int:
		rec.Rows = n
	}
	if opts, ok := d["options"].(map[string]interface{}); ok {
		rec.Options = opts
	}
	return rec, nil
}

func stringField(d map[string]interface{}, key string) string {
	s, _ := d[key].(string)
	return s
}
