package exports

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/genomics-portal/platform/pkg/common/kafka"
	"github.com/google/uuid"
)

type fakePublisher struct {
	events []kafka.Event
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event kafka.Event) error {
	p.events = append(p.events, event)
	return p.err
}

type fakeStore struct {
	records []Record
	err     error
}

func (s *fakeStore) Create(ctx context.Context, rec Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func TestRecordPublishesAndStores(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{}
	svc := NewService(pub, store)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	rec := svc.Record(context.Background(), Record{Kind: KindEntity, Program: "TEST-CA", Entity: "donor", FileName: "donor_report.tsv", Rows: 4})
	if rec.ID == uuid.Nil || !rec.CreatedAt.Equal(fixed) {
		t.Fatalf("expected id and timestamp to be assigned, got %+v", rec)
	}
	if len(pub.events) != 1 || pub.events[0].Type != EventGenerated {
		t.Fatalf("expected one export event, got %+v", pub.events)
	}
	if len(store.records) != 1 || store.records[0].ID != rec.ID {
		t.Fatalf("expected stored record, got %+v", store.records)
	}
}

func TestRecordSwallowsSinkFailures(t *testing.T) {
	svc := NewService(&fakePublisher{err: errors.New("broker down")}, &fakeStore{err: errors.New("db down")})
	rec := svc.Record(context.Background(), Record{Kind: KindErrors, Program: "TEST-CA"})
	if rec.ID == uuid.Nil {
		t.Fatal("expected record to be returned despite sink failures")
	}
}

func TestRecordWithoutSinks(t *testing.T) {
	svc := NewService(nil, nil)
	if rec := svc.Record(context.Background(), Record{Program: "TEST-CA"}); rec.Program != "TEST-CA" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestEventRoundTripThroughJSON(t *testing.T) {
	original := Record{
		ID:        uuid.New(),
		Kind:      KindEntity,
		Program:   "TEST-CA",
		Entity:    "primary_diagnoses",
		FileName:  "primary_diagnoses_report.tsv",
		Rows:      12,
		Subject:   "user-1",
		Email:     "user@example.org",
		Options:   map[string]interface{}{"sort": "-age_at_diagnosis"},
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(kafka.NewEvent(EventGenerated, EventSource, EventData(original)))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var event kafka.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	got, err := FromEvent(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != original.ID || got.Rows != 12 || got.Entity != original.Entity || !got.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Options["sort"] != "-age_at_diagnosis" {
		t.Fatalf("expected options to survive, got %v", got.Options)
	}
}

func TestHandlePersistsExportEvents(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(nil, store)
	rec := Record{ID: uuid.New(), Program: "TEST-CA", Kind: KindEntity, CreatedAt: time.Now().UTC()}

	if err := svc.Handle(context.Background(), kafka.NewEvent(EventGenerated, EventSource, EventData(rec))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Handle(context.Background(), kafka.NewEvent("submission.committed", "other", nil)); err != nil {
		t.Fatalf("other event types should be ignored, got %v", err)
	}
	if err := svc.Handle(context.Background(), kafka.NewEvent(EventGenerated, EventSource, map[string]interface{}{"id": "nope"})); err != nil {
		t.Fatalf("malformed events should be dropped, got %v", err)
	}
	if len(store.records) != 1 || store.records[0].ID != rec.ID {
		t.Fatalf("expected one stored record, got %+v", store.records)
	}
}

func TestHandleReturnsStoreErrorsForRetry(t *testing.T) {
	svc := NewService(nil, &fakeStore{err: errors.New("db down")})
	rec := Record{ID: uuid.New(), Program: "TEST-CA", CreatedAt: time.Now().UTC()}
	if err := svc.Handle(context.Background(), kafka.NewEvent(EventGenerated, EventSource, EventData(rec))); err == nil {
		t.Fatal("expected store error so the consumer retries the message")
	}
}

func TestModelConversion(t *testing.T) {
	rec := Record{ID: uuid.New(), Program: "TEST-CA", Rows: 2, Options: map[string]interface{}{"include": []interface{}{"donor_id"}}}
	back := fromModel(toModel(rec))
	if back.ID != rec.ID || back.Rows != 2 || back.Options["include"] == nil {
		t.Fatalf("unexpected conversion %+v", back)
	}
	if (RecordModel{}).TableName() != "export_audit" {
		t.Fatal("unexpected table name")
	}
}
