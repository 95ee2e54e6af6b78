package exports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type RecordModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"index"`
	Program   string    `gorm:"index"`
	Entity    string
	FileName  string
	Rows      int
	Subject   string `gorm:"index"`
	Email     string
	RequestID string
	Options   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"index"`
}

func (RecordModel) TableName() string {
	return "export_audit"
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RecordModel{})
}

func (r *Repository) Create(ctx context.Context, rec Record) error {
	model := toModel(rec)
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListByProgram returns the most recent downloads of a program.
func (r *Repository) ListByProgram(ctx context.Context, program string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []RecordModel
	err := r.db.WithContext(ctx).
		Where("program = ?", program).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, m := range rows {
		out = append(out, fromModel(m))
	}
	return out, nil
}

func toModel(rec Record) RecordModel {
	return RecordModel{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Program:   rec.Program,
		Entity:    rec.Entity,
		FileName:  rec.FileName,
		Rows:      rec.Rows,
		Subject:   rec.Subject,
		Email:     rec.Email,
		RequestID: rec.RequestID,
		Options:   datatypes.JSONMap(rec.Options),
		CreatedAt: rec.CreatedAt,
	}
}

func fromModel(m RecordModel) Record {
	return Record{
		ID:        m.ID,
		Kind:      m.Kind,
		Program:   m.Program,
		Entity:    m.Entity,
		FileName:  m.FileName,
		Rows:      m.Rows,
		Subject:   m.Subject,
		Email:     m.Email,
		RequestID: m.RequestID,
		Options:   map[string]interface{}(m.Options),
		CreatedAt: m.CreatedAt,
	}
}
