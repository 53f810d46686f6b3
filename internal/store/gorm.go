package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gkobilansky/xgoat/internal/experiment"
)

type experimentRecord struct {
	ID            string         `gorm:"primaryKey;size:128"`
	Name          string         `gorm:"not null"`
	Definition    datatypes.JSON `gorm:"type:jsonb;not null"`
	Status        string         `gorm:"index;not null;default:DRAFT"`
	WinnerVariant *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (experimentRecord) TableName() string { return "experiments" }

type userRecord struct {
	ID        string  `gorm:"primaryKey;size:128"`
	Points    float64 `gorm:"not null;default:0"`
	UserType  string  `gorm:"not null"`
	UpdatedAt time.Time
}

func (userRecord) TableName() string { return "users" }

type eventRecord struct {
	Seq            uint64  `gorm:"primaryKey;autoIncrement"`
	ID             string  `gorm:"uniqueIndex;size:36;not null"`
	UserID         string  `gorm:"not null;index:idx_events_user,priority:1;uniqueIndex:idx_events_assignment,priority:2"`
	Category       string  `gorm:"not null;index:idx_events_category,priority:1"`
	EventType      string  `gorm:"not null;index:idx_events_category,priority:2;index:idx_events_user,priority:3"`
	ExperimentID   string  `gorm:"not null;index:idx_events_user,priority:2;uniqueIndex:idx_events_assignment,priority:1,where:event_type = 'AB_TEST_ASSIGNMENT'"`
	VariantID      string  `gorm:"not null"`
	VariantName    string  `gorm:"not null"`
	ConversionType string  `gorm:"not null"`
	Value          *float64
	// Payload mirrors the event body for ad-hoc querying in SQL.
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"index"`
}

func (eventRecord) TableName() string { return "events" }

func toEventRecord(e *Event) *eventRecord {
	payload := datatypes.JSONMap{
		"experimentId": e.ExperimentID,
		"variantId":    e.VariantID,
	}
	if e.EventType == EventConversion {
		payload["conversionType"] = e.ConversionType
		if e.Value != nil {
			payload["value"] = *e.Value
		}
	} else {
		payload["variantName"] = e.VariantName
	}
	return &eventRecord{
		ID:             e.ID,
		UserID:         e.UserID,
		Category:       e.Category,
		EventType:      e.EventType,
		ExperimentID:   e.ExperimentID,
		VariantID:      e.VariantID,
		VariantName:    e.VariantName,
		ConversionType: e.ConversionType,
		Value:          e.Value,
		Payload:        payload,
		CreatedAt:      e.CreatedAt,
	}
}

func (r *eventRecord) toEvent() *Event {
	return &Event{
		ID:             r.ID,
		UserID:         r.UserID,
		Category:       r.Category,
		EventType:      r.EventType,
		ExperimentID:   r.ExperimentID,
		VariantID:      r.VariantID,
		VariantName:    r.VariantName,
		ConversionType: r.ConversionType,
		Value:          r.Value,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// GormStore persists to PostgreSQL through GORM. It lets several engine
// instances share one event log.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects to databaseURL and migrates the schema.
func OpenPostgres(databaseURL string) (*GormStore, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, errors.New("database url must be a postgres:// or postgresql:// URL")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing connection and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&experimentRecord{}, &userRecord{}, &eventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) SaveExperiment(ctx context.Context, exp *experiment.Experiment) error {
	definition, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to marshal experiment: %w", err)
	}

	rec := experimentRecord{
		ID:         exp.ID,
		Name:       exp.Name,
		Definition: datatypes.JSON(definition),
		Status:     string(exp.Status),
		CreatedAt:  exp.CreatedAt,
		UpdatedAt:  exp.UpdatedAt,
	}
	if exp.WinnerVariantID != "" {
		w := exp.WinnerVariantID
		rec.WinnerVariant = &w
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "definition", "status", "winner_variant", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}
	return nil
}

func (r *experimentRecord) toExperiment() (*experiment.Experiment, error) {
	var exp experiment.Experiment
	if err := json.Unmarshal(r.Definition, &exp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment: %w", err)
	}
	exp.Status = experiment.Status(r.Status)
	exp.WinnerVariantID = ""
	if r.WinnerVariant != nil {
		exp.WinnerVariantID = *r.WinnerVariant
	}
	exp.CreatedAt = r.CreatedAt.UTC()
	exp.UpdatedAt = r.UpdatedAt.UTC()
	return &exp, nil
}

func (s *GormStore) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var rec experimentRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return rec.toExperiment()
}

func (s *GormStore) ListExperiments(ctx context.Context) ([]*experiment.Experiment, error) {
	var recs []experimentRecord
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	exps := make([]*experiment.Experiment, 0, len(recs))
	for i := range recs {
		exp, err := recs[i].toExperiment()
		if err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}
	return exps, nil
}

func (s *GormStore) UpdateExperimentStatus(ctx context.Context, id string, status experiment.Status, winnerVariantID string) error {
	updates := map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}
	if winnerVariantID != "" {
		updates["winner_variant"] = winnerVariantID
	}

	result := s.db.WithContext(ctx).Model(&experimentRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update experiment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Append(ctx context.Context, e *Event) error {
	e.prepare()
	if err := s.db.WithContext(ctx).Create(toEventRecord(e)).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *GormStore) ClaimAssignment(ctx context.Context, e *Event) (*Event, bool, error) {
	e.prepare()

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(toEventRecord(e))
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to claim assignment: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return e, true, nil
	}

	existing, err := s.Query(ctx, assignmentFilter(e.ExperimentID, e.UserID))
	if err != nil {
		return nil, false, err
	}
	if len(existing) == 0 {
		return nil, false, fmt.Errorf("assignment for %s/%s conflicted but was not found", e.ExperimentID, e.UserID)
	}
	return existing[0], false, nil
}

func (s *GormStore) Query(ctx context.Context, f Filter) ([]*Event, error) {
	q := s.db.WithContext(ctx).Model(&eventRecord{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.ExperimentID != "" {
		q = q.Where("experiment_id = ?", f.ExperimentID)
	}
	if f.Order == OrderDesc {
		q = q.Order("created_at DESC, seq DESC")
	} else {
		q = q.Order("created_at ASC, seq ASC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []eventRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]*Event, len(recs))
	for i := range recs {
		events[i] = recs[i].toEvent()
	}
	return events, nil
}

func (s *GormStore) UpsertUser(ctx context.Context, u User) error {
	rec := userRecord{ID: u.ID, Points: u.Points, UserType: u.UserType, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"points", "user_type", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *GormStore) findUser(ctx context.Context, userID string) (*userRecord, error) {
	var recs []userRecord
	if err := s.db.WithContext(ctx).Where("id = ?", userID).Limit(1).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (s *GormStore) Points(ctx context.Context, userID string) (float64, bool, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil || u == nil {
		return 0, false, err
	}
	return u.Points, true, nil
}

func (s *GormStore) UserType(ctx context.Context, userID string) (string, bool, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil || u == nil {
		return "", false, err
	}
	return u.UserType, true, nil
}
