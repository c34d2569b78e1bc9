package eventlog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/odeflow/internal/errors"
)

// ErrOccurrenceNotFound is returned when no row has the requested id.
var ErrOccurrenceNotFound = errors.NewStd("occurrence not found")

// Repository stores and queries occurrences.
type Repository interface {
	Save(ctx context.Context, o *Occurrence) error
	Get(ctx context.Context, id uint) (*Occurrence, error)
	List(ctx context.Context, filter Filter) ([]Occurrence, int64, error)
	CountByTrigger(ctx context.Context, since time.Time) ([]TriggerCount, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Filter controls List queries. Zero fields do not filter.
type Filter struct {
	Trigger  string
	Kind     string
	SourceID *uint
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// TriggerCount is the number of occurrences logged for one trigger.
type TriggerCount struct {
	TriggerName string `json:"trigger"`
	Total       int64  `json:"total"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a Repository over db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Save(ctx context.Context, o *Occurrence) error {
	if err := r.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("failed to save occurrence: %w", err)
	}
	return nil
}

// Get returns ErrOccurrenceNotFound if the row does not exist.
func (r *repository) Get(ctx context.Context, id uint) (*Occurrence, error) {
	var o Occurrence
	if err := r.db.WithContext(ctx).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOccurrenceNotFound
		}
		return nil, fmt.Errorf("failed to get occurrence %d: %w", id, err)
	}
	return &o, nil
}

// List returns matching rows newest first plus the total before paging.
func (r *repository) List(ctx context.Context, filter Filter) ([]Occurrence, int64, error) {
	var (
		items []Occurrence
		total int64
	)
	base := filter.apply(r.db.WithContext(ctx).Model(&Occurrence{}))
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count occurrences: %w", err)
	}

	query := filter.apply(r.db.WithContext(ctx)).Order("fired_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list occurrences: %w", err)
	}
	return items, total, nil
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Trigger != "" {
		q = q.Where("trigger_name = ?", f.Trigger)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.SourceID != nil {
		q = q.Where("source_id = ?", *f.SourceID)
	}
	if !f.Since.IsZero() {
		q = q.Where("fired_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("fired_at < ?", f.Until.UTC())
	}
	return q
}

// CountByTrigger groups occurrences fired at or after since by trigger,
// ordered by trigger name.
func (r *repository) CountByTrigger(ctx context.Context, since time.Time) ([]TriggerCount, error) {
	var rows []TriggerCount
	q := r.db.WithContext(ctx).Model(&Occurrence{}).
		Select("trigger_name, COUNT(*) AS total").
		Group("trigger_name").
		Order("trigger_name ASC")
	if !since.IsZero() {
		q = q.Where("fired_at >= ?", since.UTC())
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count occurrences by trigger: %w", err)
	}
	return rows, nil
}

// DeleteBefore deletes occurrences fired before the given time.
func (r *repository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("fired_at < ?", before.UTC()).Delete(&Occurrence{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete occurrences before %v: %w", before, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *repository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&Occurrence{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete occurrences: %w", result.Error)
	}
	return result.RowsAffected, nil
}
