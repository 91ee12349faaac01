package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// TeacherMemoryRepository is an in-process teacher directory.
type TeacherMemoryRepository struct {
	mu       sync.RWMutex
	teachers map[string]models.Teacher
}

// NewTeacherMemoryRepository returns a directory holding seed.
func NewTeacherMemoryRepository(seed []models.Teacher) *TeacherMemoryRepository {
	r := &TeacherMemoryRepository{teachers: make(map[string]models.Teacher, len(seed))}
	for i := range seed {
		_ = r.Upsert(context.Background(), &seed[i])
	}
	return r
}

// List returns teachers matching filter ordered by name.
func (r *TeacherMemoryRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	r.mu.RLock()
	out := make([]models.Teacher, 0, len(r.teachers))
	for _, t := range r.teachers {
		if filter.Active != nil && t.Active != *filter.Active {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.FullName), search) && !strings.Contains(strings.ToLower(t.Email), search) {
			continue
		}
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName == out[j].FullName {
			return out[i].ID < out[j].ID
		}
		return out[i].FullName < out[j].FullName
	})
	return out, nil
}

// FindByID returns the teacher or sql.ErrNoRows.
func (r *TeacherMemoryRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

// Upsert inserts or replaces a teacher.
func (r *TeacherMemoryRepository) Upsert(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now

	r.mu.Lock()
	r.teachers[teacher.ID] = *teacher
	r.mu.Unlock()
	return nil
}
