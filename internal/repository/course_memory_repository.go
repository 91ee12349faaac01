package repository

import (
	"context"
	"database/sql"
	"sync"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// CourseMemoryRepository keeps courses in process memory. Every read and write
// copies records so callers never share state with the store.
type CourseMemoryRepository struct {
	mu      sync.RWMutex
	courses []models.Course
	index   map[int64]int
	nextID  int64
}

// NewCourseMemoryRepository returns a repository holding a copy of seed.
// Seed records without an id receive one.
func NewCourseMemoryRepository(seed []models.Course) *CourseMemoryRepository {
	r := &CourseMemoryRepository{index: make(map[int64]int), nextID: 1}
	for i := range seed {
		if seed[i].ID >= r.nextID {
			r.nextID = seed[i].ID + 1
		}
	}
	for i := range seed {
		c := seed[i].Clone()
		if c.ID == 0 {
			c.ID = r.nextID
			r.nextID++
		}
		if _, dup := r.index[c.ID]; dup {
			continue
		}
		r.index[c.ID] = len(r.courses)
		r.courses = append(r.courses, c)
	}
	return r
}

// List returns every course in insertion order.
func (r *CourseMemoryRepository) List(ctx context.Context) ([]models.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return models.CloneCourses(r.courses), nil
}

// FindByID returns a copy of the course or sql.ErrNoRows.
func (r *CourseMemoryRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := r.courses[pos].Clone()
	return &c, nil
}

// Count returns the number of stored courses.
func (r *CourseMemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.courses), nil
}

// Create appends course and assigns the next id.
func (r *CourseMemoryRepository) Create(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	course.ID = r.nextID
	r.nextID++
	r.index[course.ID] = len(r.courses)
	r.courses = append(r.courses, course.Clone())
	return nil
}

// Update replaces the stored course with the same id.
func (r *CourseMemoryRepository) Update(ctx context.Context, course *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.index[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	r.courses[pos] = course.Clone()
	return nil
}
