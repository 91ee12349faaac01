package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/course-admin-api/internal/models"
)

const courseColumns = `id, name, level, description, max_capacity, enrolled_count, lead_teacher_id, lead_teacher_name,
	room, start_time, end_time, days_of_week, enrollment_fee, monthly_fee, term_start, term_end, active, notes,
	created_by, created_at, updated_by, updated_at, deleted_by, deleted_at`

// CourseRepository persists courses in PostgreSQL.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns every course ordered by id.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses ORDER BY id ASC"
	courses := []models.Course{}
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID fetches a course. Missing rows surface as sql.ErrNoRows.
func (r *CourseRepository) FindByID(ctx context.Context, id int64) (*models.Course, error) {
	query := "SELECT " + courseColumns + " FROM courses WHERE id = $1"
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Count returns the number of stored courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses"); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}

// Create inserts course and sets its generated id.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	const query = `INSERT INTO courses (name, level, description, max_capacity, enrolled_count, lead_teacher_id, lead_teacher_name,
	room, start_time, end_time, days_of_week, enrollment_fee, monthly_fee, term_start, term_end, active, notes,
	created_by, created_at, updated_by, updated_at, deleted_by, deleted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
RETURNING id`
	if err := r.db.GetContext(ctx, &course.ID, query,
		course.Name, course.Level, course.Description, course.MaxCapacity, course.EnrolledCount,
		course.LeadTeacherID, course.LeadTeacherName, course.Room, course.StartTime, course.EndTime,
		course.DaysOfWeek, course.EnrollmentFee, course.MonthlyFee, course.TermStart, course.TermEnd,
		course.Active, course.Notes, course.CreatedBy, course.CreatedAt, course.UpdatedBy, course.UpdatedAt,
		course.DeletedBy, course.DeletedAt,
	); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of course. An unknown id yields sql.ErrNoRows.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET name = $2, level = $3, description = $4, max_capacity = $5, enrolled_count = $6,
	lead_teacher_id = $7, lead_teacher_name = $8, room = $9, start_time = $10, end_time = $11, days_of_week = $12,
	enrollment_fee = $13, monthly_fee = $14, term_start = $15, term_end = $16, active = $17, notes = $18,
	updated_by = $19, updated_at = $20, deleted_by = $21, deleted_at = $22
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		course.ID, course.Name, course.Level, course.Description, course.MaxCapacity, course.EnrolledCount,
		course.LeadTeacherID, course.LeadTeacherName, course.Room, course.StartTime, course.EndTime,
		course.DaysOfWeek, course.EnrollmentFee, course.MonthlyFee, course.TermStart, course.TermEnd,
		course.Active, course.Notes, course.UpdatedBy, course.UpdatedAt, course.DeletedBy, course.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
