package service

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

// DefaultCourseSort is applied when a query names no sort field.
const DefaultCourseSort = "name"

type courseComparator func(a, b *models.Course, fold func(string) string) int

var courseSortFields = map[string]courseComparator{
	"id": func(a, b *models.Course, _ func(string) string) int { return compareInt64(a.ID, b.ID) },
	"name": func(a, b *models.Course, fold func(string) string) int {
		return strings.Compare(fold(a.Name), fold(b.Name))
	},
	"level": func(a, b *models.Course, fold func(string) string) int {
		return strings.Compare(fold(string(a.Level)), fold(string(b.Level)))
	},
	"lead_teacher_name": func(a, b *models.Course, fold func(string) string) int {
		return strings.Compare(fold(a.LeadTeacherName), fold(b.LeadTeacherName))
	},
	"room": func(a, b *models.Course, fold func(string) string) int {
		return strings.Compare(fold(a.Room), fold(b.Room))
	},
	"max_capacity": func(a, b *models.Course, _ func(string) string) int {
		return compareInt64(int64(a.MaxCapacity), int64(b.MaxCapacity))
	},
	"enrolled_count": func(a, b *models.Course, _ func(string) string) int {
		return compareInt64(int64(a.EnrolledCount), int64(b.EnrolledCount))
	},
	"occupancy": func(a, b *models.Course, _ func(string) string) int {
		return compareFloat(a.Occupancy(), b.Occupancy())
	},
	"start_time":     func(a, b *models.Course, _ func(string) string) int { return compareClock(a.StartTime, b.StartTime) },
	"end_time":       func(a, b *models.Course, _ func(string) string) int { return compareClock(a.EndTime, b.EndTime) },
	"enrollment_fee": func(a, b *models.Course, _ func(string) string) int { return compareInt64(a.EnrollmentFee, b.EnrollmentFee) },
	"monthly_fee":    func(a, b *models.Course, _ func(string) string) int { return compareInt64(a.MonthlyFee, b.MonthlyFee) },
	"term_start": func(a, b *models.Course, _ func(string) string) int {
		return compareInt64(a.TermStart.UnixNano(), b.TermStart.UnixNano())
	},
	"term_end": func(a, b *models.Course, _ func(string) string) int {
		return compareInt64(a.TermEnd.UnixNano(), b.TermEnd.UnixNano())
	},
	"created_at": func(a, b *models.Course, _ func(string) string) int {
		return compareInt64(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	},
	"updated_at": func(a, b *models.Course, _ func(string) string) int {
		return compareInt64(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	},
}

// CourseSortFields lists the accepted sort_by values in alphabetical order.
func CourseSortFields() []string {
	fields := make([]string, 0, len(courseSortFields))
	for name := range courseSortFields {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// NormalizeCourseQuery trims the query, applies defaults and rejects unknown values.
func NormalizeCourseQuery(q models.CourseQuery) (models.CourseQuery, error) {
	q.Search = strings.TrimSpace(q.Search)
	q.Level = models.CourseLevel(strings.TrimSpace(string(q.Level)))
	q.LeadTeacherID = strings.TrimSpace(q.LeadTeacherID)
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	q.SortBy = strings.TrimSpace(q.SortBy)
	q.SortOrder = strings.ToLower(strings.TrimSpace(q.SortOrder))

	if q.Status == "" {
		q.Status = models.CourseStatusAll
	}
	switch q.Status {
	case models.CourseStatusAll, models.CourseStatusActive, models.CourseStatusInactive:
	default:
		return q, appErrors.WithDetails(appErrors.ErrValidation, "invalid status filter",
			map[string]string{"status": "Status must be one of all, active, inactive"})
	}

	if q.TermYear < 0 {
		return q, appErrors.WithDetails(appErrors.ErrValidation, "invalid term year filter",
			map[string]string{"term_year": "Term year must be a positive year"})
	}

	if q.SortBy == "" {
		q.SortBy = DefaultCourseSort
	}
	if _, ok := courseSortFields[q.SortBy]; !ok {
		return q, appErrors.WithDetails(appErrors.ErrInvalidSortField, fmt.Sprintf("unrecognized sort field %q", q.SortBy),
			map[string]string{"sort_by": "Sort field must be one of " + strings.Join(CourseSortFields(), ", ")})
	}

	if q.SortOrder == "" {
		q.SortOrder = models.SortAsc
	}
	if q.SortOrder != models.SortAsc && q.SortOrder != models.SortDesc {
		return q, appErrors.WithDetails(appErrors.ErrValidation, "invalid sort order",
			map[string]string{"sort_order": "Sort order must be asc or desc"})
	}
	return q, nil
}

// FilterCourses returns the records matching every criterion of q, stably sorted.
// The input slice and its records are never modified.
func FilterCourses(records []models.Course, q models.CourseQuery) ([]models.Course, error) {
	q, err := NormalizeCourseQuery(q)
	if err != nil {
		return nil, err
	}

	// cases.Caser is not safe for concurrent use.
	caser := cases.Fold()
	fold := func(s string) string { return caser.String(s) }
	needle := fold(q.Search)

	out := make([]models.Course, 0, len(records))
	for i := range records {
		c := &records[i]
		if q.Level != "" && c.Level != q.Level {
			continue
		}
		if q.LeadTeacherID != "" && c.LeadTeacherID != q.LeadTeacherID {
			continue
		}
		if q.TermYear != 0 && c.SchoolYear() != q.TermYear {
			continue
		}
		if q.Status == models.CourseStatusActive && !c.Active {
			continue
		}
		if q.Status == models.CourseStatusInactive && c.Active {
			continue
		}
		if needle != "" && !matchesSearch(c, needle, fold) {
			continue
		}
		out = append(out, c.Clone())
	}

	cmp := courseSortFields[q.SortBy]
	desc := q.SortOrder == models.SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		r := cmp(&out[i], &out[j], fold)
		if desc {
			return r > 0
		}
		return r < 0
	})
	return out, nil
}

func matchesSearch(c *models.Course, needle string, fold func(string) string) bool {
	for _, haystack := range []string{c.Name, string(c.Level), c.LeadTeacherName, c.Room} {
		if strings.Contains(fold(haystack), needle) {
			return true
		}
	}
	return false
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareClock orders HH:MM values by minutes after midnight. Values that do not
// parse sort after every valid clock.
func compareClock(a, b string) int {
	am, aErr := models.ParseClock(a)
	bm, bErr := models.ParseClock(b)
	switch {
	case aErr != nil && bErr != nil:
		return strings.Compare(a, b)
	case aErr != nil:
		return 1
	case bErr != nil:
		return -1
	}
	return compareInt64(int64(am), int64(bm))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
