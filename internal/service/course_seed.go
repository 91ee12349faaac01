package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
)

// PrepareSeed holds the seed courses to the rules the store enforces on its own
// records. Lead teacher names are re-resolved from the seed teachers and clock
// values canonicalized in place. The first offending course aborts loading.
func PrepareSeed(seed *repository.SeedData, validate *validator.Validate) error {
	if seed == nil {
		return nil
	}
	if validate == nil {
		validate = NewCourseValidator()
	}

	teachers := make(map[string]models.Teacher, len(seed.Teachers))
	for _, t := range seed.Teachers {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return fmt.Errorf("seed teacher %q has no id", t.FullName)
		}
		teachers[id] = t
	}

	caser := cases.Fold()
	ids := make(map[int64]bool, len(seed.Courses))
	names := make(map[string]bool, len(seed.Courses))
	for i := range seed.Courses {
		c := &seed.Courses[i]
		c.Name = trimmed(c.Name)
		c.Room = trimmed(c.Room)
		c.StartTime = models.CanonicalClock(c.StartTime)
		c.EndTime = models.CanonicalClock(c.EndTime)
		c.DaysOfWeek = c.DaysOfWeek.Normalize()

		teacher, ok := teachers[trimmed(c.LeadTeacherID)]
		if !ok {
			return fmt.Errorf("seed course %q: unknown lead teacher %q", c.Name, c.LeadTeacherID)
		}
		c.LeadTeacherID = teacher.ID
		c.LeadTeacherName = teacher.FullName

		if err := validate.Struct(recordFromCourse(*c)); err != nil {
			return fmt.Errorf("seed course %q: %s", c.Name, describeDetails(ValidationDetails(err)))
		}
		if c.ID != 0 {
			if ids[c.ID] {
				return fmt.Errorf("seed course %q: duplicate id %d", c.Name, c.ID)
			}
			ids[c.ID] = true
		}
		key := fmt.Sprintf("%d|%s", c.SchoolYear(), caser.String(c.Name))
		if names[key] {
			return fmt.Errorf("seed course %q: %s", c.Name, MsgNameTaken)
		}
		names[key] = true
	}
	return nil
}

func describeDetails(details map[string]string) string {
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = field + ": " + details[field]
	}
	return strings.Join(parts, "; ")
}
