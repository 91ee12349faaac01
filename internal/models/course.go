package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CourseLevel enumerates the academic levels a course can belong to.
type CourseLevel string

const (
	CourseLevelPreschool  CourseLevel = "Preschool"
	CourseLevelElementary CourseLevel = "Elementary"
	CourseLevelSecondary  CourseLevel = "Secondary"
	CourseLevelSpecial    CourseLevel = "Special"
)

// CourseLevels lists every supported level in display order.
var CourseLevels = []CourseLevel{CourseLevelPreschool, CourseLevelElementary, CourseLevelSecondary, CourseLevelSpecial}

// Valid reports whether l is one of the supported levels.
func (l CourseLevel) Valid() bool {
	for _, level := range CourseLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Weekday is a lowercase English day name.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayOrder = map[Weekday]int{
	Monday: 1, Tuesday: 2, Wednesday: 3, Thursday: 4, Friday: 5, Saturday: 6, Sunday: 7,
}

// ParseWeekday normalises a day name, accepting any case and three-letter abbreviations.
func ParseWeekday(raw string) (Weekday, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}
	for day := range weekdayOrder {
		if string(day) == raw || (len(raw) == 3 && strings.HasPrefix(string(day), raw)) {
			return day, true
		}
	}
	return "", false
}

// Weekdays is a set of days stored in canonical Monday-first order.
type Weekdays []Weekday

// Normalize returns the set without duplicates or unknown values, ordered Monday first.
func (w Weekdays) Normalize() Weekdays {
	seen := make(map[Weekday]struct{}, len(w))
	out := make(Weekdays, 0, len(w))
	for _, raw := range w {
		day, ok := ParseWeekday(string(raw))
		if !ok {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return weekdayOrder[out[i]] < weekdayOrder[out[j]] })
	return out
}

// Contains reports whether day is part of the set.
func (w Weekdays) Contains(day Weekday) bool {
	for _, d := range w {
		if d == day {
			return true
		}
	}
	return false
}

// String renders the set as a comma separated list.
func (w Weekdays) String() string {
	parts := make([]string, len(w))
	for i, d := range w {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// Value stores the set as comma separated text.
func (w Weekdays) Value() (driver.Value, error) {
	return w.String(), nil
}

// Scan loads the set from comma separated text.
func (w *Weekdays) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*w = Weekdays{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for Weekdays", value)
	}
	out := Weekdays{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, Weekday(part))
		}
	}
	*w = out
	return nil
}

// DateLayout is the wire format for term dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wire format for time-of-day values.
const ClockLayout = "15:04"

// ParseClock converts an HH:MM value into minutes after midnight.
func ParseClock(raw string) (int, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes after midnight as zero padded HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// CanonicalClock rewrites a parseable clock value as zero padded HH:MM, so
// "9:00" becomes "09:00". Unparseable values are returned trimmed.
func CanonicalClock(raw string) string {
	minutes, err := ParseClock(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return FormatClock(minutes)
}

// Course is the scheduled academic offering managed by the admin panel.
type Course struct {
	ID              int64       `db:"id" json:"id"`
	Name            string      `db:"name" json:"name"`
	Level           CourseLevel `db:"level" json:"level"`
	Description     string      `db:"description" json:"description"`
	MaxCapacity     int         `db:"max_capacity" json:"max_capacity"`
	EnrolledCount   int         `db:"enrolled_count" json:"enrolled_count"`
	LeadTeacherID   string      `db:"lead_teacher_id" json:"lead_teacher_id"`
	LeadTeacherName string      `db:"lead_teacher_name" json:"lead_teacher_name"`
	Room            string      `db:"room" json:"room"`
	StartTime       string      `db:"start_time" json:"start_time"`
	EndTime         string      `db:"end_time" json:"end_time"`
	DaysOfWeek      Weekdays    `db:"days_of_week" json:"days_of_week"`
	EnrollmentFee   int64       `db:"enrollment_fee" json:"enrollment_fee"`
	MonthlyFee      int64       `db:"monthly_fee" json:"monthly_fee"`
	TermStart       time.Time   `db:"term_start" json:"term_start"`
	TermEnd         time.Time   `db:"term_end" json:"term_end"`
	Active          bool        `db:"active" json:"active"`
	Notes           *string     `db:"notes" json:"notes,omitempty"`
	CreatedBy       string      `db:"created_by" json:"created_by"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedBy       string      `db:"updated_by" json:"updated_by"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
	DeletedBy       *string     `db:"deleted_by" json:"deleted_by,omitempty"`
	DeletedAt       *time.Time  `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Clone returns a deep copy so callers never share slices or pointers with the store.
func (c Course) Clone() Course {
	out := c
	if c.DaysOfWeek != nil {
		out.DaysOfWeek = append(Weekdays(nil), c.DaysOfWeek...)
	}
	if c.Notes != nil {
		notes := *c.Notes
		out.Notes = &notes
	}
	if c.DeletedBy != nil {
		by := *c.DeletedBy
		out.DeletedBy = &by
	}
	if c.DeletedAt != nil {
		at := *c.DeletedAt
		out.DeletedAt = &at
	}
	return out
}

// Occupancy returns enrolled/capacity as a ratio in [0, +inf).
func (c Course) Occupancy() float64 {
	if c.MaxCapacity <= 0 {
		return 0
	}
	return float64(c.EnrolledCount) / float64(c.MaxCapacity)
}

// SchoolYear is the calendar year the course term starts in.
func (c Course) SchoolYear() int {
	return c.TermStart.Year()
}

// CloneCourses deep copies a slice of courses.
func CloneCourses(in []Course) []Course {
	out := make([]Course, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// CourseDraft carries the caller supplied fields of a new course.
type CourseDraft struct {
	Name          string      `json:"name" validate:"required,trimmed_len=2:50"`
	Level         CourseLevel `json:"level" validate:"required,course_level"`
	Description   string      `json:"description" validate:"max=1000"`
	MaxCapacity   int         `json:"max_capacity" validate:"min=1,max=50"`
	LeadTeacherID string      `json:"lead_teacher_id" validate:"required"`
	Room          string      `json:"room" validate:"required,notblank"`
	StartTime     string      `json:"start_time" validate:"required,clock"`
	EndTime       string      `json:"end_time" validate:"required,clock"`
	DaysOfWeek    Weekdays    `json:"days_of_week" validate:"min=1,dive,weekday"`
	EnrollmentFee int64       `json:"enrollment_fee" validate:"min=0"`
	MonthlyFee    int64       `json:"monthly_fee" validate:"min=0"`
	TermStart     time.Time   `json:"term_start" validate:"required"`
	TermEnd       time.Time   `json:"term_end" validate:"required"`
	Notes         *string     `json:"notes" validate:"omitempty,max=1000"`
}

// CoursePatch lists fields to overwrite; nil pointers leave the stored value untouched.
type CoursePatch struct {
	Name          *string      `json:"name,omitempty"`
	Level         *CourseLevel `json:"level,omitempty"`
	Description   *string      `json:"description,omitempty"`
	MaxCapacity   *int         `json:"max_capacity,omitempty"`
	EnrolledCount *int         `json:"enrolled_count,omitempty"`
	LeadTeacherID *string      `json:"lead_teacher_id,omitempty"`
	Room          *string      `json:"room,omitempty"`
	StartTime     *string      `json:"start_time,omitempty"`
	EndTime       *string      `json:"end_time,omitempty"`
	DaysOfWeek    *Weekdays    `json:"days_of_week,omitempty"`
	EnrollmentFee *int64       `json:"enrollment_fee,omitempty"`
	MonthlyFee    *int64       `json:"monthly_fee,omitempty"`
	TermStart     *time.Time   `json:"term_start,omitempty"`
	TermEnd       *time.Time   `json:"term_end,omitempty"`
	Notes         *string      `json:"notes,omitempty"`
}

// Apply shallow-merges the patch over c.
func (p CoursePatch) Apply(c *Course) {
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Level != nil {
		c.Level = *p.Level
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.MaxCapacity != nil {
		c.MaxCapacity = *p.MaxCapacity
	}
	if p.EnrolledCount != nil {
		c.EnrolledCount = *p.EnrolledCount
	}
	if p.LeadTeacherID != nil {
		c.LeadTeacherID = *p.LeadTeacherID
	}
	if p.Room != nil {
		c.Room = strings.TrimSpace(*p.Room)
	}
	if p.StartTime != nil {
		c.StartTime = CanonicalClock(*p.StartTime)
	}
	if p.EndTime != nil {
		c.EndTime = CanonicalClock(*p.EndTime)
	}
	if p.DaysOfWeek != nil {
		c.DaysOfWeek = p.DaysOfWeek.Normalize()
	}
	if p.EnrollmentFee != nil {
		c.EnrollmentFee = *p.EnrollmentFee
	}
	if p.MonthlyFee != nil {
		c.MonthlyFee = *p.MonthlyFee
	}
	if p.TermStart != nil {
		c.TermStart = *p.TermStart
	}
	if p.TermEnd != nil {
		c.TermEnd = *p.TermEnd
	}
	if p.Notes != nil {
		if notes := strings.TrimSpace(*p.Notes); notes != "" {
			c.Notes = &notes
		} else {
			c.Notes = nil
		}
	}
}

// Course status filters.
const (
	CourseStatusAll      = "all"
	CourseStatusActive   = "active"
	CourseStatusInactive = "inactive"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// CourseQuery describes a filtered, sorted view of the course collection.
type CourseQuery struct {
	Search        string      `json:"search" form:"search"`
	Level         CourseLevel `json:"level" form:"level"`
	LeadTeacherID string      `json:"lead_teacher_id" form:"lead_teacher_id"`
	TermYear      int         `json:"term_year,omitempty" form:"term_year"`
	Status        string      `json:"status" form:"status"`
	SortBy        string      `json:"sort_by" form:"sort_by"`
	SortOrder     string      `json:"sort_order" form:"sort_order"`
}
