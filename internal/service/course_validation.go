package service

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/course-admin-api/internal/dto"
	"github.com/noah-isme/course-admin-api/internal/models"
)

// Course field bounds.
const (
	CourseNameMin     = 2
	CourseNameMax     = 50
	CourseCapacityMin = 1
	CourseCapacityMax = 50
)

// Messages attached to invalid course fields.
const (
	MsgNameRequired      = "Name is required"
	MsgNameLength        = "Name must be between 2 and 50 characters"
	MsgNameTaken         = "A course with this name already exists for that school year"
	MsgLevelRequired     = "Level is required"
	MsgLevelUnknown      = "Level must be one of Preschool, Elementary, Secondary, Special"
	MsgCapacityRequired  = "Capacity is required"
	MsgCapacityNumber    = "Capacity must be a whole number"
	MsgCapacityRange     = "Capacity must be between 1 and 50"
	MsgEnrolledNumber    = "Enrolled count must be a whole number"
	MsgEnrolledNegative  = "Enrolled count cannot be negative"
	MsgTeacherRequired   = "Lead teacher is required"
	MsgTeacherUnknown    = "Lead teacher does not exist"
	MsgTeacherInactive   = "Lead teacher is inactive"
	MsgRoomRequired      = "Room is required"
	MsgStartRequired     = "Start time is required"
	MsgEndRequired       = "End time is required"
	MsgClockFormat       = "Time must use the HH:MM format"
	MsgTimeOrder         = "Start time must be before end time"
	MsgFeeRequired       = "Fee is required"
	MsgFeeNumber         = "Fee must be a whole number"
	MsgFeeNegative       = "Fee cannot be negative"
	MsgTermStartRequired = "Term start date is required"
	MsgTermEndRequired   = "Term end date is required"
	MsgDateFormat        = "Date must use the YYYY-MM-DD format"
	MsgTermOrder         = "Term start must be before term end"
	MsgDaysRequired      = "Select at least one day of the week"
	MsgDaysUnknown       = "Unknown day of the week"
	MsgTooLong           = "Value is too long"
)

// Form field keys, identical to the JSON names of models.Course.
const (
	FieldName          = "name"
	FieldLevel         = "level"
	FieldDescription   = "description"
	FieldMaxCapacity   = "max_capacity"
	FieldEnrolledCount = "enrolled_count"
	FieldLeadTeacherID = "lead_teacher_id"
	FieldRoom          = "room"
	FieldStartTime     = "start_time"
	FieldEndTime       = "end_time"
	FieldDaysOfWeek    = "days_of_week"
	FieldEnrollmentFee = "enrollment_fee"
	FieldMonthlyFee    = "monthly_fee"
	FieldTermStart     = "term_start"
	FieldTermEnd       = "term_end"
	FieldNotes         = "notes"
)

// ValidateName checks the course name bounds.
func ValidateName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return MsgNameRequired
	}
	if n := utf8.RuneCountInString(name); n < CourseNameMin || n > CourseNameMax {
		return MsgNameLength
	}
	return ""
}

// ValidateLevel checks that raw names a supported level.
func ValidateLevel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MsgLevelRequired
	}
	if !models.CourseLevel(raw).Valid() {
		return MsgLevelUnknown
	}
	return ""
}

// ValidateCapacity parses and bounds the maximum capacity.
func ValidateCapacity(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MsgCapacityRequired
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return MsgCapacityNumber
	}
	if n < CourseCapacityMin || n > CourseCapacityMax {
		return MsgCapacityRange
	}
	return ""
}

// ValidateEnrolled checks an optional enrolled count. Blank means "leave unchanged".
func ValidateEnrolled(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return MsgEnrolledNumber
	}
	if n < 0 {
		return MsgEnrolledNegative
	}
	return ""
}

// ValidateFee parses a fee amount in whole currency units.
func ValidateFee(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MsgFeeRequired
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return MsgFeeNumber
	}
	if n < 0 {
		return MsgFeeNegative
	}
	return ""
}

// ValidateRequired returns msg when raw is blank.
func ValidateRequired(raw, msg string) string {
	if strings.TrimSpace(raw) == "" {
		return msg
	}
	return ""
}

// ValidateTimeRange checks both clock values. A violated ordering yields the same
// message for both fields.
func ValidateTimeRange(start, end string) (startMsg, endMsg string) {
	startMin, startMsg := parseClockField(start, MsgStartRequired)
	endMin, endMsg := parseClockField(end, MsgEndRequired)
	if startMsg != "" || endMsg != "" {
		return startMsg, endMsg
	}
	if startMin >= endMin {
		return MsgTimeOrder, MsgTimeOrder
	}
	return "", ""
}

// ValidateTermRange checks both term dates. A violated ordering yields the same
// message for both fields.
func ValidateTermRange(start, end string) (startMsg, endMsg string) {
	startDate, startMsg := parseDateField(start, MsgTermStartRequired)
	endDate, endMsg := parseDateField(end, MsgTermEndRequired)
	if startMsg != "" || endMsg != "" {
		return startMsg, endMsg
	}
	if !startDate.Before(endDate) {
		return MsgTermOrder, MsgTermOrder
	}
	return "", ""
}

// ValidateDays requires at least one known weekday.
func ValidateDays(days []string) string {
	known := 0
	for _, raw := range days {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, ok := models.ParseWeekday(raw); !ok {
			return MsgDaysUnknown
		}
		known++
	}
	if known == 0 {
		return MsgDaysRequired
	}
	return ""
}

// ValidateCourseForm runs every field validator; nothing short-circuits.
func ValidateCourseForm(form dto.CourseForm) dto.ValidationResult {
	errs := make(map[string]string)
	set := func(field, msg string) {
		if msg != "" {
			errs[field] = msg
		}
	}

	set(FieldName, ValidateName(string(form.Name)))
	set(FieldLevel, ValidateLevel(string(form.Level)))
	set(FieldMaxCapacity, ValidateCapacity(string(form.MaxCapacity)))
	set(FieldEnrolledCount, ValidateEnrolled(string(form.EnrolledCount)))
	set(FieldLeadTeacherID, ValidateRequired(string(form.LeadTeacherID), MsgTeacherRequired))
	set(FieldRoom, ValidateRequired(string(form.Room), MsgRoomRequired))

	startMsg, endMsg := ValidateTimeRange(string(form.StartTime), string(form.EndTime))
	set(FieldStartTime, startMsg)
	set(FieldEndTime, endMsg)

	set(FieldEnrollmentFee, ValidateFee(string(form.EnrollmentFee)))
	set(FieldMonthlyFee, ValidateFee(string(form.MonthlyFee)))

	termStartMsg, termEndMsg := ValidateTermRange(string(form.TermStart), string(form.TermEnd))
	set(FieldTermStart, termStartMsg)
	set(FieldTermEnd, termEndMsg)

	set(FieldDaysOfWeek, ValidateDays(form.DaysOfWeek))

	if utf8.RuneCountInString(form.Description.String()) > 1000 {
		errs[FieldDescription] = MsgTooLong
	}
	if utf8.RuneCountInString(form.Notes.String()) > 1000 {
		errs[FieldNotes] = MsgTooLong
	}

	return dto.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// ParseCourseForm validates form and, when valid, converts it into a typed draft.
func ParseCourseForm(form dto.CourseForm) (models.CourseDraft, dto.ValidationResult) {
	result := ValidateCourseForm(form)
	if !result.IsValid {
		return models.CourseDraft{}, result
	}

	capacity, _ := strconv.Atoi(form.MaxCapacity.String())
	enrollmentFee, _ := strconv.ParseInt(form.EnrollmentFee.String(), 10, 64)
	monthlyFee, _ := strconv.ParseInt(form.MonthlyFee.String(), 10, 64)
	startMin, _ := models.ParseClock(form.StartTime.String())
	endMin, _ := models.ParseClock(form.EndTime.String())
	termStart, _ := time.Parse(models.DateLayout, form.TermStart.String())
	termEnd, _ := time.Parse(models.DateLayout, form.TermEnd.String())

	days := make(models.Weekdays, 0, len(form.DaysOfWeek))
	for _, raw := range form.DaysOfWeek {
		days = append(days, models.Weekday(raw))
	}

	draft := models.CourseDraft{
		Name:          form.Name.String(),
		Level:         models.CourseLevel(form.Level.String()),
		Description:   form.Description.String(),
		MaxCapacity:   capacity,
		LeadTeacherID: form.LeadTeacherID.String(),
		Room:          form.Room.String(),
		StartTime:     models.FormatClock(startMin),
		EndTime:       models.FormatClock(endMin),
		DaysOfWeek:    days.Normalize(),
		EnrollmentFee: enrollmentFee,
		MonthlyFee:    monthlyFee,
		TermStart:     termStart,
		TermEnd:       termEnd,
	}
	if !form.Notes.Empty() {
		notes := form.Notes.String()
		draft.Notes = &notes
	}
	return draft, result
}

// PatchFromCourseForm validates an edit form and converts it into a patch that
// overwrites every editable field. A blank enrolled count leaves it untouched;
// blank notes clear the stored notes.
func PatchFromCourseForm(form dto.CourseForm) (models.CoursePatch, dto.ValidationResult) {
	draft, result := ParseCourseForm(form)
	if !result.IsValid {
		return models.CoursePatch{}, result
	}
	notes := ""
	if draft.Notes != nil {
		notes = *draft.Notes
	}
	patch := models.CoursePatch{
		Name:          &draft.Name,
		Level:         &draft.Level,
		Description:   &draft.Description,
		MaxCapacity:   &draft.MaxCapacity,
		LeadTeacherID: &draft.LeadTeacherID,
		Room:          &draft.Room,
		StartTime:     &draft.StartTime,
		EndTime:       &draft.EndTime,
		DaysOfWeek:    &draft.DaysOfWeek,
		EnrollmentFee: &draft.EnrollmentFee,
		MonthlyFee:    &draft.MonthlyFee,
		TermStart:     &draft.TermStart,
		TermEnd:       &draft.TermEnd,
		Notes:         &notes,
	}
	if !form.EnrolledCount.Empty() {
		enrolled, _ := strconv.Atoi(form.EnrolledCount.String())
		patch.EnrolledCount = &enrolled
	}
	return patch, result
}

func parseClockField(raw, requiredMsg string) (int, string) {
	if strings.TrimSpace(raw) == "" {
		return 0, requiredMsg
	}
	minutes, err := models.ParseClock(raw)
	if err != nil {
		return 0, MsgClockFormat
	}
	return minutes, ""
}

func parseDateField(raw, requiredMsg string) (time.Time, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, requiredMsg
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, MsgDateFormat
	}
	return d, ""
}

// courseRecord is the full set of invariants a stored course must satisfy.
type courseRecord struct {
	Name          string             `json:"name" validate:"required,trimmed_len=2:50"`
	Level         models.CourseLevel `json:"level" validate:"required,course_level"`
	Description   string             `json:"description" validate:"max=1000"`
	MaxCapacity   int                `json:"max_capacity" validate:"min=1,max=50"`
	EnrolledCount int                `json:"enrolled_count" validate:"min=0"`
	LeadTeacherID string             `json:"lead_teacher_id" validate:"required"`
	Room          string             `json:"room" validate:"required,notblank"`
	StartTime     string             `json:"start_time" validate:"required,clock"`
	EndTime       string             `json:"end_time" validate:"required,clock"`
	DaysOfWeek    models.Weekdays    `json:"days_of_week" validate:"min=1,dive,weekday"`
	EnrollmentFee int64              `json:"enrollment_fee" validate:"min=0"`
	MonthlyFee    int64              `json:"monthly_fee" validate:"min=0"`
	TermStart     time.Time          `json:"term_start" validate:"required"`
	TermEnd       time.Time          `json:"term_end" validate:"required"`
}

func recordFromCourse(c models.Course) courseRecord {
	return courseRecord{
		Name:          c.Name,
		Level:         c.Level,
		Description:   c.Description,
		MaxCapacity:   c.MaxCapacity,
		EnrolledCount: c.EnrolledCount,
		LeadTeacherID: c.LeadTeacherID,
		Room:          c.Room,
		StartTime:     c.StartTime,
		EndTime:       c.EndTime,
		DaysOfWeek:    c.DaysOfWeek,
		EnrollmentFee: c.EnrollmentFee,
		MonthlyFee:    c.MonthlyFee,
		TermStart:     c.TermStart,
		TermEnd:       c.TermEnd,
	}
}

// NewCourseValidator returns a validator with the course specific tags registered.
// Field names in reported errors use the JSON names.
func NewCourseValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("trimmed_len", trimmedLen)
	_ = v.RegisterValidation("course_level", func(fl validator.FieldLevel) bool {
		return models.CourseLevel(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClock(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseWeekday(fl.Field().String())
		return ok
	})
	v.RegisterStructValidation(draftRangeValidation, models.CourseDraft{})
	v.RegisterStructValidation(recordRangeValidation, courseRecord{})
	return v
}

// trimmedLen implements trimmed_len=min:max over the rune count of the trimmed value.
func trimmedLen(fl validator.FieldLevel) bool {
	var lo, hi int
	if _, err := fmt.Sscanf(fl.Param(), "%d:%d", &lo, &hi); err != nil {
		return false
	}
	n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
	return n >= lo && n <= hi
}

func draftRangeValidation(sl validator.StructLevel) {
	d := sl.Current().Interface().(models.CourseDraft)
	reportRanges(sl, d.StartTime, d.EndTime, d.TermStart, d.TermEnd)
}

func recordRangeValidation(sl validator.StructLevel) {
	r := sl.Current().Interface().(courseRecord)
	reportRanges(sl, r.StartTime, r.EndTime, r.TermStart, r.TermEnd)
}

func reportRanges(sl validator.StructLevel, startTime, endTime string, termStart, termEnd time.Time) {
	startMin, errStart := models.ParseClock(startTime)
	endMin, errEnd := models.ParseClock(endTime)
	if errStart == nil && errEnd == nil && startMin >= endMin {
		sl.ReportError(startTime, FieldStartTime, "StartTime", "time_order", "")
		sl.ReportError(endTime, FieldEndTime, "EndTime", "time_order", "")
	}
	if !termStart.IsZero() && !termEnd.IsZero() && !termStart.Before(termEnd) {
		sl.ReportError(termStart, FieldTermStart, "TermStart", "term_order", "")
		sl.ReportError(termEnd, FieldTermEnd, "TermEnd", "term_order", "")
	}
}

// ValidationDetails converts validator errors into per-field messages matching
// the ones ValidateCourseForm produces.
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if idx := strings.IndexByte(field, '['); idx >= 0 {
			field = field[:idx]
		}
		if _, exists := details[field]; exists {
			continue
		}
		details[field] = messageFor(field, fe.Tag())
	}
	return details
}

func messageFor(field, tag string) string {
	switch tag {
	case "time_order":
		return MsgTimeOrder
	case "term_order":
		return MsgTermOrder
	case "clock":
		return MsgClockFormat
	case "weekday":
		return MsgDaysUnknown
	}
	switch field {
	case FieldName:
		if tag == "required" {
			return MsgNameRequired
		}
		return MsgNameLength
	case FieldLevel:
		if tag == "required" {
			return MsgLevelRequired
		}
		return MsgLevelUnknown
	case FieldMaxCapacity:
		return MsgCapacityRange
	case FieldEnrolledCount:
		return MsgEnrolledNegative
	case FieldLeadTeacherID:
		return MsgTeacherRequired
	case FieldRoom:
		return MsgRoomRequired
	case FieldStartTime:
		return MsgStartRequired
	case FieldEndTime:
		return MsgEndRequired
	case FieldDaysOfWeek:
		return MsgDaysRequired
	case FieldEnrollmentFee, FieldMonthlyFee:
		return MsgFeeNegative
	case FieldTermStart:
		return MsgTermStartRequired
	case FieldTermEnd:
		return MsgTermEndRequired
	case FieldDescription, FieldNotes:
		return MsgTooLong
	}
	return fmt.Sprintf("failed %s validation", tag)
}
