package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

// FormValue is a raw form input. JSON strings and numbers are both accepted so
// numeric fields can be validated from their textual representation.
type FormValue string

// UnmarshalJSON accepts strings, numbers and null.
func (v *FormValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FormValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("form value must be a string or number: %w", err)
	}
	*v = FormValue(n.String())
	return nil
}

// String returns the trimmed input.
func (v FormValue) String() string {
	return strings.TrimSpace(string(v))
}

// Empty reports whether the input is blank.
func (v FormValue) Empty() bool {
	return v.String() == ""
}

// CourseForm is the create/edit form exactly as the presentation layer submits it.
type CourseForm struct {
	Name          FormValue `json:"name"`
	Level         FormValue `json:"level"`
	Description   FormValue `json:"description"`
	MaxCapacity   FormValue `json:"max_capacity"`
	EnrolledCount FormValue `json:"enrolled_count"`
	LeadTeacherID FormValue `json:"lead_teacher_id"`
	Room          FormValue `json:"room"`
	StartTime     FormValue `json:"start_time"`
	EndTime       FormValue `json:"end_time"`
	DaysOfWeek    []string  `json:"days_of_week"`
	EnrollmentFee FormValue `json:"enrollment_fee"`
	MonthlyFee    FormValue `json:"monthly_fee"`
	TermStart     FormValue `json:"term_start"`
	TermEnd       FormValue `json:"term_end"`
	Notes         FormValue `json:"notes"`
}

// ValidationResult reports every failing field of a form at once.
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  map[string]string `json:"errors"`
}

// MutationResult is the structured outcome of a store mutation.
type MutationResult struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
}

// NewMutationResult folds a mutation's return values into a MutationResult.
func NewMutationResult(data interface{}, err error) MutationResult {
	if err != nil {
		appErr := appErrors.FromError(err)
		return MutationResult{
			Success: false,
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		}
	}
	return MutationResult{Success: true, Data: data}
}

// CourseStats summarises the course collection for the dashboard cards.
type CourseStats struct {
	Total                   int                        `json:"total"`
	Active                  int                        `json:"active"`
	Inactive                int                        `json:"inactive"`
	ActivePercentage        float64                    `json:"active_percentage"`
	ByLevel                 map[models.CourseLevel]int `json:"by_level"`
	TotalCapacity           int                        `json:"total_capacity"`
	TotalEnrolled           int                        `json:"total_enrolled"`
	AverageOccupancy        float64                    `json:"average_occupancy"`
	EstimatedMonthlyRevenue int64                      `json:"estimated_monthly_revenue"`
	TopDemand               []CourseDemand             `json:"top_demand"`
}

// CourseDemand is one entry of the top demand ranking.
type CourseDemand struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	Level           models.CourseLevel `json:"level"`
	LeadTeacherName string             `json:"lead_teacher_name"`
	EnrolledCount   int                `json:"enrolled_count"`
	MaxCapacity     int                `json:"max_capacity"`
	Occupancy       float64            `json:"occupancy"`
}
