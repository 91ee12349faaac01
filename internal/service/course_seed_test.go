package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-admin-api/internal/models"
	"github.com/noah-isme/course-admin-api/internal/repository"
)

func seedCourse(name string) models.Course {
	return models.Course{
		ID:              1,
		Name:            name,
		Level:           models.CourseLevelSecondary,
		MaxCapacity:     20,
		EnrolledCount:   4,
		LeadTeacherID:   "t1",
		LeadTeacherName: "Someone Else",
		Room:            "Lab 1",
		StartTime:       "9:00",
		EndTime:         "10:30",
		DaysOfWeek:      models.Weekdays{models.Wednesday, models.Monday},
		TermStart:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		TermEnd:         time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC),
		Active:          true,
	}
}

func TestPrepareSeedNormalizesCourses(t *testing.T) {
	seed := &repository.SeedData{
		Teachers: []models.Teacher{{ID: "t1", FullName: "Ana Torres", Active: true}},
		Courses:  []models.Course{seedCourse(" Robotics ")},
	}

	require.NoError(t, PrepareSeed(seed, nil))
	c := seed.Courses[0]
	assert.Equal(t, "Robotics", c.Name)
	assert.Equal(t, "Ana Torres", c.LeadTeacherName)
	assert.Equal(t, "09:00", c.StartTime)
	assert.Equal(t, models.Weekdays{models.Monday, models.Wednesday}, c.DaysOfWeek)
}

func TestPrepareSeedRejectsInvalidCourses(t *testing.T) {
	teachers := []models.Teacher{{ID: "t1", FullName: "Ana Torres", Active: true}}

	tooBig := seedCourse("Robotics")
	tooBig.MaxCapacity = 80
	err := PrepareSeed(&repository.SeedData{Teachers: teachers, Courses: []models.Course{tooBig}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgCapacityRange)

	orphan := seedCourse("Robotics")
	orphan.LeadTeacherID = "ghost"
	err = PrepareSeed(&repository.SeedData{Teachers: teachers, Courses: []models.Course{orphan}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown lead teacher")

	first := seedCourse("Robotics")
	second := seedCourse("ROBOTICS")
	second.ID = 2
	err = PrepareSeed(&repository.SeedData{Teachers: teachers, Courses: []models.Course{first, second}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgNameTaken)

	second = seedCourse("Chess")
	err = PrepareSeed(&repository.SeedData{Teachers: teachers, Courses: []models.Course{first, second}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id 1")
}

func TestPrepareSeedShippedDataset(t *testing.T) {
	seed, err := repository.LoadSeedFile(filepath.Join("..", "..", "data", "seed.json"))
	require.NoError(t, err)
	require.NoError(t, PrepareSeed(seed, nil))
	assert.Len(t, seed.Courses, 8)
}
