package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/noah-isme/course-admin-api/internal/models"
)

// SeedData is the startup dataset for the course store.
type SeedData struct {
	Teachers []models.Teacher `json:"teachers"`
	Courses  []models.Course  `json:"courses"`
}

// LoadSeedFile reads a JSON seed file. An empty path yields an empty dataset.
func LoadSeedFile(path string) (*SeedData, error) {
	if path == "" {
		return &SeedData{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed SeedData
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	for i := range seed.Courses {
		seed.Courses[i].DaysOfWeek = seed.Courses[i].DaysOfWeek.Normalize()
	}
	return &seed, nil
}
