package devstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ameet2r/workout/internal/models"
)

// Fixtures is the YAML seed format for the development store.
type Fixtures struct {
	Token    string                           `yaml:"token,omitempty"`
	Plans    []models.WorkoutPlan             `yaml:"plans"`
	Sessions []models.WorkoutSession          `yaml:"sessions"`
	History  []models.ExerciseHistorySnapshot `yaml:"history"`
}

func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, p := range f.Plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan %d: missing id", i)
		}
	}
	for i, s := range f.Sessions {
		if s.ID == "" {
			return nil, fmt.Errorf("session %d: missing id", i)
		}
	}
	return &f, nil
}
