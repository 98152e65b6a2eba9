package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cookietrail/services/recorder/internal/classifier"
)

type scoringFile struct {
	Weights classifier.Weights `yaml:"weights"`
}

// LoadScoring reads a YAML scoring file over the default weights. An empty
// path returns the defaults unchanged.
func LoadScoring(path string) (classifier.Weights, error) {
	file := scoringFile{Weights: classifier.DefaultWeights()}
	if path == "" {
		return file.Weights, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return classifier.Weights{}, fmt.Errorf("reading scoring file: %w", err)
	}

	if err := yaml.Unmarshal(data, &file); err != nil {
		return classifier.Weights{}, fmt.Errorf("parsing scoring file: %w", err)
	}

	if err := validateWeights(file.Weights); err != nil {
		return classifier.Weights{}, err
	}
	return file.Weights, nil
}

func validateWeights(w classifier.Weights) error {
	if w.NamePrefixMinLength < 1 {
		return fmt.Errorf("name_prefix_min_length must be >= 1")
	}
	if w.MediumThreshold < 1 {
		return fmt.Errorf("medium_threshold must be >= 1")
	}
	if w.HighThreshold < w.MediumThreshold {
		return fmt.Errorf("high_threshold %d is below medium_threshold %d", w.HighThreshold, w.MediumThreshold)
	}
	return nil
}
