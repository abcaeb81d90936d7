package progress

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"gopkg.in/yaml.v3"
)

type thresholdFile struct {
	Thresholds []domain.AvatarStageThreshold `yaml:"thresholds"`
}

// LoadThresholds reads an avatar threshold table from a YAML file. An empty path
// returns the default table.
func LoadThresholds(path string) ([]domain.AvatarStageThreshold, error) {
	if path == "" {
		return DefaultThresholds(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds: %w", err)
	}
	return ParseThresholds(data)
}

// ParseThresholds decodes and validates a YAML threshold table.
func ParseThresholds(data []byte) ([]domain.AvatarStageThreshold, error) {
	var f thresholdFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	if err := ValidateThresholds(f.Thresholds); err != nil {
		return nil, err
	}
	sort.SliceStable(f.Thresholds, func(i, j int) bool {
		return f.Thresholds[i].MinCompletionPercent < f.Thresholds[j].MinCompletionPercent
	})
	return f.Thresholds, nil
}

// ValidateThresholds checks that the table covers 0% and has increasing levels.
func ValidateThresholds(ts []domain.AvatarStageThreshold) error {
	if len(ts) == 0 {
		return errors.New("threshold table is empty")
	}
	sorted := make([]domain.AvatarStageThreshold, len(ts))
	copy(sorted, ts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinCompletionPercent < sorted[j].MinCompletionPercent
	})
	if sorted[0].MinCompletionPercent != 0 {
		return fmt.Errorf("lowest threshold must start at 0%%, got %d%%", sorted[0].MinCompletionPercent)
	}
	for i, th := range sorted {
		if th.StageName == "" {
			return fmt.Errorf("threshold level %d has no stage name", th.Level)
		}
		if th.MinCompletionPercent < 0 || th.MinCompletionPercent > 100 {
			return fmt.Errorf("threshold level %d: percent %d out of range", th.Level, th.MinCompletionPercent)
		}
		if i > 0 {
			prev := sorted[i-1]
			if th.MinCompletionPercent == prev.MinCompletionPercent {
				return fmt.Errorf("thresholds %d and %d share %d%%", prev.Level, th.Level, th.MinCompletionPercent)
			}
			if th.Level <= prev.Level {
				return fmt.Errorf("threshold level %d does not increase over %d", th.Level, prev.Level)
			}
		}
	}
	return nil
}
