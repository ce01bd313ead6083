package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"swevalidator/internal/logging"
)

// maxNameAttempts bounds the numeric suffix search for a free file name.
const maxNameAttempts = 100

// StagedFiles are the harness inputs written for one run.
type StagedFiles struct {
	DatasetPath     string
	PredictionsPath string
}

// Stager writes the dataset and predictions files for a batch.
type Stager struct {
	dir string
}

// NewStager creates a stager writing into dir. dir must already exist.
func NewStager(dir string) *Stager {
	return &Stager{dir: dir}
}

// Stage writes dataset_<N>inst_<stamp>.json and predictions_<N>inst_<stamp>.json.
// Existing files are never overwritten: a clash gets a numeric suffix.
func (s *Stager) Stage(batch *Batch, stamp string) (*StagedFiles, error) {
	if info, err := os.Stat(s.dir); err != nil {
		return nil, fmt.Errorf("scratch directory unavailable: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("scratch path %s is not a directory", s.dir)
	}

	base := fmt.Sprintf("%dinst_%s", batch.Len(), stamp)

	dataset, err := s.writeJSON("dataset_"+base, batch.Instances())
	if err != nil {
		return nil, fmt.Errorf("failed to stage dataset: %w", err)
	}
	predictions, err := s.writeJSON("predictions_"+base, batch.Predictions())
	if err != nil {
		return nil, fmt.Errorf("failed to stage predictions: %w", err)
	}

	logging.Staging("Staged %d instance(s): %s, %s", batch.Len(), filepath.Base(dataset), filepath.Base(predictions))
	return &StagedFiles{DatasetPath: dataset, PredictionsPath: predictions}, nil
}

// writeJSON marshals v into a new file named stem.json (or stem_<k>.json)
// and returns its path.
func (s *Stager) writeJSON(stem string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := stem + ".json"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.json", stem, attempt)
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s after %d attempts", stem, maxNameAttempts)
}
