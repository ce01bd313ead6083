package validator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"swevalidator/internal/logging"
	"swevalidator/internal/tactile/swebench"
)

// DefaultExtension is appended to data point names given without one.
const DefaultExtension = ".json"

// Loader reads data point files from a records directory.
type Loader struct {
	dir       string
	extension string
}

// NewLoader creates a loader for dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, extension: DefaultExtension}
}

// WithExtension overrides the file extension appended to bare names.
func (l *Loader) WithExtension(ext string) *Loader {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if ext != "" {
		l.extension = ext
	}
	return l
}

// FileName returns the file name a data point name resolves to.
func (l *Loader) FileName(name string) string {
	if strings.HasSuffix(name, l.extension) {
		return name
	}
	return name + l.extension
}

// Load reads every named data point into a batch. It stops at the first
// problem and returns it as a structural *ValidationError; no partial batch
// is returned.
func (l *Loader) Load(names []string) (*Batch, error) {
	if len(names) == 0 {
		return nil, structuralError("", "No data points given. Pass at least one data point name.")
	}

	timer := logging.StartTimer(logging.CategoryLoader, "Load")
	defer timer.Stop()

	batch := NewBatch()
	for _, name := range names {
		source := l.FileName(name)
		inst, err := l.loadOne(source)
		if err != nil {
			return nil, err
		}
		if err := batch.Add(source, inst); err != nil {
			logging.LoaderWarn("Rejected %s: %v", source, err)
			return nil, err
		}
		logging.LoaderDebug("Loaded %s as %s", source, inst)
	}

	logging.Loader("Loaded %d data point(s) from %s", batch.Len(), l.dir)
	return batch, nil
}

func (l *Loader) loadOne(source string) (*swebench.Instance, error) {
	path := filepath.Join(l.dir, source)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, structuralError(source,
				"Data point file not found: '%s'. Ensure the file exists in the '%s' directory.",
				path, l.dir)
		}
		return nil, structuralError(source, "Failed to read data point file: %v", err)
	}

	inst, err := swebench.ParseInstance(data)
	switch {
	case err == nil:
		return inst, nil
	case errors.Is(err, swebench.ErrMissingInstanceID):
		return nil, structuralError(source,
			"Missing required field 'instance_id' in data point file. Please ensure the data point follows the SWE-bench format.")
	case errors.Is(err, swebench.ErrInvalidInstanceID):
		return nil, structuralError(source,
			"Invalid 'instance_id' in data point file: %v. Instance ids must not contain path separators.", err)
	case errors.Is(err, swebench.ErrMissingPatch):
		return nil, structuralError(inst.InstanceID,
			"Missing or empty 'patch' field in data point '%s'. The patch is required for validation.",
			source)
	default:
		return nil, structuralError(source,
			"Invalid JSON format in data point file: %v. Please check the file syntax.", err)
	}
}
