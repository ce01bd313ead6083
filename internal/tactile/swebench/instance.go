// Package swebench holds the types exchanged with the SWE-bench evaluation
// harness: dataset instances, predictions, per-instance reports, and the
// Harness capability that runs an evaluation.
//
// The harness itself (image builds, patch application, test execution) is an
// external Python program; this package only describes its inputs and
// outputs and knows how to launch it.
package swebench

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotObject is returned when a data point is valid JSON but not an object.
	ErrNotObject = errors.New("data point is not a JSON object")
	// ErrMissingInstanceID is returned when instance_id is absent, null, or empty.
	ErrMissingInstanceID = errors.New("missing required field 'instance_id'")

	// ErrInvalidInstanceID is returned when instance_id cannot name a log directory.
	ErrInvalidInstanceID = errors.New("instance_id must be a single path segment")
	// ErrMissingPatch is returned when patch is absent, null, or empty.
	ErrMissingPatch = errors.New("missing or empty 'patch' field")
)

// Instance is a single SWE-bench data point.
// The harness consumes the full object, so every field is kept verbatim
// and written back unchanged when the dataset is staged.
type Instance struct {
	InstanceID string
	Patch      string

	// Optional fields, decoded for logging only.
	Repo       string
	BaseCommit string
	FailToPass []string
	PassToPass []string

	raw map[string]json.RawMessage
}

// ParseInstance decodes and validates a data point.
// JSON syntax errors are returned as-is so callers can report them verbatim.
func ParseInstance(data []byte) (*Instance, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, ErrNotObject
		}
		return nil, err
	}
	if raw == nil {
		// literal null
		return nil, ErrNotObject
	}

	inst := &Instance{raw: raw}

	id, ok := stringField(raw, "instance_id")
	if !ok || id == "" {
		return nil, ErrMissingInstanceID
	}
	if !validInstanceID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInstanceID, id)
	}
	inst.InstanceID = id

	patch, ok := stringField(raw, "patch")
	if !ok || patch == "" {
		return inst, ErrMissingPatch
	}
	inst.Patch = patch

	inst.Repo, _ = stringField(raw, "repo")
	inst.BaseCommit, _ = stringField(raw, "base_commit")
	inst.FailToPass = testListField(raw, "FAIL_TO_PASS")
	inst.PassToPass = testListField(raw, "PASS_TO_PASS")

	return inst, nil
}

// stringField returns raw[key] decoded as a string. ok is false when the key
// is absent, null, or not a string.
func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	v, exists := raw[key]
	if !exists || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// testListField accepts both a JSON array and the JSON-encoded string form
// used by the HuggingFace SWE-bench datasets.
func testListField(raw map[string]json.RawMessage, key string) []string {
	v, exists := raw[key]
	if !exists {
		return nil
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return list
	}
	var encoded string
	if err := json.Unmarshal(v, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		return nil
	}
	return list
}

// MarshalJSON writes the original object back.
func (i *Instance) MarshalJSON() ([]byte, error) {
	if i.raw != nil {
		return json.Marshal(i.raw)
	}
	return json.Marshal(map[string]string{
		"instance_id": i.InstanceID,
		"patch":       i.Patch,
	})
}

// validInstanceID reports whether id is usable as a directory name under the
// run log root.
func validInstanceID(id string) bool {
	return id != "." && id != ".." && !strings.ContainsAny(id, "/\\\x00")
}

// Prediction builds the prediction entry attributing this instance's patch
// to the validator.
func (i *Instance) Prediction() Prediction {
	return Prediction{
		InstanceID:      i.InstanceID,
		ModelNameOrPath: ModelName,
		ModelPatch:      i.Patch,
	}
}

// Prediction represents a patch prediction for a SWE-bench instance.
type Prediction struct {
	InstanceID      string `json:"instance_id"`
	ModelNameOrPath string `json:"model_name_or_path"`
	ModelPatch      string `json:"model_patch"`
}
