package validator

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swevalidator/internal/tactile/swebench"
)

func loadBatch(t *testing.T, points map[string]string, names ...string) *Batch {
	t.Helper()
	dir := t.TempDir()
	for name, content := range points {
		writeDataPoint(t, dir, name, content)
	}
	batch, err := NewLoader(dir).Load(names)
	require.NoError(t, err)
	return batch
}

func TestStager_RoundTrip(t *testing.T) {
	batch := loadBatch(t, map[string]string{
		"a.json": `{"instance_id": "a__a-1", "patch": "diff --git a/f b/f\n+x\n", "FAIL_TO_PASS": "[\"t1\"]", "extra": {"k": [1, 2]}}`,
		"b.json": dataPoint("b__b-2", "diff b"),
	}, "a", "b")

	scratch := t.TempDir()
	staged, err := NewStager(scratch).Stage(batch, "20250102_030405")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(scratch, "dataset_2inst_20250102_030405.json"), staged.DatasetPath)
	assert.Equal(t, filepath.Join(scratch, "predictions_2inst_20250102_030405.json"), staged.PredictionsPath)

	var dataset []map[string]interface{}
	data, err := os.ReadFile(staged.DatasetPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &dataset))
	require.Len(t, dataset, 2)
	assert.Equal(t, "a__a-1", dataset[0]["instance_id"])
	assert.Equal(t, "b__b-2", dataset[1]["instance_id"])
	assert.Equal(t, "[\"t1\"]", dataset[0]["FAIL_TO_PASS"], "fields are staged verbatim")
	assert.Equal(t, map[string]interface{}{"k": []interface{}{float64(1), float64(2)}}, dataset[0]["extra"])

	var predictions []swebench.Prediction
	data, err = os.ReadFile(staged.PredictionsPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &predictions))

	want := []swebench.Prediction{
		{InstanceID: "a__a-1", ModelNameOrPath: "validator", ModelPatch: "diff --git a/f b/f\n+x\n"},
		{InstanceID: "b__b-2", ModelNameOrPath: "validator", ModelPatch: "diff b"},
	}
	if diff := cmp.Diff(want, predictions); diff != "" {
		t.Errorf("predictions mismatch (-want +got):\n%s", diff)
	}
}

func TestStager_NeverOverwrites(t *testing.T) {
	batch := loadBatch(t, map[string]string{"a.json": dataPoint("a__a-1", "p")}, "a")
	scratch := t.TempDir()

	existing := filepath.Join(scratch, "dataset_1inst_stamp.json")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0644))

	staged, err := NewStager(scratch).Stage(batch, "stamp")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(scratch, "dataset_1inst_stamp_1.json"), staged.DatasetPath)
	assert.Equal(t, filepath.Join(scratch, "predictions_1inst_stamp.json"), staged.PredictionsPath)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))

	again, err := NewStager(scratch).Stage(batch, "stamp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "dataset_1inst_stamp_2.json"), again.DatasetPath)
	assert.Equal(t, filepath.Join(scratch, "predictions_1inst_stamp_1.json"), again.PredictionsPath)
}

func TestStager_MissingDirectory(t *testing.T) {
	batch := loadBatch(t, map[string]string{"a.json": dataPoint("a__a-1", "p")}, "a")

	_, err := NewStager(filepath.Join(t.TempDir(), "gone")).Stage(batch, "stamp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scratch directory unavailable")

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "infrastructure errors are not validation errors")
}
