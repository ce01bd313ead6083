package validator

import "swevalidator/internal/tactile/swebench"

// Entry is one loaded data point together with the name it was loaded as.
type Entry struct {
	Source   string
	Instance *swebench.Instance
}

// Batch is an ordered set of data points keyed by instance id.
type Batch struct {
	entries []Entry
	index   map[string]int
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{index: make(map[string]int)}
}

// Add appends inst, loaded from source. It returns a structural error if the
// instance id is already present.
func (b *Batch) Add(source string, inst *swebench.Instance) error {
	if i, ok := b.index[inst.InstanceID]; ok {
		return structuralError(source,
			"Duplicate instance_id '%s' found. Already loaded from '%s'.",
			inst.InstanceID, b.entries[i].Source)
	}
	b.index[inst.InstanceID] = len(b.entries)
	b.entries = append(b.entries, Entry{Source: source, Instance: inst})
	return nil
}

// Len returns the number of data points.
func (b *Batch) Len() int {
	return len(b.entries)
}

// Entries returns the data points in load order.
func (b *Batch) Entries() []Entry {
	return b.entries
}

// InstanceIDs returns the instance ids in load order.
func (b *Batch) InstanceIDs() []string {
	ids := make([]string, len(b.entries))
	for i, e := range b.entries {
		ids[i] = e.Instance.InstanceID
	}
	return ids
}

// Source returns the name the instance was loaded as.
func (b *Batch) Source(instanceID string) (string, bool) {
	i, ok := b.index[instanceID]
	if !ok {
		return "", false
	}
	return b.entries[i].Source, true
}

// Instances returns the records in load order.
func (b *Batch) Instances() []*swebench.Instance {
	out := make([]*swebench.Instance, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Instance
	}
	return out
}

// Predictions returns one prediction per record, in load order.
func (b *Batch) Predictions() []swebench.Prediction {
	out := make([]swebench.Prediction, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Instance.Prediction()
	}
	return out
}
