package autoprobe

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a scalar produced by extraction: a string, a float64, a bool or
// nil. Use NormalizeValue to coerce other Go scalars.
type Value = any

// NormalizeValue converts v into one of the scalar shapes allowed in a
// Value. Integer and float kinds become float64 and json.Number is parsed.
// Returns EINVALID for non-scalar values.
func NormalizeValue(v any) (Value, error) {
	switch v := v.(type) {
	case nil, string, bool:
		return v, nil
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, Errorf(EINVALID, "invalid number %q", v.String())
		}
		return finite(f)
	default:
		return nil, Errorf(EINVALID, "value of type %T is not a scalar", v)
	}
}

func finite(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, Errorf(EINVALID, "value %v is not a finite number", f)
	}
	return f, nil
}

// canonicalValue renders a normalized value as a string that orders values
// of different kinds consistently. Used to break ties deterministically.
func canonicalValue(v Value) string {
	switch v := v.(type) {
	case nil:
		return "0:"
	case bool:
		return "1:" + strconv.FormatBool(v)
	case float64:
		return "2:" + strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "3:" + v
	default:
		return "4:" + fmt.Sprint(v)
	}
}

// ExtractionRecord is one flat fact produced by an evaluator: the value a
// pattern node yielded for one repetition of its enclosing lists.
//
// InstancePath holds one index per list ancestor crossed, root to node.
// Seq is assigned by the record store on submission; records are never
// mutated afterwards.
type ExtractionRecord struct {
	Seq          int64  `json:"seq,omitempty"`
	TaskID       string `json:"task_id"`
	NodeID       string `json:"pattern_node_id"`
	InstancePath []int  `json:"instance_path"`
	Value        Value  `json:"value"`
}

// Validate returns an error if the record contains invalid fields.
// It normalizes the value in place.
func (r *ExtractionRecord) Validate() error {
	if r.TaskID == "" {
		return Errorf(EINVALID, "record task ID required")
	}
	if r.NodeID == "" {
		return Errorf(EINVALID, "record pattern node ID required")
	}
	for _, i := range r.InstancePath {
		if i < 0 {
			return Errorf(EINVALID, "record %q has negative instance index %d", r.NodeID, i)
		}
	}
	v, err := NormalizeValue(r.Value)
	if err != nil {
		return Errorf(EINVALID, "record %q: %s", r.NodeID, ErrorMessage(err))
	}
	r.Value = v
	return nil
}

// RecordFilter represents a filter for FindRecords.
type RecordFilter struct {
	NodeID *string `json:"nodeId"`

	// MaxSeq limits results to records with Seq <= *MaxSeq when set. A
	// zero bound matches no records.
	MaxSeq *int64 `json:"maxSeq"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
