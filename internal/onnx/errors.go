package onnx

import "fmt"

// ShapeMismatchError reports a model output whose shape is incompatible
// with what the caller requires. It is not recoverable by retrying.
type ShapeMismatchError struct {
	Model  string
	Want   []int64 // -1 marks a dimension that may take any value
	Got    []int64
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	msg := fmt.Sprintf("%s model: output shape %v does not match expected %v", e.Model, e.Got, e.Want)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// MatchShape reports whether got satisfies want, treating -1 in want as a wildcard.
func MatchShape(want, got []int64) bool {
	if len(want) != len(got) {
		return false
	}
	for i, w := range want {
		if w >= 0 && w != got[i] {
			return false
		}
	}
	return true
}
