package model

import (
	"errors"
	"fmt"
	"strings"
)

// DataShapeError reports a collection that lacks the fields a requested
// capability needs. It is fatal for the invocation that raised it.
type DataShapeError struct {
	Collection Collection `json:"collection"`
	Capability string     `json:"capability"`
	Missing    []Role     `json:"missing"`
}

func (e *DataShapeError) Error() string {
	names := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		names[i] = string(r)
	}
	return fmt.Sprintf("data shape: %s collection cannot support %s: missing %s",
		e.Collection, e.Capability, strings.Join(names, ", "))
}

// NewDataShapeError builds a DataShapeError.
func NewDataShapeError(c Collection, capability string, missing ...Role) *DataShapeError {
	return &DataShapeError{Collection: c, Capability: capability, Missing: missing}
}

// AsDataShapeError extracts a DataShapeError from err's chain.
func AsDataShapeError(err error) (*DataShapeError, bool) {
	var dse *DataShapeError
	if errors.As(err, &dse) {
		return dse, true
	}
	return nil, false
}
