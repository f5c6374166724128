package stage

import (
	"github.com/vnykmshr/flowpipe/internal/seq"
	gferrors "github.com/vnykmshr/flowpipe/pkg/common/errors"
	"github.com/vnykmshr/flowpipe/pkg/common/validation"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

const module = "stage"

// ToSlice returns v as a []interface{} when v is a slice or array of any
// element type. ok is false for every other value.
func ToSlice(v interface{}) (items []interface{}, ok bool) {
	return seq.ToSlice(v)
}

// Must panics if err is non-nil and returns s otherwise.
func Must(s pipeline.Stage, err error) pipeline.Stage {
	if err != nil {
		panic(err)
	}
	return s
}

func checkName(name string) error {
	return validation.ValidateNotEmpty(module, "name", name)
}

func checkFunc(field string, isNil bool) error {
	if isNil {
		return gferrors.NewValidationError(module, field, nil, "cannot be nil")
	}
	return nil
}

// named carries the stage name.
type named struct {
	name string
}

func (n named) Name() string {
	return n.name
}
