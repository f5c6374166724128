package seq

import (
	"testing"

	"github.com/vnykmshr/flowpipe/internal/testutil"
)

func TestToSlice(t *testing.T) {
	tests := []struct {
		name  string
		in    interface{}
		want  []interface{}
		isSeq bool
	}{
		{"nil", nil, nil, false},
		{"interface slice", []interface{}{1, "a"}, []interface{}{1, "a"}, true},
		{"int slice", []int{1, 2, 3}, []interface{}{1, 2, 3}, true},
		{"array", [2]string{"a", "b"}, []interface{}{"a", "b"}, true},
		{"map slice", []map[string]interface{}{{"k": 1}}, []interface{}{map[string]interface{}{"k": 1}}, true},
		{"string", "abc", nil, false},
		{"map", map[string]int{"a": 1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToSlice(tt.in)
			testutil.AssertEqual(t, ok, tt.isSeq)
			testutil.AssertDeepEqual(t, got, tt.want)
		})
	}
}
