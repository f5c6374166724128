package batch_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/vnykmshr/flowpipe/pkg/pipeline"
	"github.com/vnykmshr/flowpipe/pkg/pipeline/batch"
)

// ExampleRun processes a slice of inputs on four workers.
func ExampleRun() {
	p, _ := pipeline.New(pipeline.Config{ID: "upper"}, pipeline.WithLogger(nil))
	p.AddStageFunc("upper", func(_ context.Context, input interface{}, _ *pipeline.ExecutionContext) (interface{}, error) {
		return strings.ToUpper(input.(string)), nil
	})

	items := []batch.Item{{Input: "alpha"}, {Input: "beta"}, {Input: "gamma"}}
	outcomes, err := batch.Run(context.Background(), p, items, batch.Config{Workers: 4})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, o := range outcomes {
		fmt.Println(o.Index, o.Result.Output)
	}

	// Output:
	// 0 ALPHA
	// 1 BETA
	// 2 GAMMA
}
