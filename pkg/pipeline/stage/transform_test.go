package stage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/flowpipe/internal/testutil"
	"github.com/vnykmshr/flowpipe/pkg/pipeline"
)

type captureLogger struct {
	mu     sync.Mutex
	values []interface{}
	labels []string
}

func (c *captureLogger) Warn(string, map[string]interface{}) {}

func (c *captureLogger) Log(value interface{}, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, value)
	c.labels = append(c.labels, label)
}

func TestTransform(t *testing.T) {
	s := Must(Transform("upper", func(_ context.Context, v interface{}) (interface{}, error) {
		return strings.ToUpper(v.(string)), nil
	}))
	testutil.AssertEqual(t, run(t, s, "abc"), interface{}("ABC"))

	boom := errors.New("boom")
	failing := Must(Transform("fail", func(context.Context, interface{}) (interface{}, error) {
		return nil, boom
	}))
	_, err := failing.Process(context.Background(), 1, nil)
	testutil.AssertErrorIs(t, err, boom)
}

func TestValidate(t *testing.T) {
	positive := Must(Validate("positive", func(v interface{}) bool { return v.(int) > 0 }))
	testutil.AssertEqual(t, run(t, positive, 5), interface{}(5))

	_, err := positive.Process(context.Background(), -1, nil)
	var verr *pipeline.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *pipeline.ValidationError, got %v", err)
	}
	testutil.AssertEqual(t, verr.StageName, "positive")
	testutil.AssertEqual(t, verr.Input, interface{}(-1))
}

func TestValidateInPipelineUsesStrategy(t *testing.T) {
	positive := Must(Validate("positive", func(v interface{}) bool { return v.(int) > 0 }))

	p, err := pipeline.New(pipeline.Config{ID: "checked"}, pipeline.WithLogger(nil))
	testutil.AssertNoError(t, err)
	p.AddStage(positive)

	result, err := p.Execute(context.Background(), -3, nil)
	var verr *pipeline.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *pipeline.ValidationError, got %v", err)
	}
	testutil.AssertEqual(t, verr.PipelineID, "checked")
	testutil.AssertEqual(t, result.Success, false)
}

func TestLog(t *testing.T) {
	logger := &captureLogger{}
	s := Must(Log("trace", "after-sort", logger))

	in := []int{1, 2}
	out := run(t, s, in)
	testutil.AssertDeepEqual(t, out, in)
	testutil.AssertDeepEqual(t, logger.values, []interface{}{in})
	testutil.AssertDeepEqual(t, logger.labels, []string{"after-sort"})

	silent := Must(Log("trace", "x", nil))
	testutil.AssertEqual(t, run(t, silent, 1), interface{}(1))
}

func TestDelay(t *testing.T) {
	s := Must(Delay("wait", 30*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	out, err := s.Process(ctx, "x", nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, interface{}("x"))
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("delay returned after %v", elapsed)
	}

	_, err = Delay("wait", -time.Second)
	testutil.AssertError(t, err)
}

func TestTimeoutLeavesDelayedWorkRunning(t *testing.T) {
	var counter int32
	var mu sync.Mutex
	delay := Must(Delay("delay", 200*time.Millisecond))
	count := Must(Transform("count", func(_ context.Context, v interface{}) (interface{}, error) {
		mu.Lock()
		counter++
		mu.Unlock()
		return v, nil
	}))

	p, err := pipeline.New(pipeline.Config{ID: "slow", Timeout: 50 * time.Millisecond}, pipeline.WithLogger(nil))
	testutil.AssertNoError(t, err)
	p.AddStage(delay).AddStage(count)

	_, err = p.Execute(context.Background(), 1, nil)
	var terr *pipeline.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *pipeline.TimeoutError, got %v", err)
	}

	testutil.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counter == 1
	}, 2*time.Second, 10*time.Millisecond)
}
