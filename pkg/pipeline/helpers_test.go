package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var errBoom = errors.New("boom")

// recordingLogger captures warnings emitted by the engine.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	logged   []interface{}
}

func (l *recordingLogger) Warn(msg string, _ map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func (l *recordingLogger) Log(value interface{}, _ string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logged = append(l.logged, value)
}

func (l *recordingLogger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.warnings))
	copy(out, l.warnings)
	return out
}

func (l *recordingLogger) contains(substr string) bool {
	for _, w := range l.Warnings() {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

// testStage appends its name to string input and counts invocations.
type testStage struct {
	name     string
	calls    int32
	failures int32 // number of leading calls that fail
	inputs   []interface{}
	mu       sync.Mutex
}

func newTestStage(name string) *testStage {
	return &testStage{name: name}
}

func failingStage(name string, failures int32) *testStage {
	return &testStage{name: name, failures: failures}
}

func (s *testStage) Name() string { return s.name }

func (s *testStage) Process(_ context.Context, input interface{}, _ *ExecutionContext) (interface{}, error) {
	n := atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()

	if n <= s.failures {
		return nil, errBoom
	}
	if str, ok := input.(string); ok {
		return str + "->" + s.name, nil
	}
	return input, nil
}

func (s *testStage) Calls() int32 {
	return atomic.LoadInt32(&s.calls)
}

func (s *testStage) Inputs() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, len(s.inputs))
	copy(out, s.inputs)
	return out
}

// validatingStage rejects every input that is not a string.
type validatingStage struct {
	testStage
}

func (s *validatingStage) Validate(input interface{}) bool {
	_, ok := input.(string)
	return ok
}

// blockingStage waits until release is closed, ignoring its context.
type blockingStage struct {
	name    string
	release chan struct{}
	done    int32
}

func newBlockingStage(name string) *blockingStage {
	return &blockingStage{name: name, release: make(chan struct{})}
}

func (s *blockingStage) Name() string { return s.name }

func (s *blockingStage) Process(_ context.Context, input interface{}, _ *ExecutionContext) (interface{}, error) {
	<-s.release
	atomic.AddInt32(&s.done, 1)
	return input, nil
}

func newTestPipeline(cfg Config, logger Logger) *pipeline {
	if cfg.ID == "" {
		cfg.ID = "test"
	}
	if logger == nil {
		logger = &recordingLogger{}
	}
	p, err := New(cfg, WithLogger(logger))
	if err != nil {
		panic(err)
	}
	return p.(*pipeline)
}

const waitTimeout = 2 * time.Second
