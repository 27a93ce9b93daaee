package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"cswitch/internal/profile"
)

type scriptedRun struct {
	calls   int
	results []func(attempt int) (*Result, error)
}

func (s *scriptedRun) run(ctx context.Context, name, prompt string, opts Options) (*Result, error) {
	s.calls++
	i := s.calls - 1
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i](opts.attempt)
}

func failing(code int) func(int) (*Result, error) {
	return func(int) (*Result, error) { return &Result{ExitCode: code}, nil }
}

func succeeding() func(int) (*Result, error) {
	return func(int) (*Result, error) { return &Result{Succeeded: true, Content: "ok"}, nil }
}

func newRetryExecutor(s *scriptedRun, slept *[]time.Duration) *Executor {
	e := New(profile.NewResolver(nil), nil)
	e.run = s.run
	e.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return e
}

func TestRetryAlwaysFailingRunsMaxRetriesPlusOne(t *testing.T) {
	s := &scriptedRun{results: []func(int) (*Result, error){failing(1), failing(2), failing(3)}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	res, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 2, RetryDelay: time.Second})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if s.calls != 3 {
		t.Fatalf("calls = %d, want 3", s.calls)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want the last attempt's 3", res.ExitCode)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, slept); diff != "" {
		t.Errorf("backoff mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	s := &scriptedRun{results: []func(int) (*Result, error){failing(1), succeeding()}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	res, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 5})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if s.calls != 2 || !res.Succeeded || res.Attempts != 2 {
		t.Errorf("calls = %d, result = %+v", s.calls, res)
	}
	if diff := cmp.Diff([]time.Duration{DefaultRetryDelay}, slept); diff != "" {
		t.Errorf("backoff mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryConfigErrorNotRetried(t *testing.T) {
	cfgErr := &ConfigError{Err: errors.New("bad mode")}
	s := &scriptedRun{results: []func(int) (*Result, error){
		func(int) (*Result, error) { return nil, cfgErr },
	}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	_, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 3})
	if !errors.Is(err, cfgErr) {
		t.Fatalf("err = %v, want the ConfigError", err)
	}
	if s.calls != 1 {
		t.Errorf("calls = %d, want 1", s.calls)
	}
	if len(slept) != 0 {
		t.Errorf("slept %v before a ConfigError", slept)
	}
}

func TestRetryLaunchErrorRetried(t *testing.T) {
	launch := &LaunchError{Path: "claude", Err: errors.New("exec format error")}
	s := &scriptedRun{results: []func(int) (*Result, error){
		func(int) (*Result, error) { return nil, launch },
		succeeding(),
	}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	res, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 1})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if s.calls != 2 || !res.Succeeded {
		t.Errorf("calls = %d, result = %+v", s.calls, res)
	}
}

func TestRetryLaunchErrorExhausted(t *testing.T) {
	launch := &LaunchError{Path: "claude", Err: errors.New("permission denied")}
	s := &scriptedRun{results: []func(int) (*Result, error){
		func(int) (*Result, error) { return nil, launch },
	}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	_, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 2})
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LaunchError", err)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}

func TestRetryInterruptNotRetried(t *testing.T) {
	s := &scriptedRun{results: []func(int) (*Result, error){
		func(int) (*Result, error) { return &Result{ExitCode: -1, Interrupted: true}, nil },
	}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	res, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 2})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if s.calls != 1 || !res.Interrupted {
		t.Errorf("calls = %d, result = %+v", s.calls, res)
	}
}

func TestRetryTimeoutIsRetried(t *testing.T) {
	s := &scriptedRun{results: []func(int) (*Result, error){
		func(int) (*Result, error) { return &Result{TimedOut: true, SessionID: "s"}, nil },
		succeeding(),
	}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	res, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 1})
	if err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if s.calls != 2 || !res.Succeeded {
		t.Errorf("calls = %d, result = %+v", s.calls, res)
	}
}

func TestRetryPassesAttemptNumber(t *testing.T) {
	var seen []int
	s := &scriptedRun{results: []func(int) (*Result, error){
		func(a int) (*Result, error) { seen = append(seen, a); return &Result{ExitCode: 1}, nil },
	}}
	var slept []time.Duration
	e := newRetryExecutor(s, &slept)

	if _, err := e.ExecuteWithRetry(context.Background(), "glm", "x", Options{MaxRetries: 2}); err != nil {
		t.Fatalf("ExecuteWithRetry: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, seen); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		res  *Result
		err  error
		want string
	}{
		{nil, &LaunchError{Path: "c", Err: errors.New("nope")}, "nope"},
		{&Result{TimedOut: true}, nil, "timed out"},
		{&Result{IsError: true}, nil, "result reported an error"},
		{&Result{ExitCode: 4}, nil, "exit code 4"},
		{nil, nil, "no result"},
	}
	for _, tt := range tests {
		if got := failureReason(tt.res, tt.err); got != tt.want {
			t.Errorf("failureReason(%+v, %v) = %q, want %q", tt.res, tt.err, got, tt.want)
		}
	}
}
