package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-relay/src/helpers"
	"signal-relay/src/logger"
	"signal-relay/src/models"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

type fakeExecutor struct {
	mu       sync.Mutex
	failN    int // fail this many calls before succeeding
	err      error
	attempts int
}

func (f *fakeExecutor) Retry(env models.MEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	if f.attempts <= f.failN {
		return errors.New("transient failure")
	}
	return nil
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type fakeReporter struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeReporter) CreateReport(reportType string, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, reportType)
	return nil
}

func (f *fakeReporter) reports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.kinds...)
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (f *countingNotifier) Notify(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return nil
}

func (f *countingNotifier) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// -----------------------------------------------------------------------------

func newTestQueue(executor *fakeExecutor) (*RetryQueue, *fakeReporter, *countingNotifier) {
	cfg := &models.MConfig{LogLevel: "ERROR"}
	cfg.Retry.MaxRetries = 3
	cfg.Retry.RetryDelaySeconds = 0 // Keep tests fast
	cfg.Retry.SignalExpiryMinutes = 3
	cfg.Retry.QueueCapacity = 16

	reporter := &fakeReporter{}
	notifier := &countingNotifier{}
	rq := NewRetryQueue(cfg, executor, reporter, notifier, logger.NewLogger(cfg, "test"))
	return rq, reporter, notifier
}

func testEnvelope() models.MEnvelope {
	return models.MEnvelope{
		"action":        "BUY",
		"symbol":        "XAUUSD",
		"price":         2500.0,
		"client_msg_id": "retry-1",
	}
}

func stopWithin(t *testing.T, rq *RetryQueue, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		rq.StopWorker()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("StopWorker did not return in time")
	}
}

// -----------------------------------------------------------------------------
// Enqueue
// -----------------------------------------------------------------------------

func TestEnqueueTracksDepth(t *testing.T) {
	rq, _, _ := newTestQueue(&fakeExecutor{})

	assert.Equal(t, 0, rq.Depth())
	assert.True(t, rq.Enqueue(testEnvelope()))
	assert.True(t, rq.Enqueue(testEnvelope()))
	assert.Equal(t, 2, rq.Depth())
}

// -----------------------------------------------------------------------------

func TestEnqueueFullQueueRejects(t *testing.T) {
	rq, _, _ := newTestQueue(&fakeExecutor{})
	rq.Config.Retry.QueueCapacity = 1
	rq.items = make(chan *models.MRetryItem, 1)

	assert.True(t, rq.Enqueue(testEnvelope()))
	assert.False(t, rq.Enqueue(testEnvelope()), "second enqueue should be rejected, not block")
	assert.Equal(t, 1, rq.Depth())
}

// -----------------------------------------------------------------------------
// Worker
// -----------------------------------------------------------------------------

func TestWorkerProcessesItem(t *testing.T) {
	executor := &fakeExecutor{}
	rq, reporter, _ := newTestQueue(executor)

	rq.StartWorker()
	defer stopWithin(t, rq, 2*time.Second)

	require.True(t, rq.Enqueue(testEnvelope()))

	require.Eventually(t, func() bool { return executor.calls() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, reporter.reports())
}

// -----------------------------------------------------------------------------

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	executor := &fakeExecutor{failN: 2}
	rq, reporter, _ := newTestQueue(executor)

	rq.StartWorker()
	defer stopWithin(t, rq, 2*time.Second)

	require.True(t, rq.Enqueue(testEnvelope()))

	require.Eventually(t, func() bool { return executor.calls() == 3 },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, reporter.reports(), "a recovered signal should not be reported")
}

// -----------------------------------------------------------------------------

func TestWorkerExhaustsRetryBudget(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("still broken")}
	rq, reporter, notifier := newTestQueue(executor)

	rq.StartWorker()
	defer stopWithin(t, rq, 2*time.Second)

	require.True(t, rq.Enqueue(testEnvelope()))

	require.Eventually(t, func() bool { return len(reporter.reports()) == 1 },
		2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{utils.ReportRetryFailure}, reporter.reports(), "exactly one report for an exhausted item")
	assert.Equal(t, rq.Config.Retry.MaxRetries, executor.calls())
	assert.Equal(t, 1, notifier.sent())

	// Give the worker a beat to prove nothing further happens.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, reporter.reports(), 1)
}

// -----------------------------------------------------------------------------

func TestWorkerDiscardsStaleWithoutAttempt(t *testing.T) {
	executor := &fakeExecutor{}
	rq, reporter, notifier := newTestQueue(executor)

	// Backdate the enqueue time well past the expiry window.
	rq.items <- &models.MRetryItem{
		Data:       testEnvelope(),
		EnqueuedAt: time.Now().UTC().Add(-10 * time.Minute),
		Attempts:   1,
	}

	rq.StartWorker()
	defer stopWithin(t, rq, 2*time.Second)

	require.Eventually(t, func() bool { return len(reporter.reports()) == 1 },
		2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{utils.ReportStaleSignal}, reporter.reports())
	assert.Equal(t, 0, executor.calls(), "stale items are dropped before any attempt")
	assert.Equal(t, 1, notifier.sent())
}

// -----------------------------------------------------------------------------

func TestWorkerDropsNonRetryableImmediately(t *testing.T) {
	executor := &fakeExecutor{err: helpers.NonRetryable(errors.New("signal not found"))}
	rq, reporter, _ := newTestQueue(executor)

	rq.StartWorker()
	defer stopWithin(t, rq, 2*time.Second)

	require.True(t, rq.Enqueue(testEnvelope()))

	require.Eventually(t, func() bool { return len(reporter.reports()) == 1 },
		2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{utils.ReportRetryFailure}, reporter.reports())
	assert.Equal(t, 1, executor.calls(), "non-retryable failures burn a single attempt")
}

// -----------------------------------------------------------------------------

func TestStopWorkerWaitsForWorker(t *testing.T) {
	executor := &fakeExecutor{}
	rq, _, _ := newTestQueue(executor)

	rq.StartWorker()
	require.True(t, rq.Enqueue(testEnvelope()))

	stopWithin(t, rq, 2*time.Second)

	// The in-flight item finished before StopWorker returned.
	assert.Equal(t, 1, executor.calls())

	// Stopping twice is harmless.
	stopWithin(t, rq, 2*time.Second)
}

// -----------------------------------------------------------------------------

func TestStartWorkerTwiceIsNoop(t *testing.T) {
	executor := &fakeExecutor{}
	rq, _, _ := newTestQueue(executor)

	rq.StartWorker()
	rq.StartWorker()
	defer stopWithin(t, rq, 2*time.Second)

	require.True(t, rq.Enqueue(testEnvelope()))
	require.Eventually(t, func() bool { return executor.calls() == 1 },
		2*time.Second, 10*time.Millisecond)

	// A second worker would have raced the sentinel on shutdown; reaching
	// the deferred stop cleanly is the real assertion here.
}
