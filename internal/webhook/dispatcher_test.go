package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rhamenator/antiscrape/internal/metrics"
)

type recordingTransport struct {
	mu     sync.Mutex
	alerts []Alert
	fail   bool
}

func (t *recordingTransport) Name() string { return "recording" }

func (t *recordingTransport) Send(ctx context.Context, alert Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return context.DeadlineExceeded
	}
	t.alerts = append(t.alerts, alert)
	return nil
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.alerts)
}

func TestDispatcherSkipsBelowMinSeverity(t *testing.T) {
	transport := &recordingTransport{}
	d := NewDispatcher(transport, 2, 100, 2, 10, metrics.NewRegistry(), nil)
	defer d.Shutdown()

	d.Dispatch("High Combined Score (0.9)", "test", "1.2.3.4") // severity 1 < min 2
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 0, transport.count())
}

func TestDispatcherDeliversAtOrAboveMinSeverity(t *testing.T) {
	transport := &recordingTransport{}
	d := NewDispatcher(transport, 1, 100, 2, 10, metrics.NewRegistry(), nil)
	defer d.Shutdown()

	d.Dispatch("High Combined Score (0.9)", "test", "1.2.3.4")
	require.Eventually(t, func() bool { return transport.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestDispatcherUnrecognisedReasonNeverDispatches(t *testing.T) {
	transport := &recordingTransport{}
	d := NewDispatcher(transport, 0, 100, 2, 10, metrics.NewRegistry(), nil)
	defer d.Shutdown()

	d.Dispatch("totally unknown reason", "test", "1.2.3.4")
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 0, transport.count())
}
