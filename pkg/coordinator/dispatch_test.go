package coordinator

import (
	"errors"
	"sync"
	"testing"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangingFanOutByIdentifier(t *testing.T) {
	h := newHarness(t, grantingAuthority())
	h.connect(t)

	var order []string
	var mu sync.Mutex
	record := func(name string) model.Callback {
		return func(model.Result[model.Update]) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	first := model.NewActiveRequest(model.KindRanging, model.Region{Identifier: "A"}, false, record("first"))
	second := model.NewActiveRequest(model.KindRanging, model.Region{Identifier: "A"}, false, record("second"))
	other := model.NewActiveRequest(model.KindRanging, model.Region{Identifier: "B"}, false, record("other"))
	monitor := model.NewActiveRequest(model.KindMonitoring, model.Region{Identifier: "A"}, false, record("monitor"))
	for _, req := range []*model.ActiveRequest{first, second, other, monitor} {
		require.NoError(t, h.c.Add(req, model.PermissionNone))
	}
	h.settle(t)

	beacons := []model.Beacon{{UUID: "2f234454-cf6d-4a0f-adf2-f4911ba9ffa6", Major: 1, Minor: 2, RSSI: -60}}
	h.scanner.events.RangingResult(model.Region{Identifier: "A"}, beacons)
	h.scanner.events.RangingResult(model.Region{Identifier: "A"}, nil)
	h.settle(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "first", "second"}, order)
}

func TestRangingResultPayload(t *testing.T) {
	h := newHarness(t, grantingAuthority())
	h.connect(t)

	col := &collector{}
	require.NoError(t, h.c.Add(newRequest(model.KindRanging, "A", false, col), model.PermissionNone))
	h.settle(t)

	beacons := []model.Beacon{{UUID: "u", Major: 7, Minor: 9, RSSI: -70, Proximity: model.ProximityNear}}
	h.scanner.events.RangingResult(model.Region{Identifier: "A", UUID: "u"}, beacons)
	h.settle(t)

	require.Equal(t, 1, col.len())
	res := col.all()[0]
	require.True(t, res.IsSuccess())
	assert.Equal(t, beacons, res.Value.Beacons)
	require.NotNil(t, res.Region)
	assert.Equal(t, "u", res.Region.UUID)
}

func TestMonitoringTransitions(t *testing.T) {
	h := newHarness(t, grantingAuthority())
	h.connect(t)

	col := &collector{}
	other := &collector{}
	require.NoError(t, h.c.Add(newRequest(model.KindMonitoring, "A", false, col), model.PermissionNone))
	require.NoError(t, h.c.Add(newRequest(model.KindRanging, "A", false, other), model.PermissionNone))
	h.settle(t)

	h.scanner.events.Entered(model.Region{Identifier: "A"})
	h.scanner.events.Exited(model.Region{Identifier: "A"})
	h.scanner.events.Entered(model.Region{Identifier: "B"})
	h.settle(t)

	results := col.all()
	require.Len(t, results, 2)
	assert.Equal(t, model.MonitoringEnterOrInside, results[0].Value.State)
	assert.Equal(t, model.MonitoringExitOrOutside, results[1].Value.State)
	assert.Equal(t, 0, other.len())
}

func TestDispatchReachesIdleRequests(t *testing.T) {
	auth := &stubAuthority{}
	auth.On("Status").Return(model.AuthorizationDenied)
	h := newHarness(t, auth)
	h.connect(t)

	col := &collector{}
	req := newRequest(model.KindRanging, "A", false, col)
	require.NoError(t, h.c.Add(req, model.PermissionWhenInUse))
	h.settle(t)
	require.Equal(t, 1, col.len(), "gate failure")
	require.False(t, h.running(t, req))

	h.scanner.events.RangingResult(model.Region{Identifier: "A"}, nil)
	h.settle(t)

	assert.Equal(t, 2, col.len())
	assert.True(t, col.all()[1].IsSuccess())
}

func TestEventsBeforeConnectAreIgnored(t *testing.T) {
	h := newHarness(t, grantingAuthority())

	col := &collector{}
	require.NoError(t, h.c.Add(newRequest(model.KindRanging, "A", false, col), model.PermissionNone))
	h.settle(t)

	h.scanner.events.RangingResult(model.Region{Identifier: "A"}, nil)
	h.settle(t)
	assert.Equal(t, 0, col.len())
}

func TestRemovedRequestIsSilenced(t *testing.T) {
	h := newHarness(t, grantingAuthority())
	h.connect(t)

	col := &collector{}
	req := newRequest(model.KindRanging, "A", false, col)
	require.NoError(t, h.c.Add(req, model.PermissionNone))
	h.settle(t)
	require.NoError(t, h.c.Remove(req))

	h.scanner.events.RangingResult(model.Region{Identifier: "A"}, nil)
	h.settle(t)
	assert.Equal(t, 0, col.len())
}

func TestScanFailuresFanOut(t *testing.T) {
	h := newHarness(t, grantingAuthority())
	h.connect(t)

	ranging := &collector{}
	monitoring := &collector{}
	require.NoError(t, h.c.Add(newRequest(model.KindRanging, "A", false, ranging), model.PermissionNone))
	require.NoError(t, h.c.Add(newRequest(model.KindMonitoring, "A", false, monitoring), model.PermissionNone))
	h.settle(t)

	h.scanner.events.RangingFailed(model.Region{Identifier: "A"}, errors.New("ranging stalled"))
	h.scanner.events.MonitoringFailed(model.Region{Identifier: "A"}, errors.New("monitor lost"))
	h.settle(t)

	require.Equal(t, 1, ranging.len())
	rErr := ranging.all()[0].Err
	require.NotNil(t, rErr)
	assert.Equal(t, model.ErrorRuntime, rErr.Kind)
	assert.Equal(t, "ranging stalled", rErr.Message)
	assert.False(t, rErr.Fatal)

	require.Equal(t, 1, monitoring.len())
	assert.Equal(t, "monitor lost", monitoring.all()[0].Err.Message)
}

func TestBackgroundTransitionsReachNotifier(t *testing.T) {
	notifier := NewBackgroundNotifier()
	h := newHarness(t, grantingAuthority(), withBackground(notifier))
	h.connect(t)

	events := make(chan BackgroundEvent, 4)
	remove, err := h.c.AddBackgroundCallback(func(ev BackgroundEvent) { events <- ev })
	require.NoError(t, err)
	defer remove()

	require.NoError(t, h.c.Add(newRequest(model.KindMonitoring, "A", true, nil), model.PermissionAlways))
	require.NoError(t, h.c.Add(newRequest(model.KindMonitoring, "B", false, nil), model.PermissionAlways))
	h.settle(t)

	h.scanner.events.Entered(model.Region{Identifier: "A"})
	h.scanner.events.Entered(model.Region{Identifier: "B"})
	h.scanner.events.Exited(model.Region{Identifier: "A"})
	h.settle(t)

	require.Len(t, events, 2)
	ev := <-events
	assert.Equal(t, BackgroundEnter, ev.Type)
	assert.Equal(t, "A", ev.Region.Identifier)
	assert.Equal(t, model.MonitoringEnterOrInside, ev.State)
	ev = <-events
	assert.Equal(t, BackgroundExit, ev.Type)
	assert.Equal(t, model.MonitoringExitOrOutside, ev.State)
}

func TestAddBackgroundCallbackWithoutNotifier(t *testing.T) {
	h := newHarness(t, grantingAuthority())
	_, err := h.c.AddBackgroundCallback(func(BackgroundEvent) {})
	assert.ErrorIs(t, err, ErrNoBackgroundNotifier)
}
