package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/beaconrelay/beaconrelay/pkg/model"
	"github.com/beaconrelay/beaconrelay/pkg/wire"
)

func init() {
	color.NoColor = true
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CheckStatus(ctx context.Context, req model.StatusRequest) (model.Result[bool], error) {
	args := m.Called(req)
	return args.Get(0).(model.Result[bool]), args.Error(1)
}

func (m *mockClient) RequestPermission(ctx context.Context, level model.Permission) (model.Result[bool], error) {
	args := m.Called(level)
	return args.Get(0).(model.Result[bool]), args.Error(1)
}

func (m *mockClient) Subscribe(ctx context.Context, kind model.Kind, sub wire.SubscribePayload) (<-chan model.Result[model.Update], error) {
	args := m.Called(kind, sub)
	ch, _ := args.Get(0).(chan model.Result[model.Update])
	return ch, args.Error(1)
}

func (m *mockClient) BackgroundEvents(ctx context.Context) (<-chan wire.BackgroundPayload, error) {
	args := m.Called()
	ch, _ := args.Get(0).(chan wire.BackgroundPayload)
	return ch, args.Error(1)
}

func (m *mockClient) Pause(ctx context.Context) error  { return m.Called().Error(0) }
func (m *mockClient) Resume(ctx context.Context) error { return m.Called().Error(0) }

func (m *mockClient) Configure(ctx context.Context, settings model.Settings) error {
	return m.Called(settings).Error(0)
}

func (m *mockClient) SetAuthorization(ctx context.Context, status model.AuthorizationStatus) error {
	return m.Called(status).Error(0)
}

func (m *mockClient) Stats(ctx context.Context) (wire.StatsPayload, error) {
	args := m.Called()
	return args.Get(0).(wire.StatsPayload), args.Error(1)
}

const lobbyUUID = "f7826da6-4fa2-4e98-8024-bc5b71e0893e"

func TestParseSubscription(t *testing.T) {
	sub, err := parseSubscription(model.KindRanging, []string{"lobby", "F7826DA6-4FA2-4E98-8024-BC5B71E0893E", "10", "3"})
	require.NoError(t, err)
	assert.Equal(t, "lobby", sub.Region.Identifier)
	assert.Equal(t, lobbyUUID, sub.Region.UUID)
	require.NotNil(t, sub.Region.Major)
	require.NotNil(t, sub.Region.Minor)
	assert.Equal(t, uint16(10), *sub.Region.Major)
	assert.Equal(t, uint16(3), *sub.Region.Minor)
	assert.Equal(t, model.PermissionWhenInUse, sub.Permission)
	assert.False(t, sub.InBackground)

	sub, err = parseSubscription(model.KindMonitoring, []string{"door", "any", "--background"})
	require.NoError(t, err)
	assert.Empty(t, sub.Region.UUID)
	assert.Nil(t, sub.Region.Major)
	assert.True(t, sub.InBackground)
	assert.Equal(t, model.PermissionAlways, sub.Permission)

	sub, err = parseSubscription(model.KindMonitoring, []string{"door", "--permission=always"})
	require.NoError(t, err)
	assert.Equal(t, model.PermissionAlways, sub.Permission)
}

func TestParseSubscriptionErrors(t *testing.T) {
	tests := []struct {
		name string
		kind model.Kind
		args []string
	}{
		{"no identifier", model.KindRanging, nil},
		{"too many values", model.KindRanging, []string{"a", "any", "1", "2", "3"}},
		{"bad uuid", model.KindRanging, []string{"a", "nope"}},
		{"major overflow", model.KindRanging, []string{"a", "any", "70000"}},
		{"bad minor", model.KindRanging, []string{"a", "any", "1", "x"}},
		{"background ranging", model.KindRanging, []string{"a", "--background"}},
		{"bad permission", model.KindMonitoring, []string{"a", "--permission=sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSubscription(tt.kind, tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseStatusArgs(t *testing.T) {
	req, err := parseStatusArgs([]string{"ranging", "always"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequest{Ranging: true, Permission: model.PermissionAlways}, req)

	_, err = parseStatusArgs([]string{"flying"})
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}

	region := model.Region{Identifier: "r"}
	client.On("CheckStatus", model.StatusRequest{Monitoring: true}).
		Return(model.Failure[bool](model.NewError(model.ErrorMonitoringUnavailable, &region)), nil).Once()

	require.NoError(t, c.status(context.Background(), []string{"monitoring"}))
	assert.Equal(t, "status: monitoringUnavailable [r]\n", out.String())
	client.AssertExpectations(t)
}

func TestPermissionCommand(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}

	client.On("RequestPermission", model.PermissionAlways).Return(model.Success(true, nil), nil).Once()
	require.NoError(t, c.permission(context.Background(), []string{"always"}))
	assert.Equal(t, "permission always: ok\n", out.String())

	assert.ErrorIs(t, c.permission(context.Background(), nil), errUsage)
	assert.Error(t, c.permission(context.Background(), []string{"none"}))
	client.AssertExpectations(t)
}

func TestSubscribeCommandPrintsUntilStreamEnds(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}

	ch := make(chan model.Result[model.Update], 2)
	region := model.Region{Identifier: "lobby", UUID: lobbyUUID}
	ch <- model.Success(model.Update{Beacons: []model.Beacon{
		{UUID: lobbyUUID, Major: 1, Minor: 2, RSSI: -60, Accuracy: 1.5, Proximity: model.ProximityNear},
	}}, &region)
	ch <- model.Failure[model.Update](model.RuntimeError(&region, "scanner failed", true))
	close(ch)

	client.On("Subscribe", model.KindRanging, mock.MatchedBy(func(sub wire.SubscribePayload) bool {
		return sub.Region.Identifier == "lobby" && sub.Region.UUID == lobbyUUID
	})).Return(ch, nil).Once()

	require.NoError(t, c.subscribe(context.Background(), model.KindRanging, []string{"lobby", lobbyUUID}, 1))

	s := out.String()
	assert.Contains(t, s, "[1 ranging lobby] lobby 1 beacon(s)")
	assert.Contains(t, s, "1.50m near")
	assert.Contains(t, s, "[1 ranging lobby] fatal runtime [lobby]: scanner failed")
	client.AssertExpectations(t)
}

func TestMonitorCommandPrintsTransitions(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}

	ch := make(chan model.Result[model.Update], 1)
	region := model.Region{Identifier: "door"}
	ch <- model.Success(model.Update{State: model.MonitoringEnterOrInside}, &region)
	close(ch)
	client.On("Subscribe", model.KindMonitoring, mock.Anything).Return(ch, nil).Once()

	require.NoError(t, c.subscribe(context.Background(), model.KindMonitoring, []string{"door"}, 2))
	assert.Equal(t, "[2 monitoring door] door enterOrInside\n", out.String())
}

func TestBackgroundCommand(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}

	ch := make(chan wire.BackgroundPayload, 1)
	ch <- wire.BackgroundPayload{Type: "didExitRegion", Region: model.Region{Identifier: "gate"}, State: model.MonitoringExitOrOutside}
	close(ch)
	client.On("BackgroundEvents").Return(ch, nil).Once()

	require.NoError(t, c.background(context.Background()))
	assert.Equal(t, "[background] didExitRegion gate exitOrOutside\n", out.String())
}

func TestLifecycleCommands(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}
	ctx := context.Background()

	client.On("Pause").Return(nil).Once()
	client.On("Resume").Return(nil).Once()
	client.On("Configure", model.Settings{Logs: model.LogVerbose}).Return(nil).Once()
	client.On("SetAuthorization", model.AuthorizationDenied).Return(nil).Once()

	require.NoError(t, c.pause(ctx))
	require.NoError(t, c.resume(ctx))
	require.NoError(t, c.configure(ctx, []string{"debug"}))
	require.NoError(t, c.authorize(ctx, []string{"denied"}))

	assert.Equal(t, "paused\nresumed\nlog level verbose\nauthorization denied\n", out.String())
	assert.Error(t, c.configure(ctx, []string{"loud"}))
	assert.Error(t, c.authorize(ctx, []string{"granted"}))
	client.AssertExpectations(t)
}

func TestStatsCommand(t *testing.T) {
	client := &mockClient{}
	var out bytes.Buffer
	c := &commands{client: client, out: &out}

	client.On("Stats").Return(wire.StatsPayload{Registered: 3, Running: 2, Connected: true, Streams: 4}, nil).Once()
	require.NoError(t, c.stats(context.Background()))

	s := out.String()
	assert.Contains(t, s, "registered")
	assert.Contains(t, s, "client streams")
	assert.Regexp(t, `running\s+2`, s)
	assert.Regexp(t, `scanner connected\s+true`, s)
}

func TestServerName(t *testing.T) {
	assert.Equal(t, "relay.local", serverName("relay.local:7420"))
	assert.Equal(t, "relay.local", serverName("tcp://relay.local:7420"))
	assert.Equal(t, "relay.local", serverName("wss://relay.local:7422/relay"))
	assert.Equal(t, "relay", serverName("relay"))
}
