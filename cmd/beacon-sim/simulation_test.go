package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/beaconrelay/beaconrelay/pkg/scanner/mdns"
)

const testUUID = "f7826da6-4fa2-4e98-8024-bc5b71e0893e"

type mockAdvertiser struct {
	mock.Mock
}

func (m *mockAdvertiser) Advertise(info *mdns.BeaconInfo) error {
	return m.Called(info.Name).Error(0)
}

func (m *mockAdvertiser) Update(info *mdns.BeaconInfo) error {
	return m.Called(info.Name, info.RSSI).Error(0)
}

func (m *mockAdvertiser) Stop(name string) error {
	return m.Called(name).Error(0)
}

func (m *mockAdvertiser) StopAll() {
	m.Called()
}

func TestGenerateScenario(t *testing.T) {
	sc, err := GenerateScenario("lobby", "F7826DA6-4FA2-4E98-8024-BC5B71E0893E", 10, 3)
	require.NoError(t, err)
	require.Len(t, sc.Beacons, 3)

	for i, b := range sc.Beacons {
		assert.Equal(t, testUUID, b.UUID)
		assert.Equal(t, uint16(10), b.Major)
		assert.Equal(t, uint16(i+1), b.Minor)
		assert.Equal(t, defaultTxPower, b.TxPower)
	}
	assert.Equal(t, "lobby-1", sc.Beacons[0].Name)

	sc, err = GenerateScenario("x", "", 1, 1)
	require.NoError(t, err)
	assert.Len(t, sc.Beacons[0].UUID, 36, "random uuid")

	_, err = GenerateScenario("x", testUUID, 1, 0)
	assert.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	content := `
interval: 500ms
walk: true
beacons:
  - name: door-1
    uuid: ` + testUUID + `
    major: 7
    minor: 1
    rssi: -70
  - name: door-2
    uuid: ` + testUUID + `
    major: 7
    minor: 2
    tx: -62
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	sc, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, sc.Interval)
	assert.True(t, sc.Walk)
	require.Len(t, sc.Beacons, 2)
	assert.Equal(t, -70, sc.Beacons[0].RSSI)
	assert.Equal(t, defaultTxPower, sc.Beacons[0].TxPower)
	assert.Equal(t, -62, sc.Beacons[1].TxPower)
	assert.Equal(t, -65, sc.Beacons[1].RSSI)
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
	}{
		{"empty", Scenario{Interval: time.Second}},
		{"zero interval", Scenario{Beacons: []mdns.BeaconInfo{{Name: "a", UUID: testUUID}}}},
		{"missing name", Scenario{Interval: time.Second, Beacons: []mdns.BeaconInfo{{UUID: testUUID}}}},
		{"bad uuid", Scenario{Interval: time.Second, Beacons: []mdns.BeaconInfo{{Name: "a", UUID: "x"}}}},
		{"duplicate", Scenario{Interval: time.Second, Beacons: []mdns.BeaconInfo{
			{Name: "a", UUID: testUUID}, {Name: "a", UUID: testUUID},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.sc.Validate())
		})
	}
}

func TestSimulationStart(t *testing.T) {
	sc, err := GenerateScenario("b", testUUID, 1, 2)
	require.NoError(t, err)

	adv := &mockAdvertiser{}
	adv.On("Advertise", "b-1").Return(nil).Once()
	adv.On("Advertise", "b-2").Return(nil).Once()

	sim := NewSimulation(sc, adv, 1, nil)
	require.NoError(t, sim.Start())
	assert.Equal(t, 2, sim.Visible())
	adv.AssertExpectations(t)
}

func TestSimulationStartFailureWithdrawsAll(t *testing.T) {
	sc, err := GenerateScenario("b", testUUID, 1, 2)
	require.NoError(t, err)

	adv := &mockAdvertiser{}
	adv.On("Advertise", "b-1").Return(nil).Once()
	adv.On("Advertise", "b-2").Return(errors.New("no multicast")).Once()
	adv.On("StopAll").Once()

	sim := NewSimulation(sc, adv, 1, nil)
	assert.Error(t, sim.Start())
	adv.AssertExpectations(t)
}

func TestSimulationStepDriftsWithinBounds(t *testing.T) {
	sc, err := GenerateScenario("b", testUUID, 1, 1)
	require.NoError(t, err)
	sc.Beacons[0].RSSI = maxRSSI

	adv := &mockAdvertiser{}
	adv.On("Update", "b-1", mock.MatchedBy(func(rssi int) bool {
		return rssi >= minRSSI && rssi <= maxRSSI
	})).Return(nil)

	sim := NewSimulation(sc, adv, 42, nil)
	for range 50 {
		sim.Step()
	}
	adv.AssertNumberOfCalls(t, "Update", 50)
	assert.LessOrEqual(t, sc.Beacons[0].RSSI, maxRSSI)
	assert.GreaterOrEqual(t, sc.Beacons[0].RSSI, minRSSI)
}

func TestSimulationWalkTogglesVisibility(t *testing.T) {
	sc, err := GenerateScenario("b", testUUID, 1, 1)
	require.NoError(t, err)
	sc.Walk = true

	adv := &mockAdvertiser{}
	adv.On("Update", "b-1", mock.Anything).Return(nil)
	adv.On("Stop", "b-1").Return(nil).Once()
	adv.On("Advertise", "b-1").Return(nil).Once()

	sim := NewSimulation(sc, adv, 7, nil)

	sim.Step()
	assert.Equal(t, 0, sim.Visible(), "single beacon withdrawn")

	sim.Step()
	assert.Equal(t, 1, sim.Visible(), "beacon re-announced")

	adv.AssertExpectations(t)
	adv.AssertNumberOfCalls(t, "Update", 1)
}

func TestSimulationRunWithdrawsOnCancel(t *testing.T) {
	sc, err := GenerateScenario("b", testUUID, 1, 1)
	require.NoError(t, err)
	sc.Interval = time.Hour

	adv := &mockAdvertiser{}
	adv.On("StopAll").Once()

	sim := NewSimulation(sc, adv, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim.Run(ctx)
	adv.AssertExpectations(t)
}
