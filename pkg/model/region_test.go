package model

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u16(v uint16) *uint16 { return &v }

func TestRegionFilter(t *testing.T) {
	tests := []struct {
		name    string
		region  Region
		wantErr error
	}{
		{"identifier only", Region{Identifier: "any"}, nil},
		{"uuid", Region{Identifier: "a", UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"}, nil},
		{"major minor", Region{Identifier: "a", UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0", Major: u16(1), Minor: u16(2)}, nil},
		{"missing identifier", Region{UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"}, ErrMissingIdentifier},
		{"bad uuid", Region{Identifier: "a", UUID: "not-a-uuid"}, ErrInvalidUUID},
		{"minor without major", Region{Identifier: "a", Minor: u16(2)}, ErrMinorWithoutMajor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.region.Filter()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestFilterMatches(t *testing.T) {
	const id = "e2c56db5-dffb-48d2-b060-d0f5a71096e0"
	f, err := Region{Identifier: "r", UUID: id, Major: u16(7)}.Filter()
	require.NoError(t, err)

	assert.True(t, f.Matches(Beacon{UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0", Major: 7, Minor: 99}))
	assert.False(t, f.Matches(Beacon{UUID: id, Major: 8}))
	assert.False(t, f.Matches(Beacon{UUID: "00000000-0000-0000-0000-000000000000", Major: 7}))
	assert.False(t, f.Matches(Beacon{UUID: "garbage", Major: 7}))

	anyFilter, err := Region{Identifier: "all"}.Filter()
	require.NoError(t, err)
	assert.True(t, anyFilter.Matches(Beacon{UUID: "garbage"}))
}

func TestSessionKey(t *testing.T) {
	a := Region{Identifier: "A", UUID: "E2C56DB5-DFFB-48D2-B060-D0F5A71096E0"}
	b := Region{Identifier: "A", Major: u16(3)}

	assert.Equal(t, a.Key(KindRanging), b.Key(KindRanging), "same identifier must share a key")
	assert.NotEqual(t, a.Key(KindRanging), a.Key(KindMonitoring))
	assert.Equal(t, "RANGING:A", a.Key(KindRanging).String())
}

func TestActiveRequestIdentity(t *testing.T) {
	region := Region{Identifier: "A"}
	r1 := NewActiveRequest(KindRanging, region, false, nil)
	r2 := NewActiveRequest(KindRanging, region, false, nil)

	assert.NotSame(t, r1, r2)
	assert.Equal(t, r1.Key(), r2.Key())
	assert.False(t, r1.IsRunning())

	// Deliver with a nil callback is a no-op.
	r1.Deliver(Success(Update{}, &region))
}

func TestErrorMessage(t *testing.T) {
	region := Region{Identifier: "door"}
	err := RuntimeError(&region, "bad filter", true)

	assert.Equal(t, "runtime [door]: bad filter", err.Error())
	assert.True(t, err.Fatal)

	res := Failure[bool](err)
	assert.False(t, res.IsSuccess())
	assert.Equal(t, &region, res.Region)
}

func TestEstimateAccuracy(t *testing.T) {
	assert.Equal(t, -1.0, EstimateAccuracy(0, -59))
	assert.Equal(t, ProximityUnknown, ProximityFor(-1))

	near := EstimateAccuracy(-59, -59)
	assert.InDelta(t, 1.0, near, 0.02)
	assert.Equal(t, ProximityNear, ProximityFor(near))

	assert.Equal(t, ProximityImmediate, ProximityFor(EstimateAccuracy(-40, -59)))
	assert.Equal(t, ProximityFar, ProximityFor(EstimateAccuracy(-90, -59)))
}

func TestParsePermission(t *testing.T) {
	p, ok := ParsePermission("always")
	assert.True(t, ok)
	assert.Equal(t, PermissionAlways, p)

	_, ok = ParsePermission("sometimes")
	assert.False(t, ok)

	st, ok := ParseAuthorizationStatus("when-in-use")
	assert.True(t, ok)
	assert.Equal(t, AuthorizationWhenInUse, st)
	assert.True(t, st.IsGranted())
	assert.False(t, AuthorizationRestricted.IsGranted())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"empty", LogEmpty, true},
		{"INFO", LogInfo, true},
		{"warn", LogWarning, true},
		{"verbose", LogVerbose, true},
		{"loud", LogInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	if LogEmpty.SlogLevel() <= slog.LevelError {
		t.Error("empty level must silence errors")
	}
	if LogVerbose.SlogLevel() != slog.LevelDebug {
		t.Error("verbose must map to debug")
	}
}
