package mdns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconrelay/beaconrelay/pkg/model"
)

const testUUID = "f7826da6-4fa2-4e98-8024-bc5b71e0893e"

func TestBeaconTXTRoundTrip(t *testing.T) {
	info := &BeaconInfo{
		Name:    "lobby-1",
		UUID:    testUUID,
		Major:   100,
		Minor:   7,
		TxPower: -59,
		RSSI:    -65,
	}

	strs := TXTRecordsToStrings(EncodeBeaconTXT(info))
	assert.Equal(t, []string{"major=100", "minor=7", "rssi=-65", "tx=-59", "uuid=" + testUUID}, strs)

	got, err := DecodeBeaconTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, info.UUID, got.UUID)
	assert.Equal(t, info.Major, got.Major)
	assert.Equal(t, info.Minor, got.Minor)
	assert.Equal(t, info.TxPower, got.TxPower)
	assert.Equal(t, info.RSSI, got.RSSI)
}

func TestDecodeBeaconTXTErrors(t *testing.T) {
	valid := func() TXTRecordMap {
		return TXTRecordMap{TXTKeyUUID: testUUID, TXTKeyMajor: "1", TXTKeyMinor: "2"}
	}

	tests := []struct {
		name   string
		mutate func(TXTRecordMap)
		want   error
	}{
		{"missing uuid", func(m TXTRecordMap) { delete(m, TXTKeyUUID) }, ErrMissingRequired},
		{"bad uuid", func(m TXTRecordMap) { m[TXTKeyUUID] = "nope" }, ErrInvalidTXTRecord},
		{"missing major", func(m TXTRecordMap) { delete(m, TXTKeyMajor) }, ErrMissingRequired},
		{"major overflow", func(m TXTRecordMap) { m[TXTKeyMajor] = "70000" }, ErrInvalidTXTRecord},
		{"negative minor", func(m TXTRecordMap) { m[TXTKeyMinor] = "-1" }, ErrInvalidTXTRecord},
		{"bad tx", func(m TXTRecordMap) { m[TXTKeyTxPower] = "loud" }, ErrInvalidTXTRecord},
		{"bad rssi", func(m TXTRecordMap) { m[TXTKeyRSSI] = "1.5" }, ErrInvalidTXTRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txt := valid()
			tt.mutate(txt)
			_, err := DecodeBeaconTXT(txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeBeaconTXTNormalizesUUID(t *testing.T) {
	got, err := DecodeBeaconTXT(TXTRecordMap{
		TXTKeyUUID:  strings.ToUpper(testUUID),
		TXTKeyMajor: "1",
		TXTKeyMinor: "2",
		TXTKeyRSSI:  "",
	})
	require.NoError(t, err)
	assert.Equal(t, testUUID, got.UUID)
	assert.Zero(t, got.RSSI)
}

func TestBeaconInfoBeacon(t *testing.T) {
	b := (&BeaconInfo{UUID: testUUID, Major: 1, Minor: 2, TxPower: -59, RSSI: -59}).Beacon()
	assert.InDelta(t, 1.0, b.Accuracy, 0.05)
	assert.Equal(t, model.ProximityNear, b.Proximity)

	b = (&BeaconInfo{UUID: testUUID}).Beacon()
	assert.Equal(t, -1.0, b.Accuracy)
	assert.Equal(t, model.ProximityUnknown, b.Proximity)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "flag", "b=x=y", ""})
	assert.Equal(t, TXTRecordMap{"a": "1", "flag": "", "b": "x=y"}, txt)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("beacon"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInstanceNameTooLong)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", 64)), ErrInstanceNameTooLong)
}

func TestAdvertiserValidation(t *testing.T) {
	adv := NewAdvertiser(DefaultAdvertiserConfig())
	defer adv.StopAll()

	assert.ErrorIs(t, adv.Advertise(&BeaconInfo{UUID: testUUID}), ErrInstanceNameTooLong)
	assert.ErrorIs(t, adv.Advertise(&BeaconInfo{Name: "x", UUID: "bad"}), ErrInvalidTXTRecord)
	assert.ErrorIs(t, adv.Update(&BeaconInfo{Name: "x", UUID: testUUID}), ErrNotFound)
	assert.ErrorIs(t, adv.Stop("x"), ErrNotFound)
	assert.Empty(t, adv.Names())
}
