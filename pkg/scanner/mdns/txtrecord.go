package mdns

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/beaconrelay/beaconrelay/pkg/model"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeBeaconTXT creates the TXT records of a beacon advertisement.
func EncodeBeaconTXT(info *BeaconInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyUUID] = info.UUID
	txt[TXTKeyMajor] = strconv.FormatUint(uint64(info.Major), 10)
	txt[TXTKeyMinor] = strconv.FormatUint(uint64(info.Minor), 10)

	// Optional fields
	if info.TxPower != 0 {
		txt[TXTKeyTxPower] = strconv.Itoa(info.TxPower)
	}
	if info.RSSI != 0 {
		txt[TXTKeyRSSI] = strconv.Itoa(info.RSSI)
	}

	return txt
}

// DecodeBeaconTXT parses the TXT records of a beacon advertisement.
// The UUID is normalized to its canonical lowercase form.
func DecodeBeaconTXT(txt TXTRecordMap) (*BeaconInfo, error) {
	info := &BeaconInfo{}

	s, ok := txt[TXTKeyUUID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyUUID)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: uuid %q", ErrInvalidTXTRecord, s)
	}
	info.UUID = id.String()

	if info.Major, err = parseUint16(txt, TXTKeyMajor); err != nil {
		return nil, err
	}
	if info.Minor, err = parseUint16(txt, TXTKeyMinor); err != nil {
		return nil, err
	}

	if info.TxPower, err = parseOptionalInt(txt, TXTKeyTxPower); err != nil {
		return nil, err
	}
	if info.RSSI, err = parseOptionalInt(txt, TXTKeyRSSI); err != nil {
		return nil, err
	}

	return info, nil
}

// Beacon converts the advertisement into a sighting.
func (info *BeaconInfo) Beacon() model.Beacon {
	accuracy := model.EstimateAccuracy(info.RSSI, info.TxPower)
	return model.Beacon{
		UUID:      info.UUID,
		Major:     info.Major,
		Minor:     info.Minor,
		RSSI:      info.RSSI,
		TxPower:   info.TxPower,
		Accuracy:  accuracy,
		Proximity: model.ProximityFor(accuracy),
	}
}

func parseUint16(txt TXTRecordMap, key string) (uint16, error) {
	s, ok := txt[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidTXTRecord, key, s)
	}
	return uint16(n), nil
}

func parseOptionalInt(txt TXTRecordMap, key string) (int, error) {
	s, ok := txt[key]
	if !ok || s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidTXTRecord, key, s)
	}
	return n, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a sorted slice of
// "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
