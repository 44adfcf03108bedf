package beacon

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// RecordType is the BT510 advertisement record type.
type RecordType uint8

// BT510 record types.
const (
	RecordReserved0        RecordType = 0
	RecordTemperature      RecordType = 1
	RecordMagnet           RecordType = 2
	RecordMovement         RecordType = 3
	RecordAlarmHighTemp1   RecordType = 4
	RecordAlarmHighTemp2   RecordType = 5
	RecordAlarmHighTempClr RecordType = 6
	RecordAlarmLowTemp1    RecordType = 7
	RecordAlarmLowTemp2    RecordType = 8
	RecordAlarmLowTempClr  RecordType = 9
	RecordAlarmDeltaTemp   RecordType = 10
	RecordSkip             RecordType = 11
	RecordBatteryGood      RecordType = 12
	RecordAdvertiseButton  RecordType = 13
	RecordReserved14       RecordType = 14
	RecordReserved15       RecordType = 15
	RecordBatteryBad       RecordType = 16
	RecordReset            RecordType = 17
)

var recordTypeNames = map[RecordType]string{
	RecordTemperature:      "temperature",
	RecordMagnet:           "magnet",
	RecordMovement:         "movement",
	RecordAlarmHighTemp1:   "alarm_high_temp_1",
	RecordAlarmHighTemp2:   "alarm_high_temp_2",
	RecordAlarmHighTempClr: "alarm_high_temp_clear",
	RecordAlarmLowTemp1:    "alarm_low_temp_1",
	RecordAlarmLowTemp2:    "alarm_low_temp_2",
	RecordAlarmLowTempClr:  "alarm_low_temp_clear",
	RecordAlarmDeltaTemp:   "alarm_delta_temp",
	RecordBatteryGood:      "battery_good",
	RecordAdvertiseButton:  "advertise_on_button",
	RecordBatteryBad:       "battery_bad",
	RecordReset:            "reset",
}

func (t RecordType) String() string {
	if s, ok := recordTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("reserved(%d)", uint8(t))
}

// Known tells whether the gateway interprets the record type.
func (t RecordType) Known() bool {
	_, ok := recordTypeNames[t]
	return ok
}

// carriesTemperature lists record types whose data field is a
// temperature in hundredths of °C.
func (t RecordType) carriesTemperature() bool {
	return t == RecordTemperature || (t >= RecordAlarmHighTemp1 && t <= RecordAlarmDeltaTemp)
}

func (t RecordType) carriesBattery() bool {
	return t == RecordBatteryGood || t == RecordBatteryBad
}

// byte offsets in the legacy hex blob
const (
	legacyFlagsOff    = 12
	legacyAddrOff     = 14
	legacyTypeOff     = 20
	legacyNumberOff   = 21
	legacyEpochOff    = 23
	legacyDataOff     = 27
	legacyBaseLen     = 31
	legacyResetOff    = 31
	legacyProductOff  = 32
	legacyFirmwareOff = 34
	legacyNameLenOff  = 43
	legacyNameOff     = 45
	legacyExtendedLen = 45

	legacyContactOpen = 1 << 15
)

func decodeLegacy(tag Tag, rest []byte) (Record, error) {
	rest = bytes.TrimSpace(rest)
	sep := bytes.LastIndexAny(rest, " \t")
	if sep < 0 {
		return nil, reject(ReasonBadRSSI, string(tag), "missing rssi")
	}
	rssi, err := parseRSSI(rest[sep+1:])
	if err != nil {
		return nil, reject(ReasonBadRSSI, string(tag), "%v", err)
	}
	digits := bytes.TrimSpace(rest[:sep])
	if len(digits)%2 != 0 {
		return nil, reject(ReasonBadHex, string(tag), "odd number of digits")
	}
	body := make([]byte, len(digits)/2)
	if _, err := hex.Decode(body, digits); err != nil {
		return nil, reject(ReasonBadHex, string(tag), "%v", err)
	}
	if err := checkLegacyLen(tag, body); err != nil {
		return nil, err
	}

	hdr := Header{
		RecordTag: tag,
		MAC:       macFromLE(body[legacyAddrOff : legacyAddrOff+6]),
		Rssi:      rssi,
	}
	rt := RecordType(body[legacyTypeOff])
	number := binary.LittleEndian.Uint16(body[legacyNumberOff:])
	if !rt.Known() {
		return &Unknown{Header: hdr, RecordType: rt, RecordNumber: number}, nil
	}

	flags := binary.LittleEndian.Uint16(body[legacyFlagsOff:])
	rec := &LegacyTemperature{
		Header:       hdr,
		Repeated:     tag == TagLegacyRepeat,
		Flags:        flags,
		RecordType:   rt,
		RecordNumber: number,
		Epoch:        binary.LittleEndian.Uint32(body[legacyEpochOff:]),
		Data:         binary.LittleEndian.Uint32(body[legacyDataOff:]),
		ContactOpen:  flags&legacyContactOpen != 0,
	}
	if rt.carriesTemperature() {
		rec.HasTemperature = true
		rec.Temperature = float64(int16(rec.Data)) / 100
	}
	if rt.carriesBattery() {
		rec.HasBattery = true
		rec.BatteryVolts = float64(rec.Data) / 1000
	}
	if len(body) >= legacyExtendedLen {
		rec.ResetCount = body[legacyResetOff]
		rec.ProductID = binary.LittleEndian.Uint16(body[legacyProductOff:])
		fw := body[legacyFirmwareOff:]
		rec.Firmware = fmt.Sprintf("%d.%d.%d", fw[0], fw[1], fw[2])
		if n := int(body[legacyNameLenOff]); n > 0 {
			rec.Name = string(bytes.TrimRight(body[legacyNameOff:legacyNameOff+n], "\x00"))
		}
	}
	return rec, nil
}

// checkLegacyLen accepts the bare base layout, or the extended layout
// ending exactly after the advertised name.
func checkLegacyLen(tag Tag, body []byte) error {
	switch {
	case len(body) == legacyBaseLen:
		return nil
	case len(body) < legacyExtendedLen:
		return reject(ReasonBadLength, string(tag), "%d bytes, want %d or at least %d", len(body), legacyBaseLen, legacyExtendedLen)
	}
	if want := legacyNameOff + int(body[legacyNameLenOff]); len(body) != want {
		return reject(ReasonBadLength, string(tag), "%d bytes, name ends at %d", len(body), want)
	}
	return nil
}
