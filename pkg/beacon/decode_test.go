package beacon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	envRecord     = "ESD 00AB8967452301 01 CC09 4F12 B8069B 2A00 -50"
	motionRecord  = "MSD 00AB8967452301 00 01 64 F9FF 1300 D9FF 00FC 5 9 5 B -49"
	batteryRecord = "BAT 00AB8967452301 0ABD -52"
	legacyHex     = "3129FF7700520003010100000280946E479C72C91107000800000000000000000000030007000001000D000609425435313000"
	legacyRecord  = "BS1:" + legacyHex + " -53"
)

// legacyWith replaces the record type and data fields of legacyHex.
func legacyWith(tag string, recordType, data string) string {
	h := legacyHex[:40] + recordType + legacyHex[42:54] + data + legacyHex[62:]
	return tag + ":" + h + " -60"
}

func decodeOK(t *testing.T, line string) Record {
	rec, err := Decode([]byte(line))
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestDecodeEnvironmental(t *testing.T) {
	for _, line := range []string{
		envRecord,
		"ESD00AB896745230101CC094F12B8069B2A00 -50",
		envRecord + "\r",
		"\x00\x00garbage" + envRecord,
	} {
		rec := decodeOK(t, line)
		env, ok := rec.(*Environmental)
		require.True(t, ok, "%T", rec)
		require.Equal(t, TagEnvironmental, env.Tag())
		require.Equal(t, FamilyEnvironmental, env.Family())
		require.Equal(t, "01:23:45:67:89:AB", env.Address().String())
		require.Equal(t, -50, env.RSSI())
		require.EqualValues(t, 1, env.Version)
		require.InDelta(t, 25.08, env.Temperature, 1e-9)
		require.InDelta(t, 46.87, env.Humidity, 1e-9)
		require.InDelta(t, 101598.00, env.Pressure, 1e-9)
		require.EqualValues(t, 42, env.Light)
	}
}

func TestDecodeEnvironmentalSentinelsAndSign(t *testing.T) {
	rec := decodeOK(t, "ESD 00AB8967452301 01 18FC 4F12 B8069B FFFF -50")
	env := rec.(*Environmental)
	require.Zero(t, env.Light)
	require.InDelta(t, -10.0, env.Temperature, 1e-9)
}

func TestDecodeMotion(t *testing.T) {
	rec := decodeOK(t, motionRecord)
	m, ok := rec.(*Motion)
	require.True(t, ok, "%T", rec)
	require.Equal(t, -49, m.RSSI())
	require.EqualValues(t, 1, m.SampleIndex)
	require.EqualValues(t, 6, m.SampleRate)
	require.EqualValues(t, 1, m.AccelRange)
	require.EqualValues(t, 0, m.DataType)
	scale := 4.0 / 32768 * 0.102
	require.InDelta(t, -7*scale, m.AccelX, 1e-12)
	require.InDelta(t, 19*scale, m.AccelY, 1e-12)
	require.InDelta(t, -39*scale, m.AccelZ, 1e-12)
	require.InDelta(t, 0.0, m.OrientX, 1e-12)
	require.InDelta(t, -0.03125, m.OrientY, 1e-12)
	require.InDelta(t, 0.6953125, m.OrientZ, 1e-12)
	require.InDelta(t, 0.7109375, m.OrientW, 1e-12)
}

func TestDecodeBattery(t *testing.T) {
	rec := decodeOK(t, batteryRecord)
	b, ok := rec.(*Battery)
	require.True(t, ok, "%T", rec)
	require.Equal(t, FamilyBattery, b.Family())
	require.Equal(t, -52, b.RSSI())
	// least-significant byte first: 0xBD0A mV
	require.InDelta(t, 48.394, b.Volts, 1e-9)

	b = decodeOK(t, "BAT 00AB8967452301 B80B -52").(*Battery)
	require.InDelta(t, 3.0, b.Volts, 1e-9)
}

func TestDecodeLegacy(t *testing.T) {
	rec := decodeOK(t, legacyRecord)
	l, ok := rec.(*LegacyTemperature)
	require.True(t, ok, "%T", rec)
	require.Equal(t, TagLegacySensor, l.Tag())
	require.Equal(t, FamilyLegacy, l.Family())
	require.Equal(t, "C9:72:9C:47:6E:94", l.Address().String())
	require.Equal(t, -53, l.RSSI())
	require.False(t, l.Repeated)
	require.Equal(t, RecordReset, l.RecordType)
	require.EqualValues(t, 7, l.Sequence())
	require.EqualValues(t, 0x8002, l.Flags)
	require.True(t, l.ContactOpen)
	require.EqualValues(t, 8, l.Epoch)
	require.False(t, l.HasTemperature)
	require.False(t, l.HasBattery)
	require.Equal(t, "BT510", l.Name)
	require.Equal(t, "3.0.7", l.Firmware)
}

func TestDecodeLegacyRecordTypes(t *testing.T) {
	testCases := []struct {
		name  string
		line  string
		check func(*testing.T, Record)
	}{
		{
			name: "temperature",
			line: legacyWith("BS1", "01", "D2090000"),
			check: func(t *testing.T, rec Record) {
				l := rec.(*LegacyTemperature)
				require.True(t, l.HasTemperature)
				require.InDelta(t, 25.14, l.Temperature, 1e-9)
			},
		},
		{
			name: "negative temperature alarm",
			line: legacyWith("BS1", "07", "18FC0000"),
			check: func(t *testing.T, rec Record) {
				l := rec.(*LegacyTemperature)
				require.True(t, l.HasTemperature)
				require.InDelta(t, -10.0, l.Temperature, 1e-9)
			},
		},
		{
			name: "battery from repeater",
			line: legacyWith("BR1", "0C", "B80B0000"),
			check: func(t *testing.T, rec Record) {
				l := rec.(*LegacyTemperature)
				require.True(t, l.Repeated)
				require.Equal(t, TagLegacyRepeat, l.Tag())
				require.True(t, l.HasBattery)
				require.InDelta(t, 3.0, l.BatteryVolts, 1e-9)
			},
		},
		{
			name: "reserved type",
			line: legacyWith("BS1", "0E", "00000000"),
			check: func(t *testing.T, rec Record) {
				u, ok := rec.(*Unknown)
				require.True(t, ok, "%T", rec)
				require.Equal(t, FamilyNone, u.Family())
				require.EqualValues(t, 7, u.Sequence())
				require.Equal(t, "reserved(14)", u.RecordType.String())
			},
		},
		{
			name: "base advertisement without extension",
			line: "BS1:" + legacyHex[:62] + " -60",
			check: func(t *testing.T, rec Record) {
				l := rec.(*LegacyTemperature)
				require.Empty(t, l.Name)
				require.EqualValues(t, 7, l.RecordNumber)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, decodeOK(t, tc.line))
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	testCases := []struct {
		name   string
		line   string
		reason Reason
	}{
		{"empty", "", ReasonTooShort},
		{"short", "ESD 00AB -1", ReasonTooShort},
		{"short after garbage", "xxxxxxxxxxxxxxxxxxxxBAT 00 -1", ReasonTooShort},
		{"unknown tag", "XYZ 00AB8967452301 0ABD -52", ReasonUnknownTag},
		{"bad hex", "BAT 00AB89674523ZZ 0ABD -52", ReasonBadHex},
		{"odd digits", "BAT 00AB8967452301 0ABD1 -52", ReasonBadHex},
		{"truncated environmental", "ESD 00AB8967452301 01 CC09 -50", ReasonBadLength},
		{"truncated motion", "MSD 00AB8967452301 00 01 64 F9FF -49", ReasonBadLength},
		{"oversized environmental", "ESD 00AB8967452301 00 CC09 4F12 B8069B 2A00 DEAD -50", ReasonBadLength},
		{"oversized battery", "BAT 00AB8967452301 0ABD 0102030405060708 -52", ReasonBadLength},
		{"bad rssi", "BAT 00AB8967452301 0ABD -5x", ReasonBadRSSI},
		{"rssi out of range", "BAT 00AB8967452301 0ABD -500", ReasonBadRSSI},
		{"legacy too short", "BS1:" + legacyHex[:40] + " -60", ReasonBadLength},
		{"legacy partial extension", "BS1:" + legacyHex[:80] + " -60", ReasonBadLength},
		{"legacy truncated name", "BS1:" + legacyHex[:len(legacyHex)-2] + " -60", ReasonBadLength},
		{"legacy trailing bytes", "BS1:" + legacyHex + "00 -60", ReasonBadLength},
		{"legacy missing rssi", "BS1:" + legacyHex, ReasonBadRSSI},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := Decode([]byte(tc.line))
			require.Nil(t, rec)
			require.Error(t, err)
			require.Equal(t, tc.reason, ReasonOf(err), err.Error())
		})
	}
}

func TestParseMAC(t *testing.T) {
	want := MAC{0x01, 0x23, 0x45, 0x67, 0x89, 0xAB}
	for _, s := range []string{"01:23:45:67:89:AB", "01-23-45-67-89-ab", "0123456789ab", " 01:23:45:67:89:aB "} {
		m, err := ParseMAC(s)
		require.NoError(t, err, s)
		require.Equal(t, want, m)
	}
	for _, s := range []string{"", "01:23:45:67:89", "01:23-45:67:89:AB", "0:123:45:67:89:AB", "01:23:45:67:89:AG", strings.Repeat("0", 13)} {
		_, err := ParseMAC(s)
		require.Error(t, err, s)
	}
	require.True(t, MAC{}.IsZero())
	require.Equal(t, "01:23:45:67:89:AB", want.String())
}
