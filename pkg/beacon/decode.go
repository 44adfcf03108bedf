package beacon

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// MinRecordLen is the length of the shortest valid record, a compact
// BAT record.
const MinRecordLen = 25

// hex body sizes in bytes, address included
const (
	addrLen          = 7
	environmentalLen = addrLen + 1 + 2 + 2 + 3 + 2
	motionLen        = addrLen + 1 + 1 + 1 + 3*2 + 4
	batteryLen       = addrLen + 2

	lightUnavailable = 0xFFFF
	accelFullScale   = 32768
	accelToG         = 0.102
	orientDivisor    = 128
)

var tagPrefixes = [][]byte{
	[]byte(TagEnvironmental),
	[]byte(TagMotion),
	[]byte(TagBattery),
	[]byte(TagLegacySensor + ":"),
	[]byte(TagLegacyRepeat + ":"),
}

// Decode parses one framed record. Leading bytes before the first
// known tag are skipped. A rejected record returns a *RejectError.
func Decode(line []byte) (Record, error) {
	line = bytes.TrimRight(line, " \t\r\x00")
	start := -1
	for _, prefix := range tagPrefixes {
		if i := bytes.Index(line, prefix); i >= 0 && (start < 0 || i < start) {
			start = i
		}
	}
	if start < 0 {
		if len(line) < MinRecordLen {
			return nil, reject(ReasonTooShort, "", "%d bytes", len(line))
		}
		return nil, reject(ReasonUnknownTag, "", "%q", truncate(line, 8))
	}
	line = line[start:]
	if len(line) < MinRecordLen {
		return nil, reject(ReasonTooShort, string(line[:3]), "%d bytes", len(line))
	}

	tag := Tag(line[:3])
	switch tag {
	case TagLegacySensor, TagLegacyRepeat:
		return decodeLegacy(tag, line[4:])
	}

	body, rssi, err := splitBody(tag, line[3:])
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagEnvironmental:
		return decodeEnvironmental(body, rssi)
	case TagMotion:
		return decodeMotion(body, rssi)
	default:
		return decodeBattery(body, rssi)
	}
}

// splitBody separates the trailing RSSI token and decodes the hex
// fields, which may or may not be separated by spaces.
func splitBody(tag Tag, rest []byte) ([]byte, int, error) {
	rest = bytes.TrimSpace(rest)
	sep := bytes.LastIndexAny(rest, " \t")
	if sep < 0 {
		return nil, 0, reject(ReasonBadRSSI, string(tag), "missing rssi")
	}
	rssi, err := parseRSSI(rest[sep+1:])
	if err != nil {
		return nil, 0, reject(ReasonBadRSSI, string(tag), "%v", err)
	}
	digits := make([]byte, 0, sep)
	for _, c := range rest[:sep] {
		if c != ' ' && c != '\t' {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 != 0 {
		return nil, 0, reject(ReasonBadHex, string(tag), "odd number of digits")
	}
	body := make([]byte, len(digits)/2)
	if _, err := hex.Decode(body, digits); err != nil {
		return nil, 0, reject(ReasonBadHex, string(tag), "%v", err)
	}
	return body, rssi, nil
}

func parseRSSI(tok []byte) (int, error) {
	v, err := strconv.ParseInt(string(tok), 10, 16)
	if err != nil {
		return 0, err
	}
	if v < -128 || v > 127 {
		return 0, strconv.ErrRange
	}
	return int(v), nil
}

func header(tag Tag, body []byte, rssi int) Header {
	return Header{
		RecordTag: tag,
		AddrType:  body[0],
		MAC:       macFromLE(body[1:addrLen]),
		Rssi:      rssi,
	}
}

func checkLen(tag Tag, body []byte, want int) error {
	if len(body) != want {
		return reject(ReasonBadLength, string(tag), "%d bytes, want %d", len(body), want)
	}
	return nil
}

func decodeEnvironmental(body []byte, rssi int) (Record, error) {
	if err := checkLen(TagEnvironmental, body, environmentalLen); err != nil {
		return nil, err
	}
	p := body[addrLen:]
	rec := &Environmental{
		Header:      header(TagEnvironmental, body, rssi),
		Version:     p[0],
		Temperature: float64(int16(binary.LittleEndian.Uint16(p[1:]))) / 100,
		Humidity:    float64(binary.LittleEndian.Uint16(p[3:])) / 100,
		Pressure:    float64(uint24(p[5:])) / 100,
		Light:       binary.LittleEndian.Uint16(p[8:]),
	}
	if rec.Light == lightUnavailable {
		rec.Light = 0
	}
	return rec, nil
}

func decodeMotion(body []byte, rssi int) (Record, error) {
	if err := checkLen(TagMotion, body, motionLen); err != nil {
		return nil, err
	}
	p := body[addrLen:]
	rec := &Motion{
		Header:      header(TagMotion, body, rssi),
		Version:     p[0],
		SampleIndex: p[1],
		SampleRate:  p[2] >> 4 & 0x0f,
		AccelRange:  p[2] >> 2 & 0x03,
		DataType:    p[2] & 0x03,
	}
	scale := float64(rec.AccelRange) * 4 / accelFullScale * accelToG
	rec.AccelX = float64(int16(binary.LittleEndian.Uint16(p[3:]))) * scale
	rec.AccelY = float64(int16(binary.LittleEndian.Uint16(p[5:]))) * scale
	rec.AccelZ = float64(int16(binary.LittleEndian.Uint16(p[7:]))) * scale
	rec.OrientX = float64(int8(p[9])) / orientDivisor
	rec.OrientY = float64(int8(p[10])) / orientDivisor
	rec.OrientZ = float64(int8(p[11])) / orientDivisor
	rec.OrientW = float64(int8(p[12])) / orientDivisor
	return rec, nil
}

func decodeBattery(body []byte, rssi int) (Record, error) {
	if err := checkLen(TagBattery, body, batteryLen); err != nil {
		return nil, err
	}
	return &Battery{
		Header: header(TagBattery, body, rssi),
		Volts:  float64(binary.LittleEndian.Uint16(body[addrLen:])) / 1000,
	}, nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
