// Package telemetry renders device readings into the JSON payloads the
// cloud expects.
package telemetry

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/robotalks/beacongw/pkg/beacon"
	"github.com/robotalks/beacongw/pkg/registry"
)

// MaxPayloadLen bounds every inner payload.
const MaxPayloadLen = 256

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadLen.
var ErrPayloadTooLarge = errors.New("payload too large")

const (
	motionTemplate  = `{"RSL10Sensors":{"address":"%s","rssi":%d,"acc_x":%.4f,"acc_y":%.4f,"acc_z":%.4f,"orient_x":%.4f,"orient_y":%.4f,"orient_z":%.4f,"orient_w":%.4f}}`
	envTemplate     = `{"RSL10Sensors":{"address":"%s","rssi":%d,"temperature":%.2f,"humidity":%.2f,"pressure":%.2f,"light":%d}}`
	batteryTemplate = `{"RSL10Sensors":{"address":"%s","rssi":%d,"battery":%.2f}}`
)

// Payload is one rendered telemetry message.
type Payload struct {
	Family beacon.Family
	MAC    beacon.MAC
	Body   []byte
}

// Motion renders a motion reading.
func Motion(mac beacon.MAC, rssi int, m registry.MotionState) ([]byte, error) {
	return bounded(fmt.Sprintf(motionTemplate, mac, rssi,
		m.AccelX, m.AccelY, m.AccelZ,
		m.OrientX, m.OrientY, m.OrientZ, m.OrientW))
}

// Environmental renders an environmental reading.
func Environmental(mac beacon.MAC, rssi int, e registry.EnvState) ([]byte, error) {
	return bounded(fmt.Sprintf(envTemplate, mac, rssi,
		e.Temperature, e.Humidity, e.Pressure, e.Light))
}

// Battery renders a battery reading.
func Battery(mac beacon.MAC, rssi int, b registry.BatteryState) ([]byte, error) {
	return bounded(fmt.Sprintf(batteryTemplate, mac, rssi, b.Volts))
}

// Legacy renders a BT510 advertisement.
func Legacy(mac beacon.MAC, rssi int, l registry.LegacyState) ([]byte, error) {
	var w bytes.Buffer
	fmt.Fprintf(&w, `{"BT510Sensors":{"address":"%s","rssi":%d`, mac, rssi)
	if l.Name != "" {
		fmt.Fprintf(&w, `,"name":%s`, strconv.Quote(l.Name))
	}
	fmt.Fprintf(&w, `,"recordType":%d,"recordNumber":%d,"contactOpen":%t`,
		uint8(l.RecordType), l.RecordNumber, l.ContactOpen)
	if l.HasTemperature {
		fmt.Fprintf(&w, `,"temperature":%.2f`, l.Temperature)
	}
	if l.HasBattery {
		fmt.Fprintf(&w, `,"battery":%.2f`, l.BatteryVolts)
	}
	w.WriteString("}}")
	return bounded(w.String())
}

// Snapshot renders one payload per fresh family, motion first, then
// environmental, battery and legacy. Families failing to render are
// reported in the returned error and skipped.
func Snapshot(s registry.Snapshot) ([]Payload, error) {
	var out []Payload
	var failed []error
	add := func(f beacon.Family, body []byte, err error) {
		if err != nil {
			failed = append(failed, fmt.Errorf("%s %s: %w", s.MAC, f, err))
			return
		}
		out = append(out, Payload{Family: f, MAC: s.MAC, Body: body})
	}
	if s.Fresh.Has(registry.FreshMotion) {
		body, err := Motion(s.MAC, s.Rssi, s.Motion)
		add(beacon.FamilyMotion, body, err)
	}
	if s.Fresh.Has(registry.FreshEnv) {
		body, err := Environmental(s.MAC, s.Rssi, s.Env)
		add(beacon.FamilyEnvironmental, body, err)
	}
	if s.Fresh.Has(registry.FreshBattery) {
		body, err := Battery(s.MAC, s.Rssi, s.Battery)
		add(beacon.FamilyBattery, body, err)
	}
	if s.Fresh.Has(registry.FreshLegacy) {
		body, err := Legacy(s.MAC, s.Rssi, s.Legacy)
		add(beacon.FamilyLegacy, body, err)
	}
	return out, errors.Join(failed...)
}

func bounded(s string) ([]byte, error) {
	if len(s) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(s))
	}
	return []byte(s), nil
}
