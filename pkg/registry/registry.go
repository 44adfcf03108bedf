// Package registry tracks the beacons the gateway accepts, their latest
// readings and which readings have not been reported yet.
package registry

import (
	"errors"

	"github.com/robotalks/beacongw/pkg/beacon"
)

// MaxDevices is the fixed capacity of the registry.
const MaxDevices = 10

var (
	// ErrRejected is returned for a MAC outside the authorized list
	// while the policy is strict.
	ErrRejected = errors.New("device not authorized")
	// ErrFull is returned when no empty slot is left.
	ErrFull = errors.New("registry full")
)

// Mode selects the admission policy.
type Mode int

// Admission policies.
const (
	// Permissive admits any device while there is room.
	Permissive Mode = iota
	// Strict admits only authorized devices.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// Policy is the admission configuration.
type Policy struct {
	Mode Mode
	// Authorized holds one MAC per authorization slot, zero when the
	// slot is unused.
	Authorized [MaxDevices]beacon.MAC
}

// Allows tells whether mac is in the authorized list.
func (p *Policy) Allows(mac beacon.MAC) bool {
	if mac.IsZero() {
		return false
	}
	for _, m := range p.Authorized {
		if m == mac {
			return true
		}
	}
	return false
}

// Admits tells whether the policy lets mac in.
func (p *Policy) Admits(mac beacon.MAC) bool {
	return p.Mode == Permissive || p.Allows(mac)
}

// EnvState is the latest environmental reading.
type EnvState struct {
	Temperature float64
	Humidity    float64
	Pressure    float64
	Light       uint16
}

// MotionState is the latest motion reading.
type MotionState struct {
	AccelX, AccelY, AccelZ             float64
	OrientX, OrientY, OrientZ, OrientW float64
	SampleRate                         uint8
	AccelRange                         uint8
}

// BatteryState is the latest battery reading.
type BatteryState struct {
	Volts float64
}

// LegacyState is the latest BT510 advertisement.
type LegacyState struct {
	RecordType     beacon.RecordType
	RecordNumber   uint16
	ContactOpen    bool
	HasTemperature bool
	Temperature    float64
	HasBattery     bool
	BatteryVolts   float64
	Name           string
}

// Fresh is a set of families with unreported readings.
type Fresh uint8

// Freshness bits.
const (
	FreshEnv Fresh = 1 << iota
	FreshMotion
	FreshBattery
	FreshLegacy
)

func freshOf(f beacon.Family) Fresh {
	switch f {
	case beacon.FamilyEnvironmental:
		return FreshEnv
	case beacon.FamilyMotion:
		return FreshMotion
	case beacon.FamilyBattery:
		return FreshBattery
	case beacon.FamilyLegacy:
		return FreshLegacy
	}
	return 0
}

// Has tells whether f includes all bits of o.
func (f Fresh) Has(o Fresh) bool {
	return f&o == o && o != 0
}

// Entry is one registry slot.
type Entry struct {
	MAC        beacon.MAC
	Active     bool
	Authorized bool
	HasSeq     bool
	LastSeq    uint16
	LastRssi   int
	Fresh      Fresh

	Env     EnvState
	Motion  MotionState
	Battery BatteryState
	Legacy  LegacyState
}

// Snapshot is a copy of a device's fresh readings handed out by
// DrainFresh.
type Snapshot struct {
	Index int
	MAC   beacon.MAC
	Rssi  int
	Fresh Fresh

	Env     EnvState
	Motion  MotionState
	Battery BatteryState
	Legacy  LegacyState
}

// Registry is the fixed-capacity device table. It is not safe for
// concurrent use; the reactor thread owns it.
type Registry struct {
	policy  Policy
	entries [MaxDevices]Entry
}

// New creates a registry with policy.
func New(policy Policy) *Registry {
	return &Registry{policy: policy}
}

// Policy returns the active policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Len returns the number of active entries.
func (r *Registry) Len() int {
	n := 0
	for i := range r.entries {
		if r.entries[i].Active {
			n++
		}
	}
	return n
}

// Entry returns a copy of slot index.
func (r *Registry) Entry(index int) (Entry, bool) {
	if index < 0 || index >= MaxDevices || !r.entries[index].Active {
		return Entry{}, false
	}
	return r.entries[index], true
}

// Find returns the slot holding mac.
func (r *Registry) Find(mac beacon.MAC) (int, bool) {
	for i := range r.entries {
		if r.entries[i].Active && r.entries[i].MAC == mac {
			return i, true
		}
	}
	return -1, false
}

// LookupOrPlace returns the slot for mac, creating it when the policy
// admits the device. isNew reports a newly created entry.
func (r *Registry) LookupOrPlace(mac beacon.MAC) (index int, isNew bool, err error) {
	if !r.policy.Admits(mac) {
		return -1, false, ErrRejected
	}
	if i, ok := r.Find(mac); ok {
		return i, false, nil
	}
	for i := range r.entries {
		if !r.entries[i].Active {
			r.entries[i] = Entry{
				MAC:        mac,
				Active:     true,
				Authorized: r.policy.Allows(mac),
			}
			return i, true, nil
		}
	}
	return -1, false, ErrFull
}

// IsDuplicate tells whether seq repeats the last record number seen
// in slot index.
func (r *Registry) IsDuplicate(index int, seq uint16) bool {
	e := &r.entries[index]
	return e.Active && e.HasSeq && e.LastSeq == seq
}

// Apply stores rec in slot index and marks its family fresh.
func (r *Registry) Apply(index int, rec beacon.Record) {
	e := &r.entries[index]
	if !e.Active {
		return
	}
	e.LastRssi = rec.RSSI()
	if s, ok := rec.(beacon.Sequenced); ok {
		e.HasSeq, e.LastSeq = true, s.Sequence()
	}
	switch v := rec.(type) {
	case *beacon.Environmental:
		e.Env = EnvState{
			Temperature: v.Temperature,
			Humidity:    v.Humidity,
			Pressure:    v.Pressure,
			Light:       v.Light,
		}
	case *beacon.Motion:
		e.Motion = MotionState{
			AccelX: v.AccelX, AccelY: v.AccelY, AccelZ: v.AccelZ,
			OrientX: v.OrientX, OrientY: v.OrientY, OrientZ: v.OrientZ, OrientW: v.OrientW,
			SampleRate: v.SampleRate,
			AccelRange: v.AccelRange,
		}
	case *beacon.Battery:
		e.Battery.Volts = v.Volts
	case *beacon.LegacyTemperature:
		l := &e.Legacy
		l.RecordType = v.RecordType
		l.RecordNumber = v.RecordNumber
		l.ContactOpen = v.ContactOpen
		if v.HasTemperature {
			l.HasTemperature, l.Temperature = true, v.Temperature
		}
		if v.HasBattery {
			l.HasBattery, l.BatteryVolts = true, v.BatteryVolts
		}
		if v.Name != "" {
			l.Name = v.Name
		}
	}
	e.Fresh |= freshOf(rec.Family())
}

// DrainFresh returns a snapshot of every entry with unreported
// readings, in slot order, and clears their freshness.
func (r *Registry) DrainFresh() []Snapshot {
	var out []Snapshot
	for i := range r.entries {
		e := &r.entries[i]
		if !e.Active || e.Fresh == 0 {
			continue
		}
		out = append(out, Snapshot{
			Index:   i,
			MAC:     e.MAC,
			Rssi:    e.LastRssi,
			Fresh:   e.Fresh,
			Env:     e.Env,
			Motion:  e.Motion,
			Battery: e.Battery,
			Legacy:  e.Legacy,
		})
		e.Fresh = 0
	}
	return out
}

// SetPolicy replaces the admission policy. Under a strict policy,
// entries for devices no longer authorized are removed.
func (r *Registry) SetPolicy(p Policy) (removed []beacon.MAC) {
	r.policy = p
	for i := range r.entries {
		e := &r.entries[i]
		if !e.Active {
			continue
		}
		e.Authorized = p.Allows(e.MAC)
		if p.Mode == Strict && !e.Authorized {
			removed = append(removed, e.MAC)
			*e = Entry{}
		}
	}
	return removed
}
