package beacon

// Tag identifies the record type on the wire.
type Tag string

// Known tags.
const (
	TagEnvironmental Tag = "ESD"
	TagMotion        Tag = "MSD"
	TagBattery       Tag = "BAT"
	TagLegacySensor  Tag = "BS1"
	TagLegacyRepeat  Tag = "BR1"
)

// Family groups records by the state they update in a device entry.
type Family int

// Record families.
const (
	FamilyNone Family = iota
	FamilyEnvironmental
	FamilyMotion
	FamilyBattery
	FamilyLegacy
)

var familyNames = [...]string{"none", "environmental", "motion", "battery", "legacy"}

func (f Family) String() string {
	if f >= 0 && int(f) < len(familyNames) {
		return familyNames[f]
	}
	return "unknown"
}

// Record is a decoded advertisement.
type Record interface {
	Tag() Tag
	Address() MAC
	RSSI() int
	Family() Family
}

// Sequenced is implemented by records carrying a sender-side record
// number usable for duplicate suppression.
type Sequenced interface {
	Sequence() uint16
}

// Header holds the fields common to all records.
type Header struct {
	RecordTag Tag
	MAC       MAC
	// AddrType is the advertiser address type octet preceding the
	// address in modern records.
	AddrType byte
	Rssi     int
}

// Tag implements Record.
func (h *Header) Tag() Tag { return h.RecordTag }

// Address implements Record.
func (h *Header) Address() MAC { return h.MAC }

// RSSI implements Record.
func (h *Header) RSSI() int { return h.Rssi }

// Environmental is an ESD record.
type Environmental struct {
	Header
	Version     uint8
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64
	Light       uint16
}

// Family implements Record.
func (*Environmental) Family() Family { return FamilyEnvironmental }

// Motion is an MSD record.
type Motion struct {
	Header
	Version     uint8
	SampleIndex uint8
	SampleRate  uint8
	AccelRange  uint8
	DataType    uint8
	AccelX      float64
	AccelY      float64
	AccelZ      float64
	OrientX     float64
	OrientY     float64
	OrientZ     float64
	OrientW     float64
}

// Family implements Record.
func (*Motion) Family() Family { return FamilyMotion }

// Battery is a BAT record.
type Battery struct {
	Header
	Volts float64
}

// Family implements Record.
func (*Battery) Family() Family { return FamilyBattery }

// LegacyTemperature is a BT510 advertisement (BS1 from the sensor,
// BR1 relayed by a repeater).
type LegacyTemperature struct {
	Header
	Repeated     bool
	Flags        uint16
	RecordType   RecordType
	RecordNumber uint16
	Epoch        uint32
	Data         uint32
	ContactOpen  bool

	HasTemperature bool
	Temperature    float64
	HasBattery     bool
	BatteryVolts   float64

	// present only in extended advertisements
	ResetCount uint8
	ProductID  uint16
	Firmware   string
	Name       string
}

// Family implements Record.
func (*LegacyTemperature) Family() Family { return FamilyLegacy }

// Sequence implements Sequenced.
func (r *LegacyTemperature) Sequence() uint16 { return r.RecordNumber }

// Unknown is a well-formed legacy record with a reserved record type.
// It carries no telemetry but still consumes its record number.
type Unknown struct {
	Header
	RecordType   RecordType
	RecordNumber uint16
}

// Family implements Record.
func (*Unknown) Family() Family { return FamilyNone }

// Sequence implements Sequenced.
func (r *Unknown) Sequence() uint16 { return r.RecordNumber }
