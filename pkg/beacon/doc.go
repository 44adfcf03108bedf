// Package beacon decodes the text records the BLE co-processor emits
// for every advertisement it receives.
//
// Modern RSL10 records start with a 3-letter tag (ESD, MSD, BAT)
// followed by ASCII-hex fields and the RSSI as a signed decimal. Legacy
// BT510 records start with BS1: or BR1: followed by one hex blob and
// the RSSI. All multi-byte numbers are transmitted least-significant
// byte first.
package beacon
