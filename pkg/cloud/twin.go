package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/beacongw/pkg/beacon"
	"github.com/robotalks/beacongw/pkg/registry"
)

// Twin property keys.
const (
	KeyRequireAuthorization = "requireRsl10Authorization"
	KeyAuthorizedMACPrefix  = "authorizedMac"
	KeyTelemetryPeriod      = "telemetryPeriodSeconds"
)

// DefaultTelemetryPeriod is the telemetry period before any twin update.
const DefaultTelemetryPeriod = 30 * time.Second

// Config is the gateway configuration managed by the device twin.
type Config struct {
	RequireAuthorization bool
	AuthorizedMACs       [registry.MaxDevices]beacon.MAC
	TelemetryPeriod      time.Duration
}

// DefaultConfig returns the configuration used before any twin update.
func DefaultConfig() Config {
	return Config{TelemetryPeriod: DefaultTelemetryPeriod}
}

// Policy converts the configuration to a registry policy.
func (c Config) Policy() registry.Policy {
	p := registry.Policy{Authorized: c.AuthorizedMACs}
	if c.RequireAuthorization {
		p.Mode = registry.Strict
	}
	return p
}

// TwinError reports a rejected twin update.
type TwinError struct {
	Key string
	Err error
}

// Error implements error.
func (e *TwinError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("twin: %v", e.Err)
	}
	return fmt.Sprintf("twin %s: %v", e.Key, e.Err)
}

// Unwrap returns the cause.
func (e *TwinError) Unwrap() error {
	return e.Err
}

// ApplyTwin applies a desired-properties patch, or a full twin with a
// "desired" section, on top of prev. Unknown keys are ignored. Any
// recognized key with a malformed value rejects the whole update and
// prev is returned unchanged.
func ApplyTwin(prev Config, payload []byte) (Config, error) {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(payload, &props); err != nil {
		return prev, &TwinError{Err: err}
	}
	if desired, ok := props["desired"]; ok {
		props = nil
		if err := json.Unmarshal(desired, &props); err != nil {
			return prev, &TwinError{Key: "desired", Err: err}
		}
	}
	next := prev
	for key, raw := range props {
		if err := next.applyProperty(key, raw); err != nil {
			return prev, &TwinError{Key: key, Err: err}
		}
	}
	return next, nil
}

func (c *Config) applyProperty(key string, raw json.RawMessage) error {
	switch {
	case key == KeyRequireAuthorization:
		return json.Unmarshal(raw, &c.RequireAuthorization)
	case key == KeyTelemetryPeriod:
		var secs json.Number
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&secs); err != nil {
			return err
		}
		n, err := strconv.ParseInt(secs.String(), 10, 32)
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("period must be positive, got %d", n)
		}
		c.TelemetryPeriod = time.Duration(n) * time.Second
	case strings.HasPrefix(key, KeyAuthorizedMACPrefix):
		slot, err := strconv.Atoi(key[len(KeyAuthorizedMACPrefix):])
		if err != nil || slot < 1 || slot > registry.MaxDevices {
			// not one of ours
			return nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		var mac beacon.MAC
		if s != "" {
			if mac, err = beacon.ParseMAC(s); err != nil {
				return err
			}
		}
		c.AuthorizedMACs[slot-1] = mac
	}
	return nil
}

// Reported renders the effective configuration as reported properties.
func (c Config) Reported() []byte {
	props := make(map[string]interface{}, registry.MaxDevices+2)
	props[KeyRequireAuthorization] = c.RequireAuthorization
	props[KeyTelemetryPeriod] = int64(c.TelemetryPeriod / time.Second)
	for i, mac := range c.AuthorizedMACs {
		key := KeyAuthorizedMACPrefix + strconv.Itoa(i+1)
		if mac.IsZero() {
			props[key] = ""
		} else {
			props[key] = mac.String()
		}
	}
	out, _ := json.Marshal(props)
	return out
}
