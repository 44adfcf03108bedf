package cloud

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

// Message types on the wire.
const (
	MessageTypeTelemetry = 0
	MessageTypeHello     = 200
)

// ErrMalformedResponse is returned for cloud messages that do not
// follow the handshake grammar.
var ErrMalformedResponse = errors.New("malformed response")

// Response is the platform answer to a hello.
type Response struct {
	EC           *int
	CT           *int
	SessionID    *string
	TemplateGUID *string
	OptionalGUID *string
}

type responseIDs struct {
	DTG *string `json:"dtg"`
	G   *string `json:"g"`
}

type responseBody struct {
	EC  *float64 `json:"ec"`
	CT  *float64 `json:"ct"`
	SID *string  `json:"sid"`
	responseIDs
	Has  json.RawMessage `json:"has"`
	Meta *responseIDs    `json:"meta"`
}

type responseDoc struct {
	D *responseBody `json:"d"`
}

// ParseResponse parses {"d":{ec,ct,sid,dtg,g,has,meta:{dtg,g}}}. The
// template GUID and optional GUID may appear directly under d or under
// d.meta, the latter taking precedence.
func ParseResponse(payload []byte) (*Response, error) {
	var doc responseDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if doc.D == nil {
		return nil, fmt.Errorf("%w: missing d", ErrMalformedResponse)
	}
	d := doc.D
	resp := &Response{
		SessionID:    d.SID,
		TemplateGUID: d.DTG,
		OptionalGUID: d.G,
	}
	if d.EC != nil {
		v := int(*d.EC)
		resp.EC = &v
	}
	if d.CT != nil {
		v := int(*d.CT)
		resp.CT = &v
	}
	if d.Meta != nil {
		if d.Meta.DTG != nil {
			resp.TemplateGUID = d.Meta.DTG
		}
		if d.Meta.G != nil {
			resp.OptionalGUID = d.Meta.G
		}
	}
	return resp, nil
}

// HelloMessage builds the hello sent while handshaking.
func HelloMessage(t time.Time) []byte {
	return []byte(fmt.Sprintf(`{"t":"%s","mt":%d,"sid":""}`, fx.FormatIoTTime(t), MessageTypeHello))
}

// Wrap embeds an inner telemetry payload into the session envelope.
func Wrap(sid, dtg string, t time.Time, inner []byte) []byte {
	var w bytes.Buffer
	w.Grow(len(inner) + len(sid) + len(dtg) + 96)
	w.WriteString(`{"sid":`)
	writeJSONString(&w, sid)
	w.WriteString(`,"dtg":`)
	writeJSONString(&w, dtg)
	fmt.Fprintf(&w, `,"mt":%d,"dt":"%s","d":[{"d":`, MessageTypeTelemetry, fx.FormatIoTTime(t))
	w.Write(inner)
	w.WriteString(`}]}`)
	return w.Bytes()
}

func writeJSONString(w *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	w.Write(encoded)
}
