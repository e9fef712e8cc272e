// internal/framer/firehose.go
// Firehose framer (spec.md §4.2): vendor-XML over USB bulk. A command is an
// XML document `<?xml version="1.0"?><data>...</data>` NUL-padded to the
// next 512-byte boundary; responses are streams of <log>/<response> XML
// elements, one bulk-in read per "frame" per spec.md's framing note. No
// teacher analogue exists for XML framing (the teacher's wire format is
// pure binary); built with encoding/xml, matching the rest of flashcore's
// habit of reaching for the right stdlib encoder rather than hand-rolling a
// parser for a format the standard library already understands.
package framer

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"flashcore/internal/flasherr"
)

const firehoseBlock = 512

// FirehoseXML is the decoded result of one Firehose exchange (spec.md §3).
type FirehoseXML struct {
	XML        string
	Attachment []byte
}

// EncodeFirehoseCommand wraps body (the inner XML elements, e.g.
// `<configure .../>`) in the `<?xml?><data>...</data>` envelope and pads
// with NUL bytes to the next 512-byte boundary.
func EncodeFirehoseCommand(body string) []byte {
	doc := fmt.Sprintf("<?xml version=\"1.0\" ?><data>%s</data>", body)
	raw := []byte(doc)
	padded := len(raw)
	if rem := padded % firehoseBlock; rem != 0 {
		padded += firehoseBlock - rem
	}
	out := make([]byte, padded)
	copy(out, raw)
	return out
}

// FirehoseResponse is one parsed <response .../> element.
type FirehoseResponse struct {
	Value   string // "ACK" or "NAK"
	RawMode bool
	Attrs   map[string]string
}

// FirehoseLog is one parsed <log value="..."/> element.
type FirehoseLog struct {
	Value string
}

// firehoseDoc mirrors the <data>...</data> envelope's possible children.
// Firehose devices intermix <log> and <response> under one <data> root, so
// both element kinds are parsed permissively.
type firehoseDoc struct {
	XMLName  xml.Name `xml:"data"`
	Logs     []rawElement `xml:"log"`
	Responses []rawElement `xml:"response"`
}

type rawElement struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

// DecodeFirehoseFrame parses the NUL-padded XML document in one bulk-in
// read into its <log> and <response> elements, in document order isn't
// preserved across the two slices (XML unmarshalling groups by element
// name) — callers needing strict order should not rely on interleaving
// beyond "responses conclude the exchange", which is the only ordering
// spec.md's state machine (§4.3) actually depends on.
func DecodeFirehoseFrame(data []byte) ([]FirehoseLog, []FirehoseResponse, error) {
	trimmed := bytes.TrimRight(data, "\x00")
	if len(trimmed) == 0 {
		return nil, nil, nil
	}

	var doc firehoseDoc
	if err := xml.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, flasherr.NewFrameError(flasherr.FrameOverflow, err)
	}

	logs := make([]FirehoseLog, 0, len(doc.Logs))
	for _, l := range doc.Logs {
		logs = append(logs, FirehoseLog{Value: attrMap(l.Attrs)["value"]})
	}

	responses := make([]FirehoseResponse, 0, len(doc.Responses))
	for _, r := range doc.Responses {
		attrs := attrMap(r.Attrs)
		responses = append(responses, FirehoseResponse{
			Value:   attrs["value"],
			RawMode: attrs["rawmode"] == "true",
			Attrs:   attrs,
		})
	}

	return logs, responses, nil
}
