// Package stream maps the domain event envelope onto the SSE wire
// format. The write side reuses gin's SSE encoder; the read side is an
// incremental decoder, since live subscriptions cannot wait for EOF.
package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-contrib/sse"

	"github.com/threadview/threadview/pkg/domain"
)

// Encode writes one event as an SSE frame. The SSE event field carries
// the type for cheap client-side filtering; the data field carries the
// full JSON envelope.
func Encode(w io.Writer, ev domain.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return sse.Encode(w, sse.Event{
		Id:    ev.ID,
		Event: string(ev.Type),
		Data:  string(b),
	})
}

// WriteHeartbeat emits an SSE comment line. Comments keep intermediate
// proxies from timing out an idle stream and are skipped by decoders.
func WriteHeartbeat(w io.Writer) error {
	_, err := io.WriteString(w, ": ping\n\n")
	return err
}

// Reader decodes SSE frames incrementally from a byte stream.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next blocks until a complete frame arrives and returns its event.
// Heartbeat comments and unknown fields are skipped. Returns io.EOF
// when the stream ends cleanly.
func (r *Reader) Next() (domain.Event, error) {
	var data strings.Builder
	sawData := false

	for {
		line, err := r.br.ReadString('\n')
		if err != nil {
			if err == io.EOF && sawData {
				// Stream ended mid-frame; treat the partial frame as lost.
				return domain.Event{}, io.ErrUnexpectedEOF
			}
			return domain.Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !sawData {
				continue
			}
			var ev domain.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return domain.Event{}, fmt.Errorf("decode event data: %w", err)
			}
			return ev, nil
		case strings.HasPrefix(line, ":"):
			// Comment / heartbeat.
		case strings.HasPrefix(line, "data:"):
			if sawData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			sawData = true
		default:
			// event:, id:, retry: carry no envelope information here.
		}
	}
}
