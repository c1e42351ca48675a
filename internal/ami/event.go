package ami

import (
	"bufio"
	"fmt"
	"sort"
	"strings"
)

// Event is one AMI packet: a flat map of header keys to values. Both
// unsolicited events and action responses arrive in this shape.
type Event map[string]string

// Name returns the event type, or "" for action responses.
func (e Event) Name() string {
	return e["Event"]
}

// Get returns the value for key, or "" when absent.
func (e Event) Get(key string) string {
	return e[key]
}

// IsResponse reports whether the packet is a reply to an action.
func (e Event) IsResponse() bool {
	_, ok := e["Response"]
	return ok
}

// Success reports whether an action response indicates success.
func (e Event) Success() bool {
	return e["Response"] == "Success"
}

// readPacket reads one AMI packet: "Key: Value" lines terminated by an
// empty line. Malformed lines without a colon are skipped.
func readPacket(r *bufio.Reader) (Event, error) {
	event := make(Event)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading packet line: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(event) == 0 {
				continue
			}
			return event, nil
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			// Some values (e.g. command output) omit the space.
			key, value, ok = strings.Cut(line, ":")
			if !ok {
				continue
			}
		}
		event[key] = value
	}
}

// marshalAction serializes an action into wire format. Keys are emitted
// in sorted order so output is stable.
func marshalAction(action string, fields map[string]string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\n", action)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, fields[k])
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
