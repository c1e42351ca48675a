package ami

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadPacket(t *testing.T) {
	wire := "Event: DialBegin\r\nLinkedid: 1234.5\r\nCallerIDNum: 1001\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(wire))

	event, err := readPacket(r)
	if err != nil {
		t.Fatalf("readPacket() error: %v", err)
	}
	if event.Name() != "DialBegin" {
		t.Errorf("Name() = %q, want DialBegin", event.Name())
	}
	if event.Get("Linkedid") != "1234.5" {
		t.Errorf("Linkedid = %q", event.Get("Linkedid"))
	}
	if event.Get("Missing") != "" {
		t.Error("missing key should return empty string")
	}
}

func TestReadPacketSkipsLeadingBlankLines(t *testing.T) {
	wire := "\r\n\r\nEvent: Hangup\r\nLinkedid: 9\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(wire))

	event, err := readPacket(r)
	if err != nil {
		t.Fatalf("readPacket() error: %v", err)
	}
	if event.Name() != "Hangup" {
		t.Errorf("Name() = %q, want Hangup", event.Name())
	}
}

func TestReadPacketEOF(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Event: Hangup\r\n"))
	if _, err := readPacket(r); err == nil {
		t.Error("truncated packet should return an error")
	}
}

func TestMarshalAction(t *testing.T) {
	got := string(marshalAction("Login", map[string]string{
		"Username": "admin",
		"Secret":   "pw",
	}))

	if !strings.HasPrefix(got, "Action: Login\r\n") {
		t.Errorf("action line missing: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\n") {
		t.Errorf("packet must end with a blank line: %q", got)
	}
	// Fields are sorted for stable output.
	if strings.Index(got, "Secret:") > strings.Index(got, "Username:") {
		t.Errorf("fields should be sorted: %q", got)
	}
}

func TestResponseHelpers(t *testing.T) {
	ok := Event{"Response": "Success", "Message": "Authentication accepted"}
	if !ok.IsResponse() || !ok.Success() {
		t.Error("success response misclassified")
	}

	fail := Event{"Response": "Error", "Message": "Authentication failed"}
	if !fail.IsResponse() || fail.Success() {
		t.Error("error response misclassified")
	}

	event := Event{"Event": "Hangup"}
	if event.IsResponse() {
		t.Error("event misclassified as response")
	}
}

func TestEventQueueDropPolicy(t *testing.T) {
	q := newEventQueue(3)

	q.Push(Event{"Event": "PeerStatus"})
	q.Push(Event{"Event": "DialBegin", "Linkedid": "1"})
	q.Push(Event{"Event": "Registry"})

	// Queue full: pushing drops the oldest droppable event (PeerStatus),
	// never a call-state event.
	dropped := q.Push(Event{"Event": "Hangup", "Linkedid": "1"})
	if dropped != "PeerStatus" {
		t.Errorf("dropped = %q, want PeerStatus", dropped)
	}

	first, _ := q.Pop()
	if first.Name() != "DialBegin" {
		t.Errorf("first = %q, want DialBegin", first.Name())
	}
}

func TestEventQueueNeverDropsCallState(t *testing.T) {
	q := newEventQueue(2)

	q.Push(Event{"Event": "DialBegin", "Linkedid": "1"})
	q.Push(Event{"Event": "DialEnd", "Linkedid": "1"})
	dropped := q.Push(Event{"Event": "Hangup", "Linkedid": "1"})

	if dropped != "" {
		t.Errorf("call-state event dropped: %q", dropped)
	}
	if q.Len() != 3 {
		t.Errorf("queue should grow past its bound rather than drop call-state events, len=%d", q.Len())
	}
}

func TestEventQueueClose(t *testing.T) {
	q := newEventQueue(4)
	q.Push(Event{"Event": "Hangup", "Linkedid": "1"})
	q.Close()

	// Queued events drain after close.
	if e, ok := q.Pop(); !ok || e.Name() != "Hangup" {
		t.Errorf("Pop() after close should drain queued events, got %v %v", e, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on drained closed queue should report closed")
	}
}

func TestIsCallStateEvent(t *testing.T) {
	for _, name := range []string{"DialBegin", "DialEnd", "Hangup"} {
		if !isCallStateEvent(name) {
			t.Errorf("%s should be a call-state event", name)
		}
	}
	for _, name := range []string{"PeerStatus", "Registry", "Newchannel", ""} {
		if isCallStateEvent(name) {
			t.Errorf("%s should not be a call-state event", name)
		}
	}
}
