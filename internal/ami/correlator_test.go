package ami

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

type fakeSink struct {
	records []*models.CDR
	err     error
}

func (s *fakeSink) Create(_ context.Context, record *models.CDR) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

type fakeNotifier struct {
	started  int
	answered int
	ended    int

	lastDisposition string
	extStatus       map[string]string
	trunkStatus     map[string]string
}

func (n *fakeNotifier) CallStarted(caller, destination string)  { n.started++ }
func (n *fakeNotifier) CallAnswered(caller, destination string) { n.answered++ }
func (n *fakeNotifier) CallEnded(caller, destination string, duration int, disposition string) {
	n.ended++
	n.lastDisposition = disposition
}
func (n *fakeNotifier) ExtensionStatus(extension, status string) {
	if n.extStatus == nil {
		n.extStatus = make(map[string]string)
	}
	n.extStatus[extension] = status
}
func (n *fakeNotifier) TrunkStatus(name, status string) {
	if n.trunkStatus == nil {
		n.trunkStatus = make(map[string]string)
	}
	n.trunkStatus[name] = status
}

func testCorrelator(sink *fakeSink, notifier *fakeNotifier) (*Correlator, *time.Time) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCorrelator(sink, notifier, nil, logger)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func dialBegin(id, caller, dest string) Event {
	return Event{
		"Event":            "DialBegin",
		"Linkedid":         id,
		"Channel":          "PJSIP/" + caller + "-00000001",
		"DestChannel":      "PJSIP/" + dest + "-00000002",
		"CallerIDNum":      caller,
		"CallerIDName":     "Caller " + caller,
		"DestCallerIDNum":  dest,
		"DestCallerIDName": "Dest " + dest,
	}
}

func TestAnsweredCall(t *testing.T) {
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	c, clock := testCorrelator(sink, notifier)
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("X", "1001", "1002"))
	c.HandleEvent(ctx, Event{"Event": "DialEnd", "Linkedid": "X", "DialStatus": "ANSWER"})
	*clock = clock.Add(30 * time.Second)
	c.HandleEvent(ctx, Event{"Event": "Hangup", "Linkedid": "X"})

	if len(sink.records) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Disposition != "ANSWERED" {
		t.Errorf("disposition = %q, want ANSWERED", rec.Disposition)
	}
	if rec.Duration != 30 || rec.BillSec != 30 {
		t.Errorf("duration=%d billsec=%d, want 30/30", rec.Duration, rec.BillSec)
	}
	if rec.Src != "1001" || rec.Dst != "1002" {
		t.Errorf("src=%q dst=%q", rec.Src, rec.Dst)
	}
	if rec.CLID != `"Caller 1001" <1001>` {
		t.Errorf("clid = %q", rec.CLID)
	}
	if rec.UniqueID != "X" || rec.LastApp != "Dial" || rec.AMAFlags != 3 {
		t.Errorf("record fields wrong: %+v", rec)
	}

	if notifier.started != 1 || notifier.answered != 1 || notifier.ended != 1 {
		t.Errorf("notifications: started=%d answered=%d ended=%d, want 1/1/1",
			notifier.started, notifier.answered, notifier.ended)
	}
	if len(c.ActiveCalls()) != 0 {
		t.Error("call should be removed after hangup")
	}
}

func TestUnansweredCall(t *testing.T) {
	sink := &fakeSink{}
	c, clock := testCorrelator(sink, &fakeNotifier{})
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("Y", "1001", "1002"))
	*clock = clock.Add(5 * time.Second)
	c.HandleEvent(ctx, Event{"Event": "Hangup", "Linkedid": "Y"})

	if len(sink.records) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.records))
	}
	rec := sink.records[0]
	if rec.Disposition != "NO ANSWER" {
		t.Errorf("disposition = %q, want NO ANSWER", rec.Disposition)
	}
	if rec.Duration != 5 || rec.BillSec != 0 {
		t.Errorf("duration=%d billsec=%d, want 5/0", rec.Duration, rec.BillSec)
	}
}

func TestBusyCall(t *testing.T) {
	sink := &fakeSink{}
	c, _ := testCorrelator(sink, &fakeNotifier{})
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("Z", "1001", "1002"))
	c.HandleEvent(ctx, Event{"Event": "DialEnd", "Linkedid": "Z", "DialStatus": "BUSY"})
	c.HandleEvent(ctx, Event{"Event": "Hangup", "Linkedid": "Z"})

	if len(sink.records) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.records))
	}
	if sink.records[0].Disposition != "BUSY" {
		t.Errorf("disposition = %q, want BUSY", sink.records[0].Disposition)
	}
}

func TestOtherOutcomeUppercased(t *testing.T) {
	sink := &fakeSink{}
	c, _ := testCorrelator(sink, &fakeNotifier{})
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("W", "1001", "1002"))
	c.HandleEvent(ctx, Event{"Event": "DialEnd", "Linkedid": "W", "DialStatus": "CONGESTION"})
	c.HandleEvent(ctx, Event{"Event": "Hangup", "Linkedid": "W"})

	if len(sink.records) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.records))
	}
	if sink.records[0].Disposition != "CONGESTION" {
		t.Errorf("disposition = %q, want CONGESTION", sink.records[0].Disposition)
	}
}

func TestUnknownIDIsNoOp(t *testing.T) {
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	c, _ := testCorrelator(sink, notifier)
	ctx := context.Background()

	c.HandleEvent(ctx, Event{"Event": "DialEnd", "Linkedid": "ghost", "DialStatus": "ANSWER"})
	c.HandleEvent(ctx, Event{"Event": "Hangup", "Linkedid": "ghost"})

	if len(sink.records) != 0 {
		t.Error("unknown id must not emit a record")
	}
	if notifier.ended != 0 {
		t.Error("unknown id must not notify")
	}
	if len(c.ActiveCalls()) != 0 {
		t.Error("unknown id must not create a phantom call")
	}
}

func TestDuplicateDialBeginOverwrites(t *testing.T) {
	sink := &fakeSink{}
	c, _ := testCorrelator(sink, &fakeNotifier{})
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("X", "1001", "1002"))
	c.HandleEvent(ctx, dialBegin("X", "1001", "1003"))

	calls := c.ActiveCalls()
	if len(calls) != 1 {
		t.Fatalf("got %d active calls, want 1 (overwrite, not duplicate)", len(calls))
	}
	if calls[0].Destination != "1003" {
		t.Errorf("destination = %q, want the re-dial target 1003", calls[0].Destination)
	}
}

func TestSinkFailureDoesNotAbort(t *testing.T) {
	sink := &fakeSink{err: errors.New("storage unavailable")}
	notifier := &fakeNotifier{}
	c, _ := testCorrelator(sink, notifier)
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("X", "1001", "1002"))
	c.HandleEvent(ctx, Event{"Event": "Hangup", "Linkedid": "X"})

	// The side-channel notification still fires and the call is removed.
	if notifier.ended != 1 {
		t.Error("notification must fire even when the sink fails")
	}
	if len(c.ActiveCalls()) != 0 {
		t.Error("call must be removed even when the sink fails")
	}
}

func TestPeerAndRegistryStatus(t *testing.T) {
	notifier := &fakeNotifier{}
	c, _ := testCorrelator(&fakeSink{}, notifier)
	ctx := context.Background()

	c.HandleEvent(ctx, Event{"Event": "PeerStatus", "Peer": "PJSIP/1001", "PeerStatus": "Reachable"})
	c.HandleEvent(ctx, Event{"Event": "PeerStatus", "Peer": "PJSIP/1002", "PeerStatus": "Unreachable"})
	c.HandleEvent(ctx, Event{"Event": "Registry", "Username": "trunkuser", "Status": "Registered"})
	c.HandleEvent(ctx, Event{"Event": "Registry", "Domain": "sip.example.com", "Status": "Rejected"})

	if notifier.extStatus["1001"] != "online" {
		t.Errorf("1001 status = %q, want online", notifier.extStatus["1001"])
	}
	if notifier.extStatus["1002"] != "offline" {
		t.Errorf("1002 status = %q, want offline", notifier.extStatus["1002"])
	}
	if notifier.trunkStatus["trunkuser"] != "registered" {
		t.Errorf("trunkuser status = %q, want registered", notifier.trunkStatus["trunkuser"])
	}
	// Without a username the domain identifies the registration.
	if notifier.trunkStatus["sip.example.com"] != "unregistered" {
		t.Errorf("domain trunk status = %q, want unregistered", notifier.trunkStatus["sip.example.com"])
	}
}

func TestStaleSweep(t *testing.T) {
	sink := &fakeSink{}
	c, clock := testCorrelator(sink, &fakeNotifier{})
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("old", "1001", "1002"))
	*clock = clock.Add(3 * time.Hour)
	c.HandleEvent(ctx, dialBegin("fresh", "1003", "1004"))

	c.sweepStale()

	calls := c.ActiveCalls()
	if len(calls) != 1 || calls[0].ID != "fresh" {
		t.Errorf("sweep should evict only the stale call, got %v", calls)
	}
	if len(sink.records) != 0 {
		t.Error("sweep must not emit records for evicted calls")
	}
}

func TestActiveCallsOrdered(t *testing.T) {
	c, clock := testCorrelator(&fakeSink{}, &fakeNotifier{})
	ctx := context.Background()

	c.HandleEvent(ctx, dialBegin("first", "1001", "1002"))
	*clock = clock.Add(time.Second)
	c.HandleEvent(ctx, dialBegin("second", "1003", "1004"))

	calls := c.ActiveCalls()
	if len(calls) != 2 || calls[0].ID != "first" || calls[1].ID != "second" {
		t.Errorf("snapshot should be ordered by start time, got %v", calls)
	}
}

func TestRunStopsWithQueuedEvents(t *testing.T) {
	c, _ := testCorrelator(&fakeSink{}, &fakeNotifier{})

	q := newEventQueue(100)
	for i := 0; i < 50; i++ {
		q.Push(Event{"Event": "PeerStatus", "Peer": "PJSIP/1001", "PeerStatus": "Reachable"})
	}

	baseline := runtime.NumGoroutine()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, q)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The queue forwarder must exit too, even with events still pending.
	deadline := time.After(2 * time.Second)
	for runtime.NumGoroutine() > baseline {
		select {
		case <-deadline:
			t.Fatalf("forwarder goroutine still running with %d events queued", q.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
