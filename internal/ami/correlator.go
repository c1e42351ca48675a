package ami

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lq216/gonopbx/internal/database/models"
)

// Call states tracked by the correlator.
const (
	StateRinging   = "ringing"
	StateConnected = "connected"
	StateBusy      = "busy"
)

// interestingEvents are the event names that trigger an observer push
// with the current in-flight call snapshot.
var interestingEvents = map[string]bool{
	"PeerStatus":  true,
	"Registry":    true,
	"Newchannel":  true,
	"Hangup":      true,
	"NewCallerid": true,
	"DialBegin":   true,
	"DialEnd":     true,
}

// ActiveCall is one in-flight call, keyed by the engine's Linkedid. The
// table is volatile: nothing survives a process restart.
type ActiveCall struct {
	ID          string     `json:"id"`
	Channel     string     `json:"channel"`
	DestChannel string     `json:"dest_channel"`
	Caller      string     `json:"caller"`
	CallerName  string     `json:"caller_name"`
	Destination string     `json:"destination"`
	DestName    string     `json:"dest_name"`
	State       string     `json:"state"`
	StartTime   time.Time  `json:"start_time"`
	AnswerTime  *time.Time `json:"answer_time"`
}

// RecordSink persists finalized call records.
type RecordSink interface {
	Create(ctx context.Context, record *models.CDR) error
}

// Notifier publishes call and status notifications. Implementations are
// fire-and-forget; delivery is not guaranteed.
type Notifier interface {
	CallStarted(caller, destination string)
	CallAnswered(caller, destination string)
	CallEnded(caller, destination string, duration int, disposition string)
	ExtensionStatus(extension, status string)
	TrunkStatus(name, status string)
}

// Broadcaster pushes call snapshots to live observers. Per-observer
// failure isolation is the implementation's responsibility.
type Broadcaster interface {
	Broadcast(eventName string, calls []ActiveCall)
}

// Correlator folds the ordered AMI event stream into per-call state and
// emits a call record when each call terminates. All table mutations are
// serialized under one mutex; the processing loop is single-threaded but
// ActiveCalls is also read from API handlers.
type Correlator struct {
	sink        RecordSink
	notifier    Notifier
	broadcaster Broadcaster
	logger      *slog.Logger

	mu    sync.Mutex
	calls map[string]*ActiveCall

	now        func() time.Time
	staleAfter time.Duration
}

// NewCorrelator creates a correlator. notifier and broadcaster may be nil.
func NewCorrelator(sink RecordSink, notifier Notifier, broadcaster Broadcaster, logger *slog.Logger) *Correlator {
	return &Correlator{
		sink:        sink,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
		calls:       make(map[string]*ActiveCall),
		now:         time.Now,
		staleAfter:  2 * time.Hour,
	}
}

// Run consumes the queue until it is closed, with a periodic sweep for
// calls orphaned by a connection loss.
func (c *Correlator) Run(ctx context.Context, queue *eventQueue) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	events := make(chan Event)
	go func() {
		defer close(events)
		for {
			e, ok := queue.Pop()
			if !ok {
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepStale()
		case e, ok := <-events:
			if !ok {
				return
			}
			c.HandleEvent(ctx, e)
		}
	}
}

// HandleEvent processes one event in arrival order.
func (c *Correlator) HandleEvent(ctx context.Context, event Event) {
	name := event.Name()

	switch name {
	case "DialBegin":
		c.handleDialBegin(event)
	case "DialEnd":
		c.handleDialEnd(event)
	case "Hangup":
		c.handleHangup(ctx, event)
	case "PeerStatus":
		c.handlePeerStatus(event)
	case "Registry":
		c.handleRegistry(event)
	}

	if interestingEvents[name] && c.broadcaster != nil {
		c.broadcaster.Broadcast(name, c.ActiveCalls())
	}
}

// handleDialBegin creates the call entry. A duplicate Linkedid (re-dial
// within the same call) overwrites the existing entry in place rather
// than creating a second one.
func (c *Correlator) handleDialBegin(event Event) {
	linkedID := event.Get("Linkedid")
	if linkedID == "" {
		return
	}

	call := &ActiveCall{
		ID:          linkedID,
		Channel:     event.Get("Channel"),
		DestChannel: event.Get("DestChannel"),
		Caller:      event.Get("CallerIDNum"),
		CallerName:  event.Get("CallerIDName"),
		Destination: event.Get("DestCallerIDNum"),
		DestName:    event.Get("DestCallerIDName"),
		State:       StateRinging,
		StartTime:   c.now(),
	}

	c.mu.Lock()
	c.calls[linkedID] = call
	c.mu.Unlock()

	c.logger.Info("call started", "caller", call.Caller, "destination", call.Destination, "linked_id", linkedID)
	if c.notifier != nil {
		c.notifier.CallStarted(call.Caller, call.Destination)
	}
}

// handleDialEnd resolves the dial outcome. Unknown ids are ignored.
func (c *Correlator) handleDialEnd(event Event) {
	linkedID := event.Get("Linkedid")
	status := event.Get("DialStatus")

	c.mu.Lock()
	call, ok := c.calls[linkedID]
	if !ok {
		c.mu.Unlock()
		return
	}

	var notifyAnswered bool
	if status == "ANSWER" {
		now := c.now()
		call.State = StateConnected
		call.AnswerTime = &now
		notifyAnswered = true
	} else {
		call.State = strings.ToLower(status)
	}
	caller, destination := call.Caller, call.Destination
	c.mu.Unlock()

	if notifyAnswered {
		c.logger.Info("call answered", "linked_id", linkedID)
		if c.notifier != nil {
			c.notifier.CallAnswered(caller, destination)
		}
	} else {
		c.logger.Info("call failed", "linked_id", linkedID, "status", status)
	}
}

// handleHangup finalizes the call: compute durations, map the last state
// to a disposition, emit the record, drop the entry. A sink failure is
// logged and must not prevent the notification or the removal.
func (c *Correlator) handleHangup(ctx context.Context, event Event) {
	linkedID := event.Get("Linkedid")

	c.mu.Lock()
	call, ok := c.calls[linkedID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.calls, linkedID)
	c.mu.Unlock()

	endTime := c.now()

	duration := 0
	if !call.StartTime.IsZero() {
		duration = int(endTime.Sub(call.StartTime).Seconds())
	}
	billsec := 0
	if call.AnswerTime != nil {
		billsec = int(endTime.Sub(*call.AnswerTime).Seconds())
	}

	disposition := dispositionFor(call.State)

	record := &models.CDR{
		CallDate:    call.StartTime,
		CLID:        `"` + call.CallerName + `" <` + call.Caller + `>`,
		Src:         call.Caller,
		Dst:         call.Destination,
		DContext:    "internal",
		Channel:     call.Channel,
		DstChannel:  call.DestChannel,
		LastApp:     "Dial",
		LastData:    call.Destination,
		Duration:    duration,
		BillSec:     billsec,
		Disposition: disposition,
		AMAFlags:    3,
		UniqueID:    linkedID,
	}

	if err := c.sink.Create(ctx, record); err != nil {
		c.logger.Error("saving call record failed", "linked_id", linkedID, "error", err)
	}

	c.logger.Info("call ended", "linked_id", linkedID, "duration", duration, "disposition", disposition)
	if c.notifier != nil {
		c.notifier.CallEnded(call.Caller, call.Destination, duration, disposition)
	}
}

func dispositionFor(state string) string {
	switch state {
	case StateConnected:
		return "ANSWERED"
	case StateRinging:
		return "NO ANSWER"
	case StateBusy:
		return "BUSY"
	default:
		return strings.ToUpper(state)
	}
}

func (c *Correlator) handlePeerStatus(event Event) {
	if c.notifier == nil {
		return
	}
	peer := event.Get("Peer") // e.g. "PJSIP/1001"
	ext := peer
	if idx := strings.LastIndexByte(peer, '/'); idx >= 0 {
		ext = peer[idx+1:]
	}
	status := "offline"
	if event.Get("PeerStatus") == "Reachable" {
		status = "online"
	}
	c.notifier.ExtensionStatus(ext, status)
}

func (c *Correlator) handleRegistry(event Event) {
	if c.notifier == nil {
		return
	}
	name := event.Get("Username")
	if name == "" {
		name = event.Get("Domain")
	}
	status := "unregistered"
	if event.Get("Status") == "Registered" {
		status = "registered"
	}
	c.notifier.TrunkStatus(name, status)
}

// ActiveCalls returns a snapshot of in-flight calls ordered by start time.
func (c *Correlator) ActiveCalls() []ActiveCall {
	c.mu.Lock()
	defer c.mu.Unlock()

	calls := make([]ActiveCall, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, *call)
	}
	sort.Slice(calls, func(i, j int) bool {
		if calls[i].StartTime.Equal(calls[j].StartTime) {
			return calls[i].ID < calls[j].ID
		}
		return calls[i].StartTime.Before(calls[j].StartTime)
	})
	return calls
}

// ActiveCallCount returns the number of in-flight calls.
func (c *Correlator) ActiveCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// sweepStale evicts calls orphaned by a connection loss. No record is
// emitted for them; the hangup that would have finalized them was lost.
func (c *Correlator) sweepStale() {
	cutoff := c.now().Add(-c.staleAfter)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, call := range c.calls {
		if call.StartTime.Before(cutoff) {
			delete(c.calls, id)
			c.logger.Warn("evicting stale call", "linked_id", id, "start_time", call.StartTime)
		}
	}
}
