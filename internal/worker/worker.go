// Package worker is the isolated execution context that receives file
// buffers plus a format discriminator, routes them to the correct parser
// family, and fans DataFlash buffers out to both the universal decoder (for
// the remote consumer) and the legacy incremental parser (for the live UI).
package worker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/dataflash"
	"github.com/skyfleet/flightlog/internal/dji"
	"github.com/skyfleet/flightlog/internal/mavlink"
	"github.com/skyfleet/flightlog/internal/metric"
	"github.com/skyfleet/flightlog/internal/model"
	"github.com/skyfleet/flightlog/internal/session"
)

// Inbound protocol actions.
const (
	ActionParse    = "parse"
	ActionLoadType = "loadType"
)

// Message is one inbound protocol message. Action selects the operation:
// parse carries the file buffer, discriminators and the session it belongs
// to, loadType carries the requested message type.
type Message struct {
	Action    string
	File      []byte
	IsTlog    bool
	IsDji     bool
	Type      string
	SessionID string
}

// StreamParser is the dispatch contract every parser family satisfies.
// Parse feeds a whole buffer; LoadType forwards a type-selection request to
// the bound instance.
type StreamParser interface {
	Parse(buf []byte)
	LoadType(name string)
}

// ResultSender ships a finished ParseResult to the remote consumer.
type ResultSender interface {
	Send(result model.ParseResult)
}

// Worker processes one message at a time on a single goroutine. There is
// no shared mutable state across the boundary: messages arrive by channel
// and updates leave by channel. The bound parser instance is owned
// exclusively by the worker goroutine.
type Worker struct {
	inbox    chan Message
	ui       chan model.Update
	bound    StreamParser
	sender   ResultSender
	sessions *session.Store
	log      *zap.Logger
	metrics  *metric.Metrics
	stats    *Stats
}

// New creates a worker. The inbox holds up to queue pending messages;
// senders must treat a full inbox as the worker being busy. Sessions are
// transitioned out of the parsing state as each parse completes.
func New(queue int, sender ResultSender, sessions *session.Store, log *zap.Logger, m *metric.Metrics) *Worker {
	return &Worker{
		inbox:    make(chan Message, queue),
		ui:       make(chan model.Update, 256),
		sender:   sender,
		sessions: sessions,
		log:      log,
		metrics:  m,
		stats:    NewStats(),
	}
}

// Inbox is where protocol messages are submitted.
func (w *Worker) Inbox() chan<- Message {
	return w.inbox
}

// Updates is the interactive UI channel.
func (w *Worker) Updates() <-chan model.Update {
	return w.ui
}

// Stats exposes the in-memory cumulative counters.
func (w *Worker) Stats() *Stats {
	return w.stats
}

// Run services the inbox until ctx is cancelled. Parsing is synchronous and
// CPU-bound: a parse message is processed to completion before the next
// message, including loadType requests, is looked at.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.inbox:
			w.handle(msg)
		}
	}
}

func (w *Worker) handle(msg Message) {
	switch msg.Action {
	case ActionParse:
		w.handleParse(msg)
	case ActionLoadType:
		w.handleLoadType(msg)
	default:
		// Malformed or action-less message: dropped with a diagnostic,
		// never a crash.
		w.log.Warn("dropping malformed worker message", zap.String("action", msg.Action))
		w.metrics.MessagesIn.WithLabelValues("unknown", "dropped").Inc()
	}
}

func (w *Worker) handleParse(msg Message) {
	switch {
	case msg.IsTlog:
		w.metrics.MessagesIn.WithLabelValues(ActionParse, "tlog").Inc()
		w.metrics.ParsesTotal.WithLabelValues("tlog").Inc()
		w.bound = mavlink.NewParser(w.ui, w.log)
		w.bound.Parse(msg.File)
		w.finish(msg.SessionID, session.StateReady)

	case msg.IsDji:
		w.metrics.MessagesIn.WithLabelValues(ActionParse, "dji").Inc()
		w.metrics.ParsesTotal.WithLabelValues("dji").Inc()
		w.bound = dji.NewParser(w.ui, w.log)
		w.bound.Parse(msg.File)
		w.finish(msg.SessionID, session.StateReady)

	default:
		w.metrics.MessagesIn.WithLabelValues(ActionParse, "dataflash").Inc()
		w.metrics.ParsesTotal.WithLabelValues("dataflash").Inc()
		w.finish(msg.SessionID, w.parseDataflash(msg.File))
	}
}

// parseDataflash performs the dual fan-out: the same immutable buffer is
// handed to the legacy incremental parser (UI channel, unchanged data flow)
// and to the universal two-pass decoder whose result leaves on a detached
// fire-and-forget transmission. Each consumer owns its own registry and
// materializer instances; neither mutates the buffer.
func (w *Worker) parseDataflash(buf []byte) string {
	legacy := dataflash.NewLegacyParser(w.ui, w.log)
	w.bound = legacy
	legacy.Parse(buf)

	result, st := dataflash.NewParser(w.log).Parse(buf)
	w.stats.RecordParse(result, st)
	w.metrics.ParseDuration.Observe(st.Duration.Seconds())
	w.metrics.RecordsDecoded.Add(float64(st.RecordsDecoded))
	w.metrics.RecordsDropped.WithLabelValues("truncated").Add(float64(st.DroppedTruncated))
	w.metrics.RecordsDropped.WithLabelValues("unknown_type").Add(float64(st.DroppedUnknown))

	w.sender.Send(result)

	if st.Formats == 0 && st.RecordsDecoded == 0 {
		return session.StateFailed
	}
	return session.StateReady
}

// finish moves the upload session out of the parsing state.
func (w *Worker) finish(sessionID, state string) {
	if sessionID == "" || w.sessions == nil {
		return
	}
	w.sessions.SetState(sessionID, state)
}

func (w *Worker) handleLoadType(msg Message) {
	if w.bound == nil {
		// Ignore-until-ready guard: a loadType before any parse is a
		// no-op, not a protocol violation.
		w.log.Warn("loadType received with no bound parser", zap.String("type", msg.Type))
		w.metrics.MessagesIn.WithLabelValues(ActionLoadType, "unbound").Inc()
		return
	}
	w.metrics.MessagesIn.WithLabelValues(ActionLoadType, "ok").Inc()
	w.bound.LoadType(typeName(msg.Type))
}

// typeName strips the bracketed instance suffix the UI appends to
// multi-instance types, e.g. "GPS[0]" -> "GPS".
func typeName(t string) string {
	if i := strings.Index(t, "["); i >= 0 {
		return t[:i]
	}
	return t
}
