package worker

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/metric"
	"github.com/skyfleet/flightlog/internal/model"
	"github.com/skyfleet/flightlog/internal/session"
)

type captureSender struct {
	mu      sync.Mutex
	results []model.ParseResult
}

func (c *captureSender) Send(r model.ParseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *captureSender) all() []model.ParseResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ParseResult(nil), c.results...)
}

// attBuffer builds a minimal DataFlash buffer: one schema record for "ATT"
// (type 42, "I" TimeUS) and the given timestamps as data records.
func attBuffer(timestamps ...uint32) []byte {
	rec := make([]byte, 89)
	rec[0], rec[1], rec[2] = 0xA3, 0x95, 128
	rec[3] = 42
	rec[4] = 7 // header(3) + I(4)
	copy(rec[5:9], "ATT")
	copy(rec[9:25], "I")
	copy(rec[25:89], "TimeUS")

	buf := rec
	for _, ts := range timestamps {
		data := []byte{0xA3, 0x95, 42, 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(data[3:], ts)
		buf = append(buf, data...)
	}
	return buf
}

func newTestWorker() (*Worker, *captureSender) {
	sender := &captureSender{}
	return New(4, sender, session.NewStore(), zap.NewNop(), metric.NewMetrics()), sender
}

func drain(w *Worker) []model.Update {
	var got []model.Update
	for {
		select {
		case u := <-w.Updates():
			got = append(got, u)
		default:
			return got
		}
	}
}

func TestLoadTypeBeforeParseIsNoOp(t *testing.T) {
	w, sender := newTestWorker()
	w.handle(Message{Action: ActionLoadType, Type: "ATT"})

	assert.Nil(t, w.bound)
	assert.Empty(t, sender.all())
	assert.Empty(t, drain(w))
}

func TestMalformedMessageDropped(t *testing.T) {
	w, sender := newTestWorker()
	w.handle(Message{})
	w.handle(Message{Action: "bogus"})

	assert.Nil(t, w.bound)
	assert.Empty(t, sender.all())
}

func TestDataflashDualFanout(t *testing.T) {
	w, sender := newTestWorker()
	w.handle(Message{Action: ActionParse, File: attBuffer(100, 200)})

	// (a) remote consumer got the full ParseResult once.
	results := sender.all()
	require.Len(t, results, 1)
	att := results[0]["ATT"]
	require.NotNil(t, att)
	assert.Equal(t, 2, att.RowCount())

	// (b) legacy UI channel got the type announcement.
	updates := drain(w)
	require.NotEmpty(t, updates)
	assert.Equal(t, model.UpdateTypes, updates[0].Kind)
	assert.Equal(t, []string{"ATT"}, updates[0].Types)

	// Worker is now bound for interactive use.
	require.NotNil(t, w.bound)
	w.handle(Message{Action: ActionLoadType, Type: "ATT[0]"})
	updates = drain(w)
	require.Len(t, updates, 1)
	assert.Equal(t, model.UpdateColumns, updates[0].Kind)
	assert.Equal(t, "ATT", updates[0].MessageType)

	snap := w.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.FilesParsed)
	assert.Equal(t, int64(2), snap.RecordsDecoded)
	assert.Equal(t, int64(2), snap.MessageTypes["ATT"])
}

func TestTlogRouting(t *testing.T) {
	w, sender := newTestWorker()
	// One MAVLink v1 heartbeat-ish frame: STX, len=1, seq, sys, comp, id=0.
	frame := []byte{0xFE, 0x01, 0x00, 0x01, 0x01, 0x00, 0xAA, 0x10, 0x20}
	w.handle(Message{Action: ActionParse, File: frame, IsTlog: true})

	assert.Empty(t, sender.all(), "tlog parses never reach the remote consumer")
	updates := drain(w)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"MAV_0"}, updates[0].Types)
	require.NotNil(t, w.bound)
}

func TestDjiRouting(t *testing.T) {
	w, sender := newTestWorker()
	rec := []byte{0x55, 0x06, 0x01, 0x07, 0x00, 0x00}
	w.handle(Message{Action: ActionParse, File: rec, IsDji: true})

	assert.Empty(t, sender.all())
	updates := drain(w)
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"DJI_7"}, updates[0].Types)
}

func TestRebindOnSecondParse(t *testing.T) {
	w, _ := newTestWorker()
	w.handle(Message{Action: ActionParse, File: attBuffer(1)})
	first := w.bound
	w.handle(Message{Action: ActionParse, File: attBuffer(2)})
	assert.NotSame(t, first, w.bound)
}

func TestParseMovesSessionToReady(t *testing.T) {
	sender := &captureSender{}
	sessions := session.NewStore()
	w := New(4, sender, sessions, zap.NewNop(), metric.NewMetrics())

	sess := sessions.Create("flight.bin", "dataflash", 10)
	w.handle(Message{Action: ActionParse, File: attBuffer(1), SessionID: sess.ID})

	got, ok := sessions.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, session.StateReady, got.State)
}

func TestParseMovesSessionToFailed(t *testing.T) {
	sender := &captureSender{}
	sessions := session.NewStore()
	w := New(4, sender, sessions, zap.NewNop(), metric.NewMetrics())

	// No sync markers anywhere: nothing learnable, nothing decodable.
	sess := sessions.Create("garbage.bin", "dataflash", 4)
	w.handle(Message{Action: ActionParse, File: []byte{1, 2, 3, 4}, SessionID: sess.ID})

	got, ok := sessions.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, session.StateFailed, got.State)
}

func TestTlogParseMovesSessionToReady(t *testing.T) {
	sender := &captureSender{}
	sessions := session.NewStore()
	w := New(4, sender, sessions, zap.NewNop(), metric.NewMetrics())

	sess := sessions.Create("flight.tlog", "tlog", 9)
	frame := []byte{0xFE, 0x01, 0x00, 0x01, 0x01, 0x00, 0xAA, 0x10, 0x20}
	w.handle(Message{Action: ActionParse, File: frame, IsTlog: true, SessionID: sess.ID})

	got, ok := sessions.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, session.StateReady, got.State)
}

func TestRunServicesInbox(t *testing.T) {
	w, sender := newTestWorker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Inbox() <- Message{Action: ActionParse, File: attBuffer(5)}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.all()) == 1 {
			u := <-w.Updates()
			assert.Equal(t, model.UpdateTypes, u.Kind)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("parse result not delivered before deadline")
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "GPS", typeName("GPS[0]"))
	assert.Equal(t, "ATT", typeName("ATT"))
	assert.Equal(t, "", typeName("[1]"))
}
