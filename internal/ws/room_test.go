package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shopchat/internal/models"
	"shopchat/internal/store"
)

func testIdentity(id, name string) models.Identity {
	return models.Identity{UserID: id, Username: name}
}

func testSession(id, name string) *Session {
	return &Session{Identity: testIdentity(id, name), send: make(chan []byte, 256)}
}

// recvEvent reads the next event from a session's send channel and decodes it.
func recvEvent(t *testing.T, s *Session) map[string]json.RawMessage {
	t.Helper()
	select {
	case data, ok := <-s.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var evt map[string]json.RawMessage
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("invalid event %q: %v", data, err)
		}
		return evt
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no event received")
		return nil
	}
}

func eventType(t *testing.T, evt map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	if raw, ok := evt["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	return typ
}

func assertNoEvent(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data, ok := <-s.send:
		if ok {
			t.Fatalf("unexpected event: %s", data)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func startRoom(key string, msgLog store.MessageLog) *RoomActor {
	r := newRoomActor(key, msgLog, 50, 14*24*time.Hour)
	go r.run()
	return r
}

func connectAndDrainHistory(t *testing.T, r *RoomActor, s *Session) map[string]json.RawMessage {
	t.Helper()
	r.connect(s)
	evt := recvEvent(t, s)
	if got := eventType(t, evt); got != EventHistory {
		t.Fatalf("first event = %s, want %s", got, EventHistory)
	}
	return evt
}

func historyMessages(t *testing.T, evt map[string]json.RawMessage) []models.ChatMessage {
	t.Helper()
	var msgs []models.ChatMessage
	if err := json.Unmarshal(evt["messages"], &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	return msgs
}

func TestRoomActor_BroadcastToAllSessions(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("shop-a|guest:g1", msgLog)

	a := testSession("u1", "alice")
	b := testSession("u2", "bob")
	connectAndDrainHistory(t, r, a)
	connectAndDrainHistory(t, r, b)

	r.receive(a, []byte(`{"type":"MESSAGE","content":"hello"}`))

	for _, s := range []*Session{a, b} {
		evt := recvEvent(t, s)
		if got := eventType(t, evt); got != EventMessage {
			t.Fatalf("event type = %s, want %s", got, EventMessage)
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(evt["message"], &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.Content != "hello" {
			t.Errorf("content = %q, want hello", msg.Content)
		}
		if msg.ID == "" {
			t.Error("message id not generated")
		}
		if msg.SenderID != "u1" || msg.SenderName != "alice" {
			t.Errorf("sender = %s/%s, want u1/alice", msg.SenderID, msg.SenderName)
		}
	}

	persisted, err := msgLog.Recent(context.Background(), "shop-a|guest:g1", 50, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(persisted) != 1 || persisted[0].Content != "hello" {
		t.Fatalf("log = %+v, want exactly one hello entry", persisted)
	}
}

func TestRoomActor_DeliveryOrder(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-order", msgLog)

	a := testSession("u1", "alice")
	b := testSession("u2", "bob")
	connectAndDrainHistory(t, r, a)
	connectAndDrainHistory(t, r, b)

	contents := []string{"one", "two", "three", "four"}
	for _, c := range contents {
		r.receive(a, []byte(`{"type":"MESSAGE","content":"`+c+`"}`))
	}

	for _, s := range []*Session{a, b} {
		var prevTs int64
		for i, want := range contents {
			evt := recvEvent(t, s)
			var msg models.ChatMessage
			_ = json.Unmarshal(evt["message"], &msg)
			if msg.Content != want {
				t.Fatalf("message %d = %q, want %q", i, msg.Content, want)
			}
			if msg.Timestamp <= prevTs {
				t.Fatalf("timestamp %d not strictly increasing: %d after %d", i, msg.Timestamp, prevTs)
			}
			prevTs = msg.Timestamp
		}
	}
}

func TestRoomActor_RoomIsolation(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r1 := startRoom("room-1", msgLog)
	r2 := startRoom("room-2", msgLog)

	a := testSession("u1", "alice")
	b := testSession("u2", "bob")
	connectAndDrainHistory(t, r1, a)
	connectAndDrainHistory(t, r2, b)

	r1.receive(a, []byte(`{"type":"MESSAGE","content":"only room 1"}`))

	recvEvent(t, a)
	assertNoEvent(t, b)

	other, _ := msgLog.Recent(context.Background(), "room-2", 50, 0)
	if len(other) != 0 {
		t.Errorf("room-2 log = %+v, want empty", other)
	}
}

func TestRoomActor_HistoryCapAndOrder(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	now := time.Now().UnixMilli()
	for i := 0; i < 60; i++ {
		_ = msgLog.Append(context.Background(), &models.ChatMessage{
			RoomKey:    "room-h",
			Timestamp:  now + int64(i),
			ID:         "m",
			SenderID:   "u1",
			SenderName: "alice",
			Content:    "n",
			Type:       models.MessageText,
		})
	}

	r := startRoom("room-h", msgLog)
	s := testSession("u2", "bob")
	evt := connectAndDrainHistory(t, r, s)
	msgs := historyMessages(t, evt)

	if len(msgs) != 50 {
		t.Fatalf("history length = %d, want 50", len(msgs))
	}
	if msgs[0].Timestamp != now+10 || msgs[49].Timestamp != now+59 {
		t.Errorf("history range = [%d, %d], want [%d, %d]",
			msgs[0].Timestamp, msgs[49].Timestamp, now+10, now+59)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp <= msgs[i-1].Timestamp {
			t.Fatalf("history not in chronological order at %d", i)
		}
	}
}

func TestRoomActor_RetentionSweepOnConnect(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	now := time.Now()
	old := &models.ChatMessage{
		RoomKey: "room-r", Timestamp: now.Add(-15 * 24 * time.Hour).UnixMilli(),
		ID: "old", SenderID: "u1", SenderName: "alice", Content: "expired", Type: models.MessageText,
	}
	fresh := &models.ChatMessage{
		RoomKey: "room-r", Timestamp: now.Add(-1 * time.Hour).UnixMilli(),
		ID: "new", SenderID: "u1", SenderName: "alice", Content: "kept", Type: models.MessageText,
	}
	_ = msgLog.Append(context.Background(), old)
	_ = msgLog.Append(context.Background(), fresh)

	r := startRoom("room-r", msgLog)
	s := testSession("u2", "bob")
	evt := connectAndDrainHistory(t, r, s)
	msgs := historyMessages(t, evt)

	if len(msgs) != 1 || msgs[0].ID != "new" {
		t.Fatalf("history = %+v, want only the fresh message", msgs)
	}
	left, _ := msgLog.Recent(context.Background(), "room-r", 50, 0)
	if len(left) != 1 || left[0].ID != "new" {
		t.Fatalf("log after sweep = %+v, want only the fresh message", left)
	}
}

func TestRoomActor_MalformedPayload(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-m", msgLog)

	a := testSession("u1", "alice")
	b := testSession("u2", "bob")
	connectAndDrainHistory(t, r, a)
	connectAndDrainHistory(t, r, b)

	r.receive(a, []byte(`{not json`))

	evt := recvEvent(t, a)
	if _, ok := evt["error"]; !ok {
		t.Fatalf("sender event = %v, want error", evt)
	}
	assertNoEvent(t, b)

	// Actor still serves traffic after the bad payload.
	r.receive(b, []byte(`{"type":"MESSAGE","content":"still alive"}`))
	recvEvent(t, a)
	recvEvent(t, b)
}

type failingLog struct {
	*store.MemoryMessageLog
}

func (f *failingLog) Append(ctx context.Context, msg *models.ChatMessage) error {
	return errors.New("store unavailable")
}

func TestRoomActor_PersistFailureNotBroadcast(t *testing.T) {
	r := startRoom("room-f", &failingLog{store.NewMemoryMessageLog()})

	a := testSession("u1", "alice")
	b := testSession("u2", "bob")
	connectAndDrainHistory(t, r, a)
	connectAndDrainHistory(t, r, b)

	r.receive(a, []byte(`{"type":"MESSAGE","content":"doomed"}`))

	evt := recvEvent(t, a)
	if _, ok := evt["error"]; !ok {
		t.Fatalf("sender event = %v, want error", evt)
	}
	assertNoEvent(t, b)
}

func TestRoomActor_DisconnectIdempotent(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-d", msgLog)

	s := testSession("u1", "alice")
	connectAndDrainHistory(t, r, s)
	if r.Online() != 1 {
		t.Fatalf("Online() = %d, want 1", r.Online())
	}

	r.disconnect(s)
	r.disconnect(s)
	time.Sleep(20 * time.Millisecond)

	if r.Online() != 0 {
		t.Errorf("Online() after disconnect = %d, want 0", r.Online())
	}
}

func TestRoomActor_SlowSessionDropped(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-s", msgLog)

	a := testSession("u1", "alice")
	connectAndDrainHistory(t, r, a)

	// A session whose buffer is already full cannot accept the broadcast.
	slow := &Session{Identity: testIdentity("u2", "bob"), send: make(chan []byte)}
	r.connect(slow)
	time.Sleep(20 * time.Millisecond)

	r.receive(a, []byte(`{"type":"MESSAGE","content":"hi"}`))

	// The healthy session still gets the message.
	evt := recvEvent(t, a)
	if got := eventType(t, evt); got != EventMessage {
		t.Fatalf("event type = %s, want %s", got, EventMessage)
	}
	time.Sleep(20 * time.Millisecond)
	if r.Online() != 1 {
		t.Errorf("Online() = %d, want 1 after dropping slow session", r.Online())
	}
}

func TestRoomActor_EvictedSessionFramesIgnored(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-ev", msgLog)

	a := testSession("u1", "alice")
	connectAndDrainHistory(t, r, a)
	slow := &Session{Identity: testIdentity("u2", "bob"), send: make(chan []byte)}
	r.connect(slow)
	time.Sleep(20 * time.Millisecond)

	// The first broadcast evicts the slow session.
	r.receive(a, []byte(`{"type":"MESSAGE","content":"hi"}`))
	recvEvent(t, a)

	// In-flight frames from the evicted session are dropped, malformed or not:
	// no error reply on the closed channel, no broadcast, no persistence.
	r.receive(slow, []byte(`{not json`))
	r.receive(slow, []byte(`{"type":"MESSAGE","content":"stale"}`))
	assertNoEvent(t, a)

	// The actor keeps serving the healthy session.
	r.receive(a, []byte(`{"type":"MESSAGE","content":"still here"}`))
	evt := recvEvent(t, a)
	if got := eventType(t, evt); got != EventMessage {
		t.Fatalf("event type = %s, want %s", got, EventMessage)
	}
	persisted, _ := msgLog.Recent(context.Background(), "room-ev", 50, 0)
	if len(persisted) != 2 {
		t.Fatalf("persisted = %d entries, want 2 (stale message dropped)", len(persisted))
	}
}

func TestRoomActor_TimestampTieBreak(t *testing.T) {
	r := newRoomActor("room-t", store.NewMemoryMessageLog(), 50, 14*24*time.Hour)

	// Pin the cursor ahead of the wall clock to force collisions.
	base := time.Now().UnixMilli() + 10_000
	r.lastTs = base

	ts1 := r.nextTimestamp()
	ts2 := r.nextTimestamp()
	if ts1 != base+1 || ts2 != base+2 {
		t.Errorf("tie-break timestamps = %d, %d, want %d, %d", ts1, ts2, base+1, base+2)
	}
}

func TestRoomActor_TimestampsDistinctUnderBurst(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-b", msgLog)

	a := testSession("u1", "alice")
	connectAndDrainHistory(t, r, a)

	for i := 0; i < 10; i++ {
		r.receive(a, []byte(`{"type":"MESSAGE","content":"burst"}`))
	}
	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		evt := recvEvent(t, a)
		var msg models.ChatMessage
		_ = json.Unmarshal(evt["message"], &msg)
		if seen[msg.Timestamp] {
			t.Fatalf("duplicate timestamp %d", msg.Timestamp)
		}
		seen[msg.Timestamp] = true
	}

	persisted, _ := msgLog.Recent(context.Background(), "room-b", 50, 0)
	if len(persisted) != 10 {
		t.Fatalf("persisted = %d entries, want 10", len(persisted))
	}
}

func TestRoomActor_ProductSnapshotRoundTrip(t *testing.T) {
	msgLog := store.NewMemoryMessageLog()
	r := startRoom("room-p", msgLog)

	a := testSession("u1", "alice")
	connectAndDrainHistory(t, r, a)

	payload := `{"type":"MESSAGE","content":"is this available?","messageType":"TEXT","product":{"id":"p1","name":"Lamp","image":"img/p1.jpg","price":19.5}}`
	r.receive(a, []byte(payload))
	recvEvent(t, a)

	persisted, _ := msgLog.Recent(context.Background(), "room-p", 50, 0)
	if len(persisted) != 1 {
		t.Fatalf("persisted = %d entries, want 1", len(persisted))
	}
	p := persisted[0].Product
	if p == nil || p.ID != "p1" || p.Name != "Lamp" || p.Price != 19.5 {
		t.Errorf("product snapshot = %+v, want p1/Lamp/19.5", p)
	}
}
