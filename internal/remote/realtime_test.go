package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/models"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRealtimeServer struct {
	joins      chan phxMessage
	heartbeats chan struct{}
	status     string
	frames     []string
}

func (s *fakeRealtimeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var join phxMessage
	if err := json.Unmarshal(data, &join); err != nil {
		return
	}
	s.joins <- join

	reply := phxMessage{
		Topic:   join.Topic,
		Event:   eventReply,
		Ref:     join.Ref,
		Payload: mustJSON(map[string]any{"status": s.status, "response": map[string]any{}}),
	}
	if err := writeMessage(ctx, conn, reply); err != nil {
		return
	}
	for _, f := range s.frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			return
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg phxMessage
		if json.Unmarshal(data, &msg) == nil && msg.Event == eventHB {
			select {
			case s.heartbeats <- struct{}{}:
			default:
			}
		}
	}
}

func changeFrame(topic, kind, record, old string) string {
	return `{"topic":"` + topic + `","event":"postgres_changes","ref":null,"payload":{"data":{"type":"` + kind +
		`","table":"gold_items","record":` + record + `,"old_record":` + old + `}}}`
}

func TestRealtimeSubscribe(t *testing.T) {
	topic := TopicFor(models.TableItems)
	fake := &fakeRealtimeServer{
		joins:      make(chan phxMessage, 1),
		heartbeats: make(chan struct{}, 1),
		status:     "ok",
		frames: []string{
			changeFrame(topic, "INSERT", `{"id":"i1","title":"Ring"}`, `null`),
			`{not json`,
			`{"topic":"realtime:other-changes","event":"postgres_changes","payload":{}}`,
			changeFrame(topic, "UPDATE", `{"id":"i1","title":"Ring 2"}`, `{"id":"i1"}`),
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rt := NewRealtime(RealtimeURLFor(srv.URL), "anon", 20*time.Millisecond, nil)
	changes := make(chan domain.Change, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := rt.Subscribe(ctx, models.TableItems, func(c domain.Change) { changes <- c })
	require.NoError(t, err)

	join := <-fake.joins
	assert.Equal(t, "realtime:gold-items-changes", join.Topic)
	assert.Equal(t, eventJoin, join.Event)
	assert.Contains(t, string(join.Payload), `"table":"gold_items"`)

	first := <-changes
	assert.Equal(t, domain.ChangeInsert, first.Kind)
	assert.Equal(t, models.TableItems, first.Table)
	assert.JSONEq(t, `{"id":"i1","title":"Ring"}`, string(first.New))
	assert.Nil(t, first.Old)

	second := <-changes
	assert.Equal(t, domain.ChangeUpdate, second.Kind)
	assert.JSONEq(t, `{"id":"i1"}`, string(second.Old))

	select {
	case <-fake.heartbeats:
	case <-ctx.Done():
		t.Fatal("no heartbeat received")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}

func TestRealtimeJoinRejected(t *testing.T) {
	fake := &fakeRealtimeServer{
		joins:      make(chan phxMessage, 1),
		heartbeats: make(chan struct{}, 1),
		status:     "error",
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	rt := NewRealtime(RealtimeURLFor(srv.URL), "anon", time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := rt.Subscribe(ctx, models.TableReviews, func(domain.Change) {})
	assert.ErrorIs(t, err, domain.ErrRemote)
}

func TestDecodeChange(t *testing.T) {
	topic := TopicFor(models.TableBookings)

	t.Run("Delete", func(t *testing.T) {
		frame := `{"topic":"` + topic + `","event":"postgres_changes","payload":{"data":{"type":"DELETE","record":null,"old_record":{"id":"b1"}}}}`
		change, ok, err := decodeChange([]byte(frame), topic, models.TableBookings)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.ChangeDelete, change.Kind)
		assert.Nil(t, change.New)
		assert.JSONEq(t, `{"id":"b1"}`, string(change.Old))
	})

	t.Run("IgnoresReplies", func(t *testing.T) {
		frame := `{"topic":"` + topic + `","event":"phx_reply","payload":{"status":"ok"}}`
		_, ok, err := decodeChange([]byte(frame), topic, models.TableBookings)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ChannelError", func(t *testing.T) {
		frame := `{"topic":"` + topic + `","event":"phx_error","payload":{}}`
		_, ok, err := decodeChange([]byte(frame), topic, models.TableBookings)
		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("UnknownType", func(t *testing.T) {
		frame := `{"topic":"` + topic + `","event":"postgres_changes","payload":{"data":{"type":"TRUNCATE"}}}`
		_, _, err := decodeChange([]byte(frame), topic, models.TableBookings)
		assert.Error(t, err)
	})
}
