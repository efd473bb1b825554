package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/domain"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

const (
	eventJoin     = "phx_join"
	eventReply    = "phx_reply"
	eventError    = "phx_error"
	eventClose    = "phx_close"
	eventHB       = "heartbeat"
	eventPGChange = "postgres_changes"
)

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type phxReply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type pgChangePayload struct {
	Data struct {
		Type      string          `json:"type"`
		Table     string          `json:"table"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

// Realtime subscribes to table changes over the hosted database's websocket
// change feed. Each subscription owns its own connection and channel topic.
type Realtime struct {
	url       string
	apiKey    string
	heartbeat time.Duration
	logger    *zerolog.Logger
	ref       atomic.Uint64
}

func NewRealtime(rawURL, apiKey string, heartbeat time.Duration, logger *zerolog.Logger) *Realtime {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "realtime").Logger()
	return &Realtime{url: rawURL, apiKey: apiKey, heartbeat: heartbeat, logger: &l}
}

// TopicFor is the channel topic used for a table subscription.
func TopicFor(table string) string {
	return "realtime:" + strings.ReplaceAll(table, "_", "-") + "-changes"
}

func (r *Realtime) nextRef() string {
	return strconv.FormatUint(r.ref.Add(1), 10)
}

func (r *Realtime) endpoint() (string, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("apikey", r.apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe dials, joins the table topic and waits for the join reply.
// The handler runs on the subscription's read goroutine, one change at a time.
func (r *Realtime) Subscribe(ctx context.Context, table string, handler domain.ChangeHandler) (domain.Subscription, error) {
	endpoint, err := r.endpoint()
	if err != nil {
		return nil, domain.Remote("subscribe", table, err)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, domain.Remote("subscribe", table, err)
	}
	conn.SetReadLimit(1 << 22)

	topic := TopicFor(table)
	joinRef := r.nextRef()
	join := phxMessage{
		Topic: topic,
		Event: eventJoin,
		Ref:   joinRef,
		Payload: mustJSON(map[string]any{
			"config": map[string]any{
				"broadcast": map[string]any{"self": false},
				"presence":  map[string]any{"key": ""},
				"postgres_changes": []map[string]string{
					{"event": "*", "schema": "public", "table": table},
				},
			},
			"access_token": r.apiKey,
		}),
	}
	if err := writeMessage(ctx, conn, join); err != nil {
		conn.CloseNow()
		return nil, domain.Remote("subscribe", table, err)
	}
	if err := awaitJoin(ctx, conn, topic, joinRef); err != nil {
		conn.CloseNow()
		return nil, domain.Remote("subscribe", table, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &realtimeSubscription{
		conn:    conn,
		cancel:  cancel,
		done:    make(chan struct{}),
		table:   table,
		topic:   topic,
		handler: handler,
		rt:      r,
	}
	go sub.readLoop(runCtx)
	go sub.heartbeatLoop(runCtx)

	r.logger.Debug().Str("table", table).Str("topic", topic).Msg("realtime subscription joined")
	return sub, nil
}

func awaitJoin(ctx context.Context, conn *websocket.Conn, topic, ref string) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("await join: %w", err)
		}
		var msg phxMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Topic != topic || msg.Event != eventReply || msg.Ref != ref {
			continue
		}
		var reply phxReply
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("decode join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("join rejected: %s %s", reply.Status, string(reply.Response))
		}
		return nil
	}
}

type realtimeSubscription struct {
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	table   string
	topic   string
	handler domain.ChangeHandler
	rt      *Realtime
}

func (s *realtimeSubscription) readLoop(ctx context.Context) {
	defer close(s.done)
	log := s.rt.logger.With().Str("table", s.table).Logger()

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				log.Warn().Err(err).Msg("realtime read stopped")
			}
			return
		}

		change, ok, err := decodeChange(data, s.topic, s.table)
		if err != nil {
			// one bad frame must not end the subscription
			log.Warn().Err(err).Msg("skip malformed realtime frame")
			continue
		}
		if !ok {
			continue
		}
		s.handler(change)
	}
}

func (s *realtimeSubscription) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.rt.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			msg := phxMessage{Topic: "phoenix", Event: eventHB, Payload: json.RawMessage(`{}`), Ref: s.rt.nextRef()}
			if err := writeMessage(ctx, s.conn, msg); err != nil {
				if ctx.Err() == nil {
					s.rt.logger.Warn().Err(err).Str("table", s.table).Msg("realtime heartbeat failed")
				}
				return
			}
		}
	}
}

// Close sends a normal closure and waits for the read goroutine to exit.
func (s *realtimeSubscription) Close() error {
	s.once.Do(func() {
		err := s.conn.Close(websocket.StatusNormalClosure, "")
		s.cancel()
		<-s.done
		if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
			s.rt.logger.Debug().Err(err).Str("table", s.table).Msg("realtime close")
		}
	})
	return nil
}

// decodeChange returns ok=false for frames that are not row changes for this topic.
func decodeChange(data []byte, topic, table string) (domain.Change, bool, error) {
	var msg phxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.Change{}, false, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Topic != topic {
		return domain.Change{}, false, nil
	}

	switch msg.Event {
	case eventPGChange:
	case eventError, eventClose:
		return domain.Change{}, false, fmt.Errorf("channel %s: %s", msg.Event, string(msg.Payload))
	default:
		return domain.Change{}, false, nil
	}

	var payload pgChangePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.Change{}, false, fmt.Errorf("decode change payload: %w", err)
	}

	change := domain.Change{Table: table, New: nonNull(payload.Data.Record), Old: nonNull(payload.Data.OldRecord)}
	switch strings.ToUpper(payload.Data.Type) {
	case "INSERT":
		change.Kind = domain.ChangeInsert
	case "UPDATE":
		change.Kind = domain.ChangeUpdate
	case "DELETE":
		change.Kind = domain.ChangeDelete
	default:
		return domain.Change{}, false, fmt.Errorf("unknown change type %q", payload.Data.Type)
	}
	return change, true, nil
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg phxMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
