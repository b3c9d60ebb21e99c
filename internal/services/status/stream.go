package status

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/bbernstein/lacylights-gates/internal/services/pubsub"
)

// MessageState is the type of the first message on every stream.
const MessageState = "STATE"

const writeWait = 5 * time.Second

// streamTopics are forwarded to every websocket client.
var streamTopics = []pubsub.Topic{
	pubsub.TopicPadState,
	pubsub.TopicGateArmed,
	pubsub.TopicLayout,
	pubsub.TopicFailure,
}

// Message is one websocket frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// stream sends the current state, then every change, until the client goes
// away or the pubsub is closed. ?gate=N restricts pad and gate updates to
// one gate.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("gate")
	if filter != "" {
		if _, err := strconv.Atoi(filter); err != nil {
			http.Error(w, "gate must be a number", http.StatusBadRequest)
			return
		}
	}

	// Subscribe before the snapshot so no change falls between the two.
	subs := make([]*pubsub.Subscriber, 0, len(streamTopics))
	for _, topic := range streamTopics {
		subs = append(subs, s.pubsub.Subscribe(topic, filter, 64))
	}
	defer func() {
		for _, sub := range subs {
			s.pubsub.Unsubscribe(sub)
		}
	}()

	st, err := s.state.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.Subscribers.Inc()
		defer s.metrics.Subscribers.Dec()
	}
	client := log.WithField("remote", r.RemoteAddr)
	client.Info("status client connected")
	defer client.Info("status client disconnected")

	quit := make(chan struct{})
	defer close(quit)
	out := merge(subs, quit)

	// The client never sends anything meaningful; reading surfaces closes.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.write(conn, Message{Type: MessageState, Data: st}); err != nil {
		return
	}

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-out:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := s.write(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.WithError(err).Debug("websocket write failed")
		return err
	}
	return nil
}

// merge forwards every subscriber into one channel, closed once all
// subscriptions have ended.
func merge(subs []*pubsub.Subscriber, quit <-chan struct{}) <-chan Message {
	out := make(chan Message, 64)
	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *pubsub.Subscriber) {
			defer wg.Done()
			for data := range sub.Channel {
				select {
				case out <- Message{Type: string(sub.Topic), Data: data}:
				case <-quit:
					return
				}
			}
		}(sub)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
