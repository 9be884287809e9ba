// Package sse streams document and catalog changes to HTTP clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast. Events with a Session are only
// delivered to clients watching all sessions or that one session.
type Event struct {
	Type    string `json:"type"`
	Session string `json:"-"`
	Data    any    `json:"data"`
}

type catalogEventReq struct {
	kind string
	path string
}

type subscription struct {
	ch      chan []byte
	session string
	// Frames with an id above lastID are replayed when replay is set.
	lastID uint64
	replay bool
}

// frame is one encoded event kept for replay to reconnecting clients.
type frame struct {
	id      uint64
	session string
	raw     []byte
}

const (
	historySize  = 128
	clientBuffer = 64
)

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set, the replay history and
// the library throttle timestamp; public methods talk to it over channels.
type Broker struct {
	libraryMin time.Duration
	heartbeat  time.Duration

	subscribeCh    chan subscription
	unsubscribeCh  chan chan []byte
	publishCh      chan Event
	catalogEventCh chan catalogEventReq
	countReqCh     chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one library.updated event
// per libraryThrottle.
func NewBroker(libraryThrottle time.Duration) *Broker {
	if libraryThrottle <= 0 {
		libraryThrottle = 2 * time.Second
	}

	b := &Broker{
		libraryMin:     libraryThrottle,
		heartbeat:      25 * time.Second,
		subscribeCh:    make(chan subscription),
		unsubscribeCh:  make(chan chan []byte),
		publishCh:      make(chan Event, 256),
		catalogEventCh: make(chan catalogEventReq, 256),
		countReqCh:     make(chan chan int),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}

	go b.run()
	return b
}

func wants(clientSession, eventSession string) bool {
	return eventSession == "" || clientSession == "" || clientSession == eventSession
}

func send(ch chan []byte, raw []byte) {
	select {
	case ch <- raw:
	default:
		// Slow client; drop rather than block the loop.
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	history := make([]frame, 0, historySize)
	var nextID uint64
	var lastLibrary time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		nextID++
		f := frame{
			id:      nextID,
			session: event.Session,
			raw:     fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", nextID, event.Type, payload),
		}
		if len(history) == historySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, f)

		for ch, session := range clients {
			if wants(session, f.session) {
				send(ch, f.raw)
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.session
			if sub.replay {
				for _, f := range history {
					if f.id > sub.lastID && wants(sub.session, f.session) {
						send(sub.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.catalogEventCh:
			switch req.kind {
			case "created", "updated", "deleted":
				broadcast(Event{Type: "document." + req.kind, Data: map[string]string{"path": req.path}})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastLibrary) >= b.libraryMin {
				lastLibrary = now
				broadcast(Event{Type: "library.updated", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client receiving every event and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeSession("")
}

// SubscribeSession adds a client that receives catalog events plus the
// events of one editing session. An empty session receives everything.
func (b *Broker) SubscribeSession(session string) chan []byte {
	return b.subscribe(subscription{session: session})
}

// Resume is SubscribeSession for a reconnecting client: retained events
// newer than lastID are queued first.
func (b *Broker) Resume(session string, lastID uint64) chan []byte {
	return b.subscribe(subscription{session: session, lastID: lastID, replay: true})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	size := clientBuffer
	if sub.replay {
		size += historySize
	}
	ch := make(chan []byte, size)
	sub.ch = ch
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all interested clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishSessionEvent publishes a change to an open document, such as
// "attachments.changed" or "document.saved".
func (b *Broker) PublishSessionEvent(session, kind string, data map[string]any) {
	payload := make(map[string]any, len(data)+1)
	maps.Copy(payload, data)
	payload["session"] = session
	b.Publish(Event{Type: kind, Session: session, Data: payload})
}

// PublishCatalogEvent publishes a catalog change and a throttled
// library.updated event. It has the index.EventCallback signature.
func (b *Broker) PublishCatalogEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.catalogEventCh <- catalogEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// "session" query parameter narrows session events to one session. A
// Last-Event-ID header resumes from the retained history, and an idle
// stream gets a comment line every heartbeat.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	session := r.URL.Query().Get("session")
	var ch chan []byte
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.Resume(session, last)
	} else {
		ch = b.SubscribeSession(session)
	}
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
