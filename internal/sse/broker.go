// Package sse streams library and conversion events to browsers as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is a payload the broker can stream. Name is the SSE event field; the
// value itself is encoded as the data field.
type Event interface {
	Name() string
}

// ChartKind says what happened to a chart file.
type ChartKind string

const (
	ChartCreated ChartKind = "created"
	ChartUpdated ChartKind = "updated"
	ChartDeleted ChartKind = "deleted"
)

// ChartEvent reports a change to one chart in the library.
type ChartEvent struct {
	Kind ChartKind `json:"-"`
	Path string    `json:"path"`
}

func (e ChartEvent) Name() string { return "chart." + string(e.Kind) }

func (e ChartEvent) valid() bool {
	switch e.Kind {
	case ChartCreated, ChartUpdated, ChartDeleted:
		return true
	}
	return false
}

// ConversionEvent reports a finished conversion.
type ConversionEvent struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
	Target string `json:"target"`
}

func (ConversionEvent) Name() string { return "conversion.completed" }

// LibraryEvent tells clients to refresh their chart list. Chart events
// trigger it at most once per throttle interval.
type LibraryEvent struct {
	Events int `json:"events"`
}

func (LibraryEvent) Name() string { return "library.updated" }

// Broker fans events out to SSE clients.
//
// One goroutine owns the client set, the message sequence and the library
// throttle; every public method talks to it over channels.
type Broker struct {
	libraryMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	events        chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that emits library.updated at most once per
// libraryThrottle (two seconds when not positive).
func NewBroker(libraryThrottle time.Duration) *Broker {
	if libraryThrottle <= 0 {
		libraryThrottle = 2 * time.Second
	}
	b := &Broker{
		libraryMin:    libraryThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		events:        make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

// frame renders one SSE message.
func frame(seq uint64, e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, e.Name(), data), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq         uint64
		lastLibrary time.Time
		pending     int
	)

	send := func(e Event) {
		seq++
		msg, err := frame(seq, e)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// slow client, drop
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

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.events:
			ce, isChart := e.(ChartEvent)
			if isChart && !ce.valid() {
				continue
			}
			send(e)
			if !isChart {
				continue
			}
			pending++
			if now := time.Now(); now.Sub(lastLibrary) >= b.libraryMin {
				lastLibrary = now
				send(LibraryEvent{Events: pending})
				pending = 0
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The channel is closed on Unsubscribe or
// Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
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

// Publish queues e for every connected client. Chart events with an unknown
// kind are dropped.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- e:
	case <-b.stopped:
	}
}

// PublishChartEvent publishes a ChartEvent; kind is "created", "updated" or
// "deleted".
func (b *Broker) PublishChartEvent(kind, path string) {
	b.Publish(ChartEvent{Kind: ChartKind(kind), Path: path})
}

// PublishConversion publishes a ConversionEvent.
func (b *Broker) PublishConversion(id, kind, source, target string) {
	b.Publish(ConversionEvent{ID: id, Kind: kind, Source: source, Target: target})
}

// ServeHTTP streams events to one client until it disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
