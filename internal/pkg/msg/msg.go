package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic is the class of a message.
type Topic int

const (
	// Status carries the per-tick snapshot.
	Status Topic = iota
	// Config carries applied conditions and scenario changes.
	Config
)

func (t Topic) String() string {
	switch t {
	case Status:
		return "status"
	case Config:
		return "config"
	}
	return "unknown"
}

// ErrSubscribed is returned when a pid subscribes twice to one topic.
var ErrSubscribed = errors.New("already subscribed")

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a payload stamped with its sender and topic.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message class
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans messages out to per-subscriber buffered channels. A slow
// subscriber loses messages instead of blocking the publisher.
type PubSub struct {
	mux         *sync.Mutex
	pid         uuid.UUID
	subscribers map[Topic]map[uuid.UUID]chan Msg
	dropped     int
}

// BufferSize is the channel depth given to each subscription.
const BufferSize = 64

// NewPublisher returns a PubSub that stamps messages with pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:         &sync.Mutex{},
		pid:         pid,
		subscribers: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID is the sender id stamped on published messages.
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel on which the topic is broadcast.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()

	subs, ok := p.subscribers[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.subscribers[topic] = subs
	}
	if _, ok := subs[pid]; ok {
		return nil, ErrSubscribed
	}
	ch := make(chan Msg, BufferSize)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe removes pid from every topic and closes its channels.
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()

	for _, subs := range p.subscribers {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish sends payload on topic stamped with the publisher's pid.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.Forward(New(p.pid, topic, payload))
}

// Forward sends an existing message to the subscribers of its topic.
func (p *PubSub) Forward(m Msg) {
	p.mux.Lock()
	defer p.mux.Unlock()

	for _, ch := range p.subscribers[m.Topic()] {
		select {
		case ch <- m:
		default:
			p.dropped++
		}
	}
}

// Dropped counts messages discarded because a subscriber's buffer was full.
func (p *PubSub) Dropped() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.dropped
}

// Close unsubscribes everyone.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()

	for topic, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, topic)
	}
}
