package natshandler

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/kwakser/lighting-optimization/internal/pkg/msg"
	"github.com/sirupsen/logrus"

	nats "github.com/nats-io/nats.go"
)

// Config selects the server and the subject prefix.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url"`
	Subject string `yaml:"subject" json:"subject"`
}

// DefaultConfig is a disabled handler pointed at a local server.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Subject: "lighting",
	}
}

// Conn is the part of a NATS connection the handler uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Dialer opens a connection to url.
type Dialer func(url string) (Conn, error)

// Handler republishes system messages to NATS as JSON.
type Handler struct {
	mux    *sync.Mutex
	inbox  chan msg.Msg
	pid    uuid.UUID
	system msg.Publisher
	config Config
	dial   Dialer
	stop   chan bool
	quit   chan struct{}
	once   *sync.Once
	sent   int
	log    logrus.FieldLogger
}

// PID is the subscriber id registered with the system.
func (h *Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg, quit <-chan struct{}) {
	for m := range chIn {
		select {
		case chOut <- m:
		case <-quit:
			return
		}
	}
}

// Dial connects to a real server and keeps reconnecting when it drops.
func Dial(url string) (Conn, error) {
	return nats.Connect(url,
		nats.Name("lighting-optimization"),
		nats.MaxReconnects(-1),
	)
}

// New subscribes the handler to the status and config topics of system.
func New(cfg Config, system msg.Publisher, dial Dialer, log logrus.FieldLogger) (*Handler, error) {
	if dial == nil {
		dial = Dial
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	inbox := make(chan msg.Msg, 50)
	quit := make(chan struct{})

	chStatus, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		return nil, err
	}
	go redirectMsg(chStatus, inbox, quit)

	chConfig, err := system.Subscribe(pid, msg.Config)
	if err != nil {
		system.Unsubscribe(pid)
		close(quit)
		return nil, err
	}
	go redirectMsg(chConfig, inbox, quit)

	return &Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		system: system,
		config: cfg,
		dial:   dial,
		stop:   make(chan bool, 1),
		quit:   quit,
		once:   &sync.Once{},
		log:    log,
	}, nil
}

// Stop ends Process and releases the system subscription.
func (h *Handler) Stop() {
	select {
	case h.stop <- true:
	default:
	}
}

// Sent counts messages handed to the server.
func (h *Handler) Sent() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.sent
}

// Subject is the NATS subject a topic is published on.
func (h *Handler) Subject(topic msg.Topic) string {
	return h.config.Subject + "." + topic.String()
}

// Process connects and forwards messages until Stop. The system
// subscription is released when it returns, including on a failed dial.
func (h *Handler) Process() error {
	defer h.release()
	nc, err := h.dial(h.config.URL)
	if err != nil {
		return err
	}
	defer nc.Close()

	h.log.WithField("url", h.config.URL).Info("[NATS client] Process Started")
loop:
	for {
		select {
		case m := <-h.inbox:
			h.publish(nc, m)
		case <-h.stop:
			break loop
		}
	}
	h.log.Info("[NATS client] Process Shutdown")
	return nil
}

func (h *Handler) release() {
	h.once.Do(func() {
		h.system.Unsubscribe(h.pid)
		close(h.quit)
	})
}

func (h *Handler) publish(nc Conn, m msg.Msg) {
	data, err := encode(m)
	if err != nil {
		h.log.WithError(err).Warn("[NATS client] unable to encode message")
		return
	}
	if err := nc.Publish(h.Subject(m.Topic()), data); err != nil {
		h.log.WithError(err).Warn("[NATS client] unable to publish to nats server")
		return
	}
	h.mux.Lock()
	h.sent++
	h.mux.Unlock()
}

// envelope is the wire form of a message.
type envelope struct {
	PID     uuid.UUID   `json:"pid"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

func encode(m msg.Msg) ([]byte, error) {
	return json.Marshal(envelope{
		PID:     m.PID(),
		Topic:   m.Topic().String(),
		Payload: m.Payload(),
	})
}
