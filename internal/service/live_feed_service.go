package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/observability"
)

const feedSendBufferSize = 32

// FeedConnectionOptions wraps metadata extracted during the HTTP upgrade.
type FeedConnectionOptions struct {
	UserID        string
	Role          string
	ExamID        uint
	CorrelationID string
	Context       context.Context
}

// LiveFeedService streams proctoring incidents to connected reviewers over
// websockets. Clients are read-only observers; incidents originate from the
// monitor and reviewer actions, never from the socket.
type LiveFeedService interface {
	ServeConnection(conn *websocket.Conn, opts FeedConnectionOptions)
	PublishIncident(ctx context.Context, examID uint, incident dto.IncidentResponse)
	Start(ctx context.Context)
}

type liveFeedService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	hub         *feedHub
	nodeID      string
}

type feedHub struct {
	mu    sync.RWMutex
	exams map[uint]map[*feedClient]struct{}
	log   zerolog.Logger
}

type feedClient struct {
	conn    *websocket.Conn
	send    chan dto.IncidentResponse
	options FeedConnectionOptions
	service *liveFeedService
	closed  chan struct{}
	once    sync.Once
}

type feedEvent struct {
	Source   string               `json:"source"`
	ExamID   uint                 `json:"exam_id"`
	Incident dto.IncidentResponse `json:"incident"`
	SentAt   time.Time            `json:"sent_at"`
}

// NewLiveFeedService creates the incident feed service. Redis and NATS fan
// incidents out across nodes; both are optional.
func NewLiveFeedService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) LiveFeedService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":incidents"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".incidents"
	}

	return &liveFeedService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "live_feed_service").Logger(),
		hub: &feedHub{
			exams: make(map[uint]map[*feedClient]struct{}),
			log:   logger.With().Str("component", "feed_hub").Logger(),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *liveFeedService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *liveFeedService) ServeConnection(conn *websocket.Conn, opts FeedConnectionOptions) {
	client := &feedClient{
		conn:    conn,
		send:    make(chan dto.IncidentResponse, feedSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	observability.LiveFeedClientsActive().Inc()
	defer observability.LiveFeedClientsActive().Dec()

	go client.writer()
	client.reader()
}

// PublishIncident delivers the incident to local subscribers and fans it out
// to peer nodes. Delivery is fire-and-forget.
func (s *liveFeedService) PublishIncident(ctx context.Context, examID uint, incident dto.IncidentResponse) {
	s.hub.broadcast(examID, incident)

	event := feedEvent{
		Source:   s.nodeID,
		ExamID:   examID,
		Incident: incident,
		SentAt:   time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal incident event")
		return
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish incident to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish incident to nats")
		}
	}
}

func (s *liveFeedService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("incident redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *liveFeedService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "invigilo-incidents", func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats incidents subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain incident nats subscription")
		}
	}()
}

func (s *liveFeedService) handleEvent(data []byte) {
	var event feedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid incident event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	s.hub.broadcast(event.ExamID, event.Incident)
}

func (h *feedHub) register(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	exam := client.options.ExamID
	if _, exists := h.exams[exam]; !exists {
		h.exams[exam] = make(map[*feedClient]struct{})
	}
	h.exams[exam][client] = struct{}{}
	h.log.Debug().Uint("exam_id", exam).Str("user_id", client.options.UserID).Msg("feed client connected")
}

func (h *feedHub) unregister(client *feedClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	exam := client.options.ExamID
	if clients, ok := h.exams[exam]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.exams, exam)
		}
	}
	h.log.Debug().Uint("exam_id", exam).Str("user_id", client.options.UserID).Msg("feed client disconnected")
}

func (h *feedHub) broadcast(examID uint, incident dto.IncidentResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.exams[examID]
	for client := range clients {
		select {
		case client.send <- incident:
		default:
			h.log.Warn().Uint("exam_id", examID).Str("user_id", client.options.UserID).Msg("dropping incident for slow client")
		}
	}
}

// reader drains and discards client frames; the feed is one-directional.
func (c *feedClient) reader() {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.service.logger.Debug().Err(err).Msg("feed read loop ended")
			return
		}
	}
}

func (c *feedClient) writer() {
	defer c.close()

	for {
		select {
		case incident, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(incident); err != nil {
				c.service.logger.Debug().Err(err).Msg("feed write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("feed ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *feedClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}
