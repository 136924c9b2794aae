package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/groupcart/group/codegen"
	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/group/store"
	"github.com/wricardo/groupcart/logging"
)

const (
	DefaultTTL            = 24 * time.Hour
	DefaultCreateAttempts = 5
)

// Service implements GroupService.
type Service struct {
	store          store.Store
	codes          *codegen.Generator
	events         Broadcaster
	catalog        Catalog
	log            zerolog.Logger
	now            func() time.Time
	ttl            time.Duration
	createAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithBroadcaster sets where events are published. Without one events are dropped.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.events = b }
}

// WithCatalog sets the catalog used to decorate views.
func WithCatalog(c Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = logging.Component(l, "group-service") }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTTL sets the session lifetime reported in views. The reaper enforces it.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithCodeGenerator(g *codegen.Generator) Option {
	return func(s *Service) { s.codes = g }
}

func WithCreateAttempts(n int) Option {
	return func(s *Service) { s.createAttempts = n }
}

// New creates a service over st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:          st,
		log:            zerolog.Nop(),
		now:            time.Now,
		ttl:            DefaultTTL,
		createAttempts: DefaultCreateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		s.codes = codegen.New(st.Exists)
	}
	return s
}

// publish sends an event for a persisted change. Failures only get logged.
func (s *Service) publish(ctx context.Context, eventType session.EventType, view *SessionView, actor Actor) {
	if s.events == nil {
		return
	}
	payload := EventPayload{
		Session: view,
		Actor:   ActorRef{UserID: actor.UserID, DisplayName: actor.DisplayName},
	}
	if err := s.events.Publish(ctx, view.Code, eventType, payload); err != nil {
		s.log.Warn().Err(err).
			Str("code", view.Code).
			Str("event", string(eventType)).
			Msg("failed to publish session event")
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func requireCode(code string) (string, error) {
	code = session.NormalizeCode(code)
	if code == "" {
		return "", invalid("code is required")
	}
	return code, nil
}

func requireActor(actor Actor) error {
	if actor.UserID == "" {
		return invalid("caller identity is required")
	}
	return nil
}

var _ GroupService = (*Service)(nil)
