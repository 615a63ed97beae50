// Package auth implements the credential lifecycle: registration, password
// login, access token refresh and refresh token revocation.
package auth

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/model"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/token"
)

// CredentialStore persists users together with their roles and refresh
// token record.  Lookups that match nothing return repository.ErrNotFound.
type CredentialStore interface {
	FindUserByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	SaveUser(ctx context.Context, u model.User) (model.User, error)
	FindRoleByAuthority(ctx context.Context, authority model.RoleType) (model.Role, error)
	InvalidateRefreshToken(ctx context.Context, userID uint64) error
}

// PasswordHasher hashes passwords and checks a plaintext against a hash.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

// TokenCodec mints and decodes signed tokens.
type TokenCodec interface {
	Issue(subject string, issuedAt time.Time, ttl time.Duration, roles string) (token.Issued, error)
	Verify(raw string) (token.Claims, error)
}

// EventPublisher delivers auth events.  Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// Clock supplies the current time to every flow.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

const publishTimeout = 5 * time.Second

// Options lists the collaborators of a Service.  Store, Hasher and Codec are
// required; the rest fall back to no-op or default implementations.
type Options struct {
	Store      CredentialStore
	Hasher     PasswordHasher
	Codec      TokenCodec
	Clock      Clock
	Events     EventPublisher
	Metrics    *metrics.Metrics
	Logger     *log.Logger
	Tracer     trace.Tracer
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service runs the credential flows.  It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	store      CredentialStore
	hasher     PasswordHasher
	codec      TokenCodec
	clock      Clock
	events     EventPublisher
	metrics    *metrics.Metrics
	log        *log.Logger
	tracer     trace.Tracer
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(o Options) *Service {
	s := &Service{
		store:      o.Store,
		hasher:     o.Hasher,
		codec:      o.Codec,
		clock:      o.Clock,
		events:     o.Events,
		metrics:    o.Metrics,
		log:        o.Logger,
		tracer:     o.Tracer,
		accessTTL:  o.AccessTTL,
		refreshTTL: o.RefreshTTL,
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.log == nil {
		s.log = log.New("auth")
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("auth")
	}
	if s.accessTTL <= 0 {
		s.accessTTL = 10 * time.Second
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 7 * 24 * time.Hour
	}
	return s
}

// AccessTTL is the lifetime of minted access tokens.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is the lifetime of minted refresh tokens.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *Service) startSpan(ctx context.Context, name, email string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("auth.email", email)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish hands ev to the publisher in the background.  The request context
// may already be gone by the time the broker answers, so only its values are
// kept.
func (s *Service) publish(ctx context.Context, ev queue.AuthEvent) {
	if s.events == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, ev); err != nil {
			s.log.Warnj(log.JSON{"msg": "auth event not published", "type": ev.Type, "error": err.Error()})
		}
	}()
}
