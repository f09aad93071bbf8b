package sso

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/federate/pkg/contextkeys"
	"github.com/platinummonkey/federate/pkg/observability"
)

// PipelineState is a step of a federated login
type PipelineState string

const (
	StateStart              PipelineState = "Start"
	StateTokenExchanged     PipelineState = "TokenExchanged"
	StateProfileFetched     PipelineState = "ProfileFetched"
	StateMappingResolved    PipelineState = "MappingResolved"
	StateUserCreated        PipelineState = "UserCreated"
	StateUserRefreshed      PipelineState = "UserRefreshed"
	StateGroupsSynchronized PipelineState = "GroupsSynchronized"
	StateSessionBound       PipelineState = "SessionBound"
	StateDone               PipelineState = "Done"
	StateFailed             PipelineState = "Failed"
)

const tracerName = "github.com/platinummonkey/federate/pkg/sso"

// PipelineDeps are the collaborators of a Pipeline. Metrics and Tracer are optional.
type PipelineDeps struct {
	Registry    *Registry
	Exchanger   TokenExchanger
	Fetcher     ProfileFetcher
	Provisioner *UserProvisioner
	Memberships *MembershipSynchronizer
	Sessions    *SessionIssuer
	Metrics     *observability.Metrics
	Logger      *observability.Logger
	Tracer      trace.Tracer
}

// Pipeline runs federated logins. It holds no per-login state and is safe
// for concurrent use.
type Pipeline struct {
	registry    *Registry
	exchanger   TokenExchanger
	fetcher     ProfileFetcher
	provisioner *UserProvisioner
	memberships *MembershipSynchronizer
	sessions    *SessionIssuer
	metrics     *observability.Metrics
	logger      *observability.Logger
	tracer      trace.Tracer
}

// NewPipeline creates a new federation pipeline
func NewPipeline(deps PipelineDeps) *Pipeline {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{
		registry:    deps.Registry,
		exchanger:   deps.Exchanger,
		fetcher:     deps.Fetcher,
		provisioner: deps.Provisioner,
		memberships: deps.Memberships,
		sessions:    deps.Sessions,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		tracer:      tracer,
	}
}

// run tracks the state of one login
type run struct {
	providerID string
	state      PipelineState
	span       trace.Span
	logger     *observability.Logger
}

func (r *run) transition(state PipelineState) {
	r.logger.Debugf("federation %s -> %s", r.state, state)
	r.span.AddEvent(string(state))
	r.state = state
}

func (r *run) fail(err error) error {
	var fedErr *FederationError
	if errors.As(err, &fedErr) && fedErr.Provider == "" {
		fedErr.Provider = r.providerID
	}

	r.logger.WithError(err).Warnf("federation failed in state %s", r.state)
	r.span.RecordError(err)
	r.span.SetStatus(codes.Error, err.Error())
	r.span.AddEvent(string(StateFailed), trace.WithAttributes(attribute.String("federation.failed_in", string(r.state))))
	r.state = StateFailed
	return err
}

// BeginFederatedLogin exchanges the authorization code, maps the profile to
// a local user, provisions it with its group memberships and binds a session.
// Failures are terminal and side effects already committed are kept.
func (p *Pipeline) BeginFederatedLogin(ctx context.Context, providerID string, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	ctx = contextkeys.WithProvider(ctx, providerID)

	ctx, span := p.tracer.Start(ctx, "federation.login", trace.WithAttributes(
		attribute.String("federation.provider", providerID),
	))
	defer span.End()

	r := &run{
		providerID: providerID,
		state:      StateStart,
		span:       span,
		logger:     observability.UpdateLoggerWithTraceContext(ctx, p.logger.WithField("provider", providerID)),
	}

	result, err := p.run(ctx, r, providerID, req)

	outcome := "success"
	if err != nil {
		outcome = string(kindOf(err))
	}
	if p.metrics != nil {
		p.metrics.LoginsTotal.WithLabelValues(providerID, outcome).Inc()
		p.metrics.LoginDuration.WithLabelValues(providerID).Observe(time.Since(start).Seconds())
	}

	return result, err
}

func (p *Pipeline) run(ctx context.Context, r *run, providerID string, req LoginRequest) (*LoginResult, error) {
	provider, ok := p.registry.Get(providerID)
	if !ok {
		return nil, r.fail(newError(KindUnknownProvider, providerID, 0, "", nil))
	}
	cfg := &provider.Config

	accessToken, err := p.exchanger.ExchangeCode(ctx, cfg, req)
	if err != nil {
		return nil, r.fail(err)
	}
	r.transition(StateTokenExchanged)

	profile, err := p.fetcher.FetchProfile(ctx, cfg, accessToken)
	if err != nil {
		return nil, r.fail(err)
	}
	r.transition(StateProfileFetched)

	identity, err := MapIdentity(cfg, profile, p.metrics, r.logger)
	if err != nil {
		return nil, r.fail(err)
	}
	r.logger = r.logger.WithField("username", identity.Username)
	r.span.SetAttributes(attribute.String("federation.username", identity.Username))
	r.transition(StateMappingResolved)

	provisioned, err := p.provisioner.Provision(ctx, provider, identity, profile.Document)
	if err != nil {
		return nil, r.fail(err)
	}
	if provisioned.Created {
		r.transition(StateUserCreated)
	} else {
		r.transition(StateUserRefreshed)
	}

	written, err := p.memberships.Sync(ctx, identity.Username, provisioned.Groups, provisioned.Roles)
	if err != nil {
		return nil, r.fail(err)
	}
	r.transition(StateGroupsSynchronized)

	token, principal, err := p.sessions.Issue(ctx, provisioned.User, providerID)
	if err != nil {
		return nil, r.fail(err)
	}
	if p.metrics != nil {
		p.metrics.SessionsIssuedTotal.WithLabelValues(providerID).Inc()
	}
	r.transition(StateSessionBound)

	r.transition(StateDone)
	r.logger.WithFields(map[string]interface{}{
		"created":     provisioned.Created,
		"groups":      len(provisioned.Groups),
		"memberships": written,
	}).Info("federated login completed")

	return &LoginResult{
		Session:     token,
		Principal:   principal,
		User:        provisioned.User,
		Created:     provisioned.Created,
		Groups:      provisioned.Groups,
		Memberships: written,
		Warnings:    provisioned.Warnings,
		State:       r.state,
	}, nil
}

func kindOf(err error) ErrorKind {
	var fedErr *FederationError
	if errors.As(err, &fedErr) {
		return fedErr.Kind
	}
	return "Internal"
}
