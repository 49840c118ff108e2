// Package authorizing implements the authorization escrow engine: pending
// credential presentations and revocations are swept on a timer and promoted
// into durable authorization state once the external subsystem has resolved
// them, or dropped once they exceed the resolution timeout.
package authorizing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"verigate/internal/authorizing/metrics"
	"verigate/internal/keri"
	"verigate/internal/platform/storage"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/domain"
)

// RequiredRole is the engagement context role a presented credential must
// declare for its holder to be granted submission access.
const RequiredRole = "EBA Document Submitter"

// SchemaECR is the credential schema SAID of the vLEI Engagement Context
// Role credential, the only schema this deployment accepts.
const SchemaECR = "EEy9PkikFcANV1l7EHukCeXqrzT1hNZjGlUk7wuMO5jw"

// DefaultTimeout bounds how long an unresolved escrow entry is retained.
const DefaultTimeout = 600 * time.Second

// Authorizer owns the presentation and revocation escrows and the durable
// authorization index mapping an AID to the credential SAID that granted it.
type Authorizer struct {
	presentations storage.Cell
	revocations   storage.Cell
	accounts      storage.Cell
	revoked       storage.Cell

	resolver keri.KeyStateResolver
	creds    keri.CredentialSource

	leis     map[domain.LEI]struct{}
	timeout  time.Duration
	interval time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures the Authorizer.
type Option func(*Authorizer)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(a *Authorizer) {
		if interval > 0 {
			a.interval = interval
		}
	}
}

// WithTimeout overrides the escrow resolution timeout when greater than zero.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Authorizer) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithLogger configures a logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics configures Prometheus collectors for the engine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) {
		a.metrics = m
	}
}

// WithClock overrides the wall clock, for timeout tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		if now != nil {
			a.now = now
		}
	}
}

// New constructs the escrow engine over the shared store and the external
// key-state and credential ports.
func New(store *storage.Store, resolver keri.KeyStateResolver, creds keri.CredentialSource, leis []string, opts ...Option) (*Authorizer, error) {
	if store == nil || resolver == nil || creds == nil {
		return nil, fmt.Errorf("store, resolver, and creds are required")
	}
	if len(leis) == 0 {
		return nil, dErrors.New(dErrors.CodeConfiguration, "invalid configuration, no LEIs available to accept")
	}

	allowed := make(map[domain.LEI]struct{}, len(leis))
	for _, lei := range leis {
		parsed, err := domain.ParseLEI(lei)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "invalid configuration, invalid LEI "+lei)
		}
		allowed[parsed] = struct{}{}
	}

	a := &Authorizer{
		presentations: store.Cell(storage.PrefixPresentations),
		revocations:   store.Cell(storage.PrefixRevocations),
		accounts:      store.Cell(storage.PrefixAccounts),
		revoked:       store.Cell(storage.PrefixRevoked),
		resolver:      resolver,
		creds:         creds,
		leis:          allowed,
		timeout:       DefaultTimeout,
		interval:      time.Second,
		logger:        slog.Default(),
		metrics:       metrics.New(prometheus.NewRegistry()),
		tracer:        otel.Tracer("verigate/authorizing"),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// RecordPresentation places a presented credential SAID into the presentation
// escrow with the current timestamp. Re-recording a pending SAID is a no-op
// so the original receipt time keeps governing the timeout.
func (a *Authorizer) RecordPresentation(said domain.SAID) error {
	return a.record(a.presentations, said, a.metrics.PresentationsRecorded)
}

// RecordRevocation places a revoked credential SAID into the revocation escrow.
func (a *Authorizer) RecordRevocation(said domain.SAID) error {
	return a.record(a.revocations, said, a.metrics.RevocationsRecorded)
}

func (a *Authorizer) record(escrow storage.Cell, said domain.SAID, count prometheus.Counter) error {
	key := []byte(said)
	present, err := escrow.Has(key)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	if err := escrow.Put(key, []byte(a.now().UTC().Format(time.RFC3339Nano))); err != nil {
		return err
	}
	count.Inc()
	return nil
}

// Authorized returns the credential SAID that currently authorizes aid.
func (a *Authorizer) Authorized(aid domain.AID) (domain.SAID, bool, error) {
	val, found, err := a.accounts.Get([]byte(aid))
	if err != nil || !found {
		return "", false, err
	}
	return domain.SAID(val), true, nil
}

// SweepResult summarizes one escrow sweep.
type SweepResult struct {
	PresentationsExpired int
	Authorized           int
	Denied               int
	Dropped              int
	RevocationsExpired   int
	RevocationsConfirmed int
}

// Start runs escrow sweeps periodically until ctx is cancelled. Sweep errors
// are logged and never terminate the loop.
func (a *Authorizer) Start(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "escrow sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep: the presentation pass followed by the
// revocation pass. Each escrow entry is resolved independently; a failure on
// one entry is logged and does not block the rest.
func (a *Authorizer) RunOnce(ctx context.Context) (SweepResult, error) {
	ctx, span := a.tracer.Start(ctx, "authorizing.sweep")
	defer span.End()

	start := a.now()
	var res SweepResult
	a.processPresentations(ctx, &res)
	a.processRevocations(ctx, &res)
	a.metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	return res, nil
}

func (a *Authorizer) processPresentations(ctx context.Context, res *SweepResult) {
	entries, err := a.presentations.Items()
	if err != nil {
		a.logger.ErrorContext(ctx, "reading presentation escrow", "error", err)
		return
	}

	for _, entry := range entries {
		said := domain.SAID(entry.Key)

		receivedAt, ok := a.escrowTime(ctx, a.presentations, entry)
		if !ok {
			res.Dropped++
			continue
		}
		if a.now().Sub(receivedAt) > a.timeout {
			a.expire(ctx, a.presentations, said, "presentation")
			a.metrics.PresentationsExpired.Inc()
			res.PresentationsExpired++
			continue
		}

		// Not yet resolved by the credential subsystem: leave pending.
		if !a.creds.Saved(said) {
			continue
		}

		// Resolved: the entry leaves escrow now. Business rule failures
		// below discard the presentation, they do not retry it.
		if err := a.presentations.Delete(entry.Key); err != nil {
			a.logger.ErrorContext(ctx, "removing presentation escrow entry", "said", said, "error", err)
			continue
		}

		cred, found := a.creds.Credential(said)
		if !found {
			a.logger.WarnContext(ctx, "credential saved but not retrievable", "said", said)
			a.metrics.PresentationsDropped.Inc()
			res.Dropped++
			continue
		}

		switch cred.Schema {
		case SchemaECR:
			a.processECR(ctx, cred, res)
		default:
			a.logger.InfoContext(ctx, "invalid credential presentation, unknown schema",
				"said", said, "schema", cred.Schema)
			a.metrics.PresentationsDropped.Inc()
			res.Dropped++
		}
	}
}

// processECR applies the business rules for an engagement context role
// credential. Any failing rule silently discards the presentation.
func (a *Authorizer) processECR(ctx context.Context, cred keri.Credential, res *SweepResult) {
	subject := cred.Subject.ID

	if _, found := a.resolver.KeyState(subject); !found {
		a.logger.InfoContext(ctx, "unknown presenter", "aid", subject)
		a.deny(res, "unknown_presenter")
		return
	}

	lei := domain.LEI(cred.Subject.Claims["LEI"])
	if _, ok := a.leis[lei]; !ok {
		a.logger.InfoContext(ctx, "LEI not allowed", "lei", lei)
		a.deny(res, "lei_not_allowed")
		return
	}

	role := cred.Subject.Claims["engagementContextRole"]
	if role != RequiredRole {
		a.logger.InfoContext(ctx, "not a valid submitter role", "role", role)
		a.deny(res, "invalid_role")
		return
	}

	if err := a.accounts.Put([]byte(subject), []byte(cred.SAID)); err != nil {
		a.logger.ErrorContext(ctx, "storing authorization", "aid", subject, "error", err)
		return
	}
	a.logger.InfoContext(ctx, "successful authentication, storing user", "aid", subject, "said", cred.SAID)
	a.metrics.Authorized.Inc()
	res.Authorized++
}

func (a *Authorizer) processRevocations(ctx context.Context, res *SweepResult) {
	entries, err := a.revocations.Items()
	if err != nil {
		a.logger.ErrorContext(ctx, "reading revocation escrow", "error", err)
		return
	}

	for _, entry := range entries {
		said := domain.SAID(entry.Key)

		receivedAt, ok := a.escrowTime(ctx, a.revocations, entry)
		if !ok {
			continue
		}
		if a.now().Sub(receivedAt) > a.timeout {
			a.expire(ctx, a.revocations, said, "revocation")
			a.metrics.RevocationsExpired.Inc()
			res.RevocationsExpired++
			continue
		}

		// Revocation may arrive before the credential record; let it wait.
		cred, found := a.creds.Credential(said)
		if !found {
			continue
		}

		state, found := a.creds.VCState(said)
		switch {
		case !found:
			// No registry event seen yet.
			continue
		case state.Issued():
			// Ledger has not caught up with the revocation yet.
			continue
		case state.Revoked():
			if err := a.revocations.Delete(entry.Key); err != nil {
				a.logger.ErrorContext(ctx, "removing revocation escrow entry", "said", said, "error", err)
				continue
			}
			// Audit-only: confirmed revocations are recorded but the
			// authorization index is left intact. Clearing it is a
			// business-rule extension point.
			auditKey := []byte(string(said) + "." + string(entry.Value))
			if err := a.revoked.Put(auditKey, []byte(cred.Subject.ID)); err != nil {
				a.logger.ErrorContext(ctx, "recording confirmed revocation", "said", said, "error", err)
				continue
			}
			a.logger.InfoContext(ctx, "revocation confirmed", "said", said, "aid", cred.Subject.ID)
			a.metrics.RevocationsConfirmed.Inc()
			res.RevocationsConfirmed++
		}
	}
}

// escrowTime parses an entry's receipt timestamp. Malformed values can never
// resolve or expire, so the entry is removed.
func (a *Authorizer) escrowTime(ctx context.Context, escrow storage.Cell, entry storage.Element) (time.Time, bool) {
	receivedAt, err := time.Parse(time.RFC3339Nano, string(entry.Value))
	if err != nil {
		a.logger.WarnContext(ctx, "dropping escrow entry with malformed timestamp",
			"said", string(entry.Key), "error", err)
		if err := escrow.Delete(entry.Key); err != nil {
			a.logger.ErrorContext(ctx, "removing malformed escrow entry", "error", err)
		}
		return time.Time{}, false
	}
	return receivedAt, true
}

func (a *Authorizer) expire(ctx context.Context, escrow storage.Cell, said domain.SAID, kind string) {
	if err := escrow.Delete([]byte(said)); err != nil {
		a.logger.ErrorContext(ctx, "expiring escrow entry", "said", said, "error", err)
		return
	}
	a.logger.InfoContext(ctx, "removing expired escrow entry", "kind", kind, "said", said)
}

func (a *Authorizer) deny(res *SweepResult, reason string) {
	a.metrics.Denied.WithLabelValues(reason).Inc()
	res.Denied++
}
