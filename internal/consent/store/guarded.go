package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cms/internal/consent/checksum"
	"cms/internal/consent/metrics"
	"cms/internal/consent/models"
	"cms/internal/platform/tracer"
	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/sentinel"
)

// Guarded is the checksum-verified write gate over a Repository.
//
// A caller loads an entity (which carries its Checksum), mutates it in memory
// and hands it back. The write succeeds only when the caller's checksum still
// describes the stored row; otherwise it fails with CodeWrongChecksum and the
// caller must reload. There is no retry here.
type Guarded struct {
	repo    Repository
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// GuardedOption configures a Guarded store.
type GuardedOption func(*Guarded)

// WithMetrics records conflicts and latency.
func WithMetrics(m *metrics.Metrics) GuardedOption {
	return func(g *Guarded) {
		g.metrics = m
	}
}

// WithTracer wraps writes in spans.
func WithTracer(t tracer.Tracer) GuardedOption {
	return func(g *Guarded) {
		g.tracer = t
	}
}

// NewGuarded wraps repo.
func NewGuarded(repo Repository, opts ...GuardedOption) *Guarded {
	g := &Guarded{repo: repo, tracer: tracer.NewNoop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) FindConsentByExternalID(ctx context.Context, externalID, instanceID string) (*models.Consent, error) {
	defer g.observe("find_consent", time.Now())
	return g.repo.FindConsentByExternalID(ctx, externalID, instanceID)
}

func (g *Guarded) FindConsentsByPsu(ctx context.Context, q models.PsuConsentQuery) ([]*models.Consent, error) {
	defer g.observe("find_consents_by_psu", time.Now())
	return g.repo.FindConsentsByPsu(ctx, q)
}

func (g *Guarded) FindOldConsents(ctx context.Context, q models.OldConsentQuery) ([]*models.Consent, error) {
	defer g.observe("find_old_consents", time.Now())
	return g.repo.FindOldConsents(ctx, q)
}

func (g *Guarded) FindAuthorisationByExternalID(ctx context.Context, externalID, instanceID string) (*models.Authorisation, error) {
	defer g.observe("find_authorisation", time.Now())
	return g.repo.FindAuthorisationByExternalID(ctx, externalID, instanceID)
}

func (g *Guarded) FindAuthorisationsByParent(ctx context.Context, q models.ParentQuery) ([]*models.Authorisation, error) {
	defer g.observe("find_authorisations_by_parent", time.Now())
	return g.repo.FindAuthorisationsByParent(ctx, q)
}

// VerifyAndSave stores a new consent at revision 1 and returns it with its
// assigned id and checksum.
func (g *Guarded) VerifyAndSave(ctx context.Context, consent *models.Consent) (_ *models.Consent, err error) {
	if consent == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent is required")
	}
	ctx, span := g.tracer.Start(ctx, "store.consent.save", tracer.String("consent_id", consent.ExternalID))
	defer func() { span.End(err) }()
	defer g.observe("save_consent", time.Now())

	next := consent.Clone()
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	assignPsuIDs(next.PsuDataList)
	truncateConsentTimes(next)
	next.Revision = 1
	next.Checksum = checksum.ForConsent(next)

	if err := g.repo.InsertConsent(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "consent already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
	}
	stamp(consent, next)
	return next, nil
}

// VerifyAndUpdate writes a mutated consent if its checksum still matches the stored row.
func (g *Guarded) VerifyAndUpdate(ctx context.Context, consent *models.Consent) (_ *models.Consent, err error) {
	if consent == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "consent is required")
	}
	ctx, span := g.tracer.Start(ctx, "store.consent.update",
		tracer.String("consent_id", consent.ExternalID),
		tracer.Int64("revision", consent.Revision),
	)
	defer func() { span.End(err) }()
	defer g.observe("update_consent", time.Now())

	current, err := g.repo.FindConsentByExternalID(ctx, consent.ExternalID, consent.InstanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	if !checksum.Matches(consent.Checksum, checksum.ForConsent(current)) {
		return nil, g.wrongChecksum("consent", nil)
	}

	next := consent.Clone()
	next.ID = current.ID
	assignPsuIDs(next.PsuDataList)
	truncateConsentTimes(next)
	next.Revision = current.Revision + 1
	next.Checksum = checksum.ForConsent(next)

	if err := g.repo.CompareAndSwapConsent(ctx, next, current.Checksum); err != nil {
		if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
			return nil, g.wrongChecksum("consent", err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update consent")
	}
	stamp(consent, next)
	return next, nil
}

// SaveAuthorisation stores a new authorisation at revision 1.
func (g *Guarded) SaveAuthorisation(ctx context.Context, auth *models.Authorisation) (_ *models.Authorisation, err error) {
	if auth == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authorisation is required")
	}
	ctx, span := g.tracer.Start(ctx, "store.authorisation.save", tracer.String("authorisation_id", auth.ExternalID))
	defer func() { span.End(err) }()
	defer g.observe("save_authorisation", time.Now())

	next := auth.Clone()
	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	assignAuthorisationPsuID(next)
	truncateAuthorisationTimes(next)
	next.Revision = 1
	next.Checksum = checksum.ForAuthorisation(next)

	if err := g.repo.InsertAuthorisation(ctx, next); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "authorisation already exists")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "parent consent not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save authorisation")
	}
	stampAuthorisation(auth, next)
	return next, nil
}

// VerifyAndUpdateAuthorisation writes a mutated authorisation if its checksum still matches.
func (g *Guarded) VerifyAndUpdateAuthorisation(ctx context.Context, auth *models.Authorisation) (_ *models.Authorisation, err error) {
	if auth == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authorisation is required")
	}
	ctx, span := g.tracer.Start(ctx, "store.authorisation.update",
		tracer.String("authorisation_id", auth.ExternalID),
		tracer.Int64("revision", auth.Revision),
	)
	defer func() { span.End(err) }()
	defer g.observe("update_authorisation", time.Now())

	current, err := g.repo.FindAuthorisationByExternalID(ctx, auth.ExternalID, auth.InstanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "authorisation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorisation")
	}
	if !checksum.Matches(auth.Checksum, checksum.ForAuthorisation(current)) {
		return nil, g.wrongChecksum("authorisation", nil)
	}

	next := auth.Clone()
	next.ID = current.ID
	assignAuthorisationPsuID(next)
	truncateAuthorisationTimes(next)
	next.Revision = current.Revision + 1
	next.Checksum = checksum.ForAuthorisation(next)

	if err := g.repo.CompareAndSwapAuthorisation(ctx, next, current.Checksum); err != nil {
		if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
			return nil, g.wrongChecksum("authorisation", err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update authorisation")
	}
	stampAuthorisation(auth, next)
	return next, nil
}

func (g *Guarded) wrongChecksum(entity string, cause error) error {
	if g.metrics != nil {
		g.metrics.IncrementChecksumConflict(entity)
	}
	if cause == nil {
		cause = sentinel.ErrConflict
	}
	return dErrors.Wrap(cause, dErrors.CodeWrongChecksum, entity+" was modified concurrently")
}

func (g *Guarded) observe(operation string, start time.Time) {
	if g.metrics != nil {
		g.metrics.ObserveStoreOperationLatency(operation, time.Since(start).Seconds())
	}
}

// stamp copies the stored state back so the caller can keep writing through
// the same pointer.
func stamp(dst, src *models.Consent) {
	*dst = *src.Clone()
}

func stampAuthorisation(dst, src *models.Authorisation) {
	*dst = *src.Clone()
}

func assignPsuIDs(list []models.PsuData) {
	for i := range list {
		if list[i].ID == uuid.Nil {
			list[i].ID = uuid.New()
		}
	}
}

func assignAuthorisationPsuID(auth *models.Authorisation) {
	if auth.PsuData != nil && auth.PsuData.ID == uuid.Nil {
		auth.PsuData.ID = uuid.New()
	}
}

// Stored timestamps keep microsecond precision and validity is a calendar day,
// so values are normalised before the checksum is computed over them.
func truncateConsentTimes(c *models.Consent) {
	c.ValidUntil = models.Day(c.ValidUntil)
	c.CreationTimestamp = c.CreationTimestamp.Truncate(time.Microsecond)
	c.StatusChangeTimestamp = c.StatusChangeTimestamp.Truncate(time.Microsecond)
	c.LastActionDate = c.LastActionDate.Truncate(time.Microsecond)
}

func truncateAuthorisationTimes(a *models.Authorisation) {
	a.RedirectURLExpiresAt = a.RedirectURLExpiresAt.Truncate(time.Microsecond)
	a.AuthorisationExpiresAt = a.AuthorisationExpiresAt.Truncate(time.Microsecond)
	a.CreatedAt = a.CreatedAt.Truncate(time.Microsecond)
}
