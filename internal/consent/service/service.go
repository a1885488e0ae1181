package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cms/internal/consent/lifecycle"
	"cms/internal/consent/metrics"
	"cms/internal/consent/models"
	"cms/internal/consent/psu"
	"cms/internal/consent/quota"
	"cms/internal/platform/privacy"
	"cms/internal/platform/tracer"
	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/middleware/requesttime"
	"cms/pkg/platform/sentinel"
)

// Store is the read side of the repository plus the checksum-guarded write path.
// Error Contract:
// - Find* single-row lookups return sentinel.ErrNotFound when nothing matches
// - Writes return domain errors; a stale checksum is dErrors.CodeWrongChecksum
type Store interface {
	FindConsentByExternalID(ctx context.Context, externalID, instanceID string) (*models.Consent, error)
	FindConsentsByPsu(ctx context.Context, q models.PsuConsentQuery) ([]*models.Consent, error)
	FindOldConsents(ctx context.Context, q models.OldConsentQuery) ([]*models.Consent, error)
	FindAuthorisationByExternalID(ctx context.Context, externalID, instanceID string) (*models.Authorisation, error)
	FindAuthorisationsByParent(ctx context.Context, q models.ParentQuery) ([]*models.Authorisation, error)

	VerifyAndSave(ctx context.Context, consent *models.Consent) (*models.Consent, error)
	VerifyAndUpdate(ctx context.Context, consent *models.Consent) (*models.Consent, error)
	SaveAuthorisation(ctx context.Context, auth *models.Authorisation) (*models.Authorisation, error)
	VerifyAndUpdateAuthorisation(ctx context.Context, auth *models.Authorisation) (*models.Authorisation, error)
}

type Option func(*Service)

const (
	defaultRedirectTTL      = 10 * time.Minute
	defaultAuthorisationTTL = 24 * time.Hour
	terminateConcurrency    = 4
)

// Service is the consent lifecycle façade used by the AIS, PIS and PIIS flows.
//
// Every lookup is scoped by instance id. Missing or finalised entities are a
// business outcome (false or nil), never an error. Expiry, redirect expiry and
// checksum conflicts surface as domain errors and are never swallowed.
type Service struct {
	store          Store
	consents       *lifecycle.ConsentMachine
	authorisations *lifecycle.AuthorisationMachine
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         tracer.Tracer

	redirectTTL        time.Duration
	authorisationTTL   time.Duration
	maxConsentLifetime int
	expiredRetention   time.Duration
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:            store,
		logger:           logger,
		tracer:           tracer.NewNoop(),
		redirectTTL:      defaultRedirectTTL,
		authorisationTTL: defaultAuthorisationTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	machineOpts := []lifecycle.Option{lifecycle.WithLogger(svc.logger), lifecycle.WithMetrics(svc.metrics)}
	svc.consents = lifecycle.NewConsentMachine(store, machineOpts...)
	svc.authorisations = lifecycle.NewAuthorisationMachine(store, machineOpts...)
	return svc
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithRedirectTTL configures how long a new authorisation's redirect stays usable.
func WithRedirectTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.redirectTTL = ttl
		}
	}
}

// WithAuthorisationTTL configures how long a new authorisation may progress.
func WithAuthorisationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.authorisationTTL = ttl
		}
	}
}

// WithMaxConsentLifetime caps ValidUntil to today plus days. Zero disables the cap.
func WithMaxConsentLifetime(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.maxConsentLifetime = days
		}
	}
}

// WithExpiredRetention hides consents that expired longer ago than d. Zero keeps them visible.
func WithExpiredRetention(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.expiredRetention = d
		}
	}
}

// loadConsent returns nil without error when the consent does not exist.
func (s *Service) loadConsent(ctx context.Context, consentID, instanceID string) (*models.Consent, error) {
	consent, err := s.store.FindConsentByExternalID(ctx, consentID, instanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consent")
	}
	return consent, nil
}

// loadActualConsent loads the consent and expires it first when its validity has passed.
func (s *Service) loadActualConsent(ctx context.Context, consentID, instanceID string) (*models.Consent, error) {
	consent, err := s.loadConsent(ctx, consentID, instanceID)
	if err != nil || consent == nil {
		return nil, err
	}
	if _, err := s.consents.ExpireIfNeeded(ctx, consent); err != nil {
		return nil, err
	}
	return consent, nil
}

func (s *Service) loadAuthorisation(ctx context.Context, authorisationID, instanceID string) (*models.Authorisation, error) {
	auth, err := s.store.FindAuthorisationByExternalID(ctx, authorisationID, instanceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authorisation")
	}
	return auth, nil
}

func (s *Service) logOutcome(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg, args...)
}

// GetConsent returns the consent when it exists, has not been hidden by the
// expired-consent retention, and (for a non-empty psuData) lists that PSU.
func (s *Service) GetConsent(ctx context.Context, psuData *models.PsuData, consentID, instanceID string) (_ *models.Consent, err error) {
	ctx, span := s.tracer.Start(ctx, "consent.get", tracer.String("consent_id", consentID))
	defer func() { span.End(err) }()

	consent, err := s.loadActualConsent(ctx, consentID, instanceID)
	if err != nil || consent == nil {
		return nil, err
	}
	if s.isBeyondRetention(ctx, consent) {
		s.logOutcome(ctx, "consent hidden after retention", "consent_id", consentID, "instance_id", instanceID)
		return nil, nil
	}
	if !psuData.IsEmpty() && !psu.ContainsIdentity(consent.PsuDataList, psuData) {
		s.logOutcome(ctx, "consent not visible to psu", "consent_id", consentID, "instance_id", instanceID)
		return nil, nil
	}
	return consent, nil
}

func (s *Service) isBeyondRetention(ctx context.Context, consent *models.Consent) bool {
	if s.expiredRetention <= 0 || consent.Status != models.ConsentStatusExpired {
		return false
	}
	return requesttime.Now(ctx).Sub(consent.StatusChangeTimestamp) > s.expiredRetention
}

// GetConsentStatus returns the current status, expiring the consent on read.
func (s *Service) GetConsentStatus(ctx context.Context, consentID, instanceID string) (models.ConsentStatus, bool, error) {
	consent, err := s.loadActualConsent(ctx, consentID, instanceID)
	if err != nil || consent == nil {
		return "", false, err
	}
	return consent.Status, true, nil
}

// ConfirmConsent moves the consent to VALID and closes the recurring consents it replaces.
func (s *Service) ConfirmConsent(ctx context.Context, consentID, instanceID string) (bool, error) {
	return s.changeStatus(ctx, "consent.confirm", consentID, instanceID, func(ctx context.Context, consent *models.Consent) (bool, error) {
		ok, err := s.consents.Confirm(ctx, consent)
		if err != nil || !ok {
			return ok, err
		}
		if _, err := s.terminateReplaced(ctx, consent, instanceID); err != nil {
			return false, err
		}
		return true, nil
	})
}

// RejectConsent moves the consent to REJECTED.
func (s *Service) RejectConsent(ctx context.Context, consentID, instanceID string) (bool, error) {
	return s.changeStatus(ctx, "consent.reject", consentID, instanceID, s.consents.Reject)
}

// RevokeConsent moves the consent to REVOKED_BY_PSU.
func (s *Service) RevokeConsent(ctx context.Context, consentID, instanceID string) (bool, error) {
	return s.changeStatus(ctx, "consent.revoke", consentID, instanceID, s.consents.Revoke)
}

// AuthorisePartiallyConsent moves the consent to PARTIALLY_AUTHORISED.
func (s *Service) AuthorisePartiallyConsent(ctx context.Context, consentID, instanceID string) (bool, error) {
	return s.changeStatus(ctx, "consent.authorise_partially", consentID, instanceID, s.consents.AuthorisePartially)
}

func (s *Service) changeStatus(ctx context.Context, op, consentID, instanceID string, transition func(context.Context, *models.Consent) (bool, error)) (_ bool, err error) {
	ctx, span := s.tracer.Start(ctx, op,
		tracer.String("consent_id", consentID),
		tracer.String("instance_id", instanceID),
	)
	defer func() { span.End(err) }()

	consent, err := s.loadActualConsent(ctx, consentID, instanceID)
	if err != nil {
		return false, err
	}
	if consent == nil {
		s.logOutcome(ctx, "consent not found", "operation", op, "consent_id", consentID, "instance_id", instanceID)
		return false, nil
	}
	return transition(ctx, consent)
}

// UpdateAuthorisationStatus progresses one SCA flow of the consent.
//
// It returns false when the consent is missing or finalised, the authorisation
// is missing or belongs to another consent, the caller's PSU differs from the
// authorisation's PSU, or the authorisation is already finalised.
func (s *Service) UpdateAuthorisationStatus(ctx context.Context, psuData *models.PsuData, consentID, authorisationID string, status models.ScaStatus, instanceID string, authData *models.AuthenticationData) (_ bool, err error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.update_status",
		tracer.String("consent_id", consentID),
		tracer.String("authorisation_id", authorisationID),
		tracer.String("sca_status", string(status)),
	)
	defer func() { span.End(err) }()

	consent, err := s.loadActualConsent(ctx, consentID, instanceID)
	if err != nil {
		return false, err
	}
	if consent.IsFinalised() {
		s.logOutcome(ctx, "consent not found or finalised", "consent_id", consentID, "instance_id", instanceID)
		return false, nil
	}
	auth, err := s.loadAuthorisation(ctx, authorisationID, instanceID)
	if err != nil {
		return false, err
	}
	if auth == nil || auth.ParentExternalID != consent.ExternalID {
		s.logOutcome(ctx, "authorisation not found for consent",
			"consent_id", consentID, "authorisation_id", authorisationID, "instance_id", instanceID)
		return false, nil
	}
	if !psuData.IsEmpty() && auth.PsuData != nil && !psu.Matches(psuData, auth.PsuData) {
		span.SetAttributes(tracer.String("psu_hash", privacy.HashIdentifier(psuData.PsuID)))
		s.logOutcome(ctx, "psu does not own authorisation",
			"authorisation_id", authorisationID, "instance_id", instanceID, "psu", psuData)
		return false, nil
	}
	return s.authorisations.UpdateScaStatusAndAuthenticationData(ctx, status, auth, authData)
}

// UpdatePsuDataInConsent binds the PSU to the authorisation and adds it to the
// parent consent's PSU list when it is new there.
func (s *Service) UpdatePsuDataInConsent(ctx context.Context, psuData *models.PsuData, authorisationID, instanceID string) (_ bool, err error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.update_psu", tracer.String("authorisation_id", authorisationID))
	defer func() { span.End(err) }()

	if psuData.IsEmpty() {
		return false, nil
	}
	auth, err := s.loadAuthorisation(ctx, authorisationID, instanceID)
	if err != nil {
		return false, err
	}
	if auth.IsFinalised() {
		s.logOutcome(ctx, "authorisation not found or finalised", "authorisation_id", authorisationID, "instance_id", instanceID)
		return false, nil
	}
	if auth.IsExpiredAt(requesttime.Now(ctx)) {
		return false, dErrors.New(dErrors.CodeAuthorisationExpired, "authorisation "+authorisationID+" has expired")
	}
	if auth.PsuData != nil && !psu.Matches(auth.PsuData, psuData) {
		s.logOutcome(ctx, "authorisation already bound to another psu", "authorisation_id", authorisationID, "instance_id", instanceID)
		return false, nil
	}

	consent, err := s.loadActualConsent(ctx, auth.ParentExternalID, instanceID)
	if err != nil {
		return false, err
	}
	if consent.IsFinalised() {
		s.logOutcome(ctx, "parent consent not found or finalised", "consent_id", auth.ParentExternalID, "instance_id", instanceID)
		return false, nil
	}

	if psu.IsPsuDataNew(psuData, consent.PsuDataList) {
		consent.PsuDataList = psu.EnrichPsuData(psuData, consent.PsuDataList)
		consent.LastActionDate = requesttime.Now(ctx)
		if _, err := s.store.VerifyAndUpdate(ctx, consent); err != nil {
			return false, err
		}
	}
	if auth.PsuData != nil {
		refreshed := *psuData
		refreshed.ID = auth.PsuData.ID
		if refreshed == *auth.PsuData {
			return true, nil
		}
		auth.PsuData = &refreshed
	} else {
		auth.PsuData = psu.DefinePsuDataForAuthorisation(psuData, consent.PsuDataList)
	}
	if _, err := s.store.VerifyAndUpdateAuthorisation(ctx, auth); err != nil {
		return false, err
	}
	return true, nil
}

// CheckRedirectAndGetConsent validates the redirect window of an authorisation
// and returns its consent with the TPP redirect targets.
func (s *Service) CheckRedirectAndGetConsent(ctx context.Context, authorisationID, instanceID string) (_ *RedirectResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.check_redirect", tracer.String("authorisation_id", authorisationID))
	defer func() { span.End(err) }()

	auth, err := s.loadAuthorisation(ctx, authorisationID, instanceID)
	if err != nil {
		return nil, err
	}
	consent, err := s.checkRedirect(ctx, auth)
	if err != nil || consent == nil {
		return nil, err
	}
	resp := &RedirectResponse{
		Consent:           consent,
		AuthorisationID:   auth.ExternalID,
		TppOkRedirectURI:  auth.TppOkRedirectURI,
		TppNokRedirectURI: auth.TppNokRedirectURI,
	}
	if resp.TppOkRedirectURI == "" {
		resp.TppOkRedirectURI = consent.TppInfo.RedirectURI
	}
	if resp.TppNokRedirectURI == "" {
		resp.TppNokRedirectURI = consent.TppInfo.NokRedirectURI
	}
	return resp, nil
}

// CheckRedirectAndGetPaymentForCancellation is the payment-cancellation
// variant. Only PIS_CANCELLATION authorisations qualify and no redirect
// targets are returned.
func (s *Service) CheckRedirectAndGetPaymentForCancellation(ctx context.Context, authorisationID, instanceID string) (_ *RedirectResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.check_cancellation_redirect", tracer.String("authorisation_id", authorisationID))
	defer func() { span.End(err) }()

	auth, err := s.loadAuthorisation(ctx, authorisationID, instanceID)
	if err != nil || auth == nil {
		return nil, err
	}
	if auth.Type != models.AuthorisationTypePISCancellation {
		return nil, nil
	}
	consent, err := s.checkRedirect(ctx, auth)
	if err != nil || consent == nil {
		return nil, err
	}
	return &RedirectResponse{Consent: consent, AuthorisationID: auth.ExternalID}, nil
}

// checkRedirect returns the parent consent of a still-open authorisation, or
// nil when the authorisation or its consent is gone or the flow has finished.
func (s *Service) checkRedirect(ctx context.Context, auth *models.Authorisation) (*models.Consent, error) {
	if auth.IsFinalised() {
		s.logOutcome(ctx, "authorisation not found or finalised")
		return nil, nil
	}
	if err := s.authorisations.CheckRedirect(ctx, auth); err != nil {
		return nil, err
	}
	return s.loadConsent(ctx, auth.ParentExternalID, auth.InstanceID)
}

// GetPsuDataAuthorisations lists the PSU-bearing authorisations of a consent.
// found is false only when the consent itself does not exist.
func (s *Service) GetPsuDataAuthorisations(ctx context.Context, consentID, instanceID string, page models.Page) (_ []PsuDataAuthorisation, found bool, err error) {
	consent, err := s.loadConsent(ctx, consentID, instanceID)
	if err != nil || consent == nil {
		return nil, false, err
	}
	auths, err := s.store.FindAuthorisationsByParent(ctx, models.ParentQuery{
		ParentExternalID: consentID,
		InstanceID:       instanceID,
	})
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list authorisations")
	}
	out := make([]PsuDataAuthorisation, 0, len(auths))
	for _, a := range auths {
		if a.PsuData == nil {
			continue
		}
		out = append(out, PsuDataAuthorisation{
			AuthorisationID: a.ExternalID,
			Type:            a.Type,
			ScaStatus:       a.ScaStatus,
			PsuData:         *a.PsuData,
		})
	}
	start, end := page.Bounds(len(out))
	return out[start:end], true, nil
}

// UpdateAccountAccessInConsent replaces the access scope, validity and daily
// quota. The consent becomes one-off and its usage counters restart.
func (s *Service) UpdateAccountAccessInConsent(ctx context.Context, consentID string, req *models.UpdateAccountAccessRequest, instanceID string) (_ bool, err error) {
	ctx, span := s.tracer.Start(ctx, "consent.update_access", tracer.String("consent_id", consentID))
	defer func() { span.End(err) }()

	if req == nil {
		return false, nil
	}
	if err := req.Validate(); err != nil {
		s.logOutcome(ctx, "invalid access update", "consent_id", consentID, "error", err)
		return false, nil
	}
	now := requesttime.Now(ctx)
	if models.Day(req.ValidUntil).Before(models.Day(now)) {
		s.logOutcome(ctx, "access update valid until in the past", "consent_id", consentID, "instance_id", instanceID)
		return false, nil
	}

	consent, err := s.loadActualConsent(ctx, consentID, instanceID)
	if err != nil {
		return false, err
	}
	if consent.IsFinalised() {
		s.logOutcome(ctx, "consent not found or finalised", "consent_id", consentID, "instance_id", instanceID)
		return false, nil
	}

	consent.AspspAccountAccesses = req.Access.Clone()
	consent.ValidUntil = s.capValidUntil(now, req.ValidUntil)
	consent.FrequencyPerDay = req.FrequencyPerDay
	consent.RecurringIndicator = false
	consent.LastActionDate = now
	quota.Reset(consent)

	if _, err := s.store.VerifyAndUpdate(ctx, consent); err != nil {
		return false, err
	}
	return true, nil
}

// capValidUntil limits the validity date to the configured maximum lifetime.
func (s *Service) capValidUntil(now, validUntil time.Time) time.Time {
	validUntil = models.Day(validUntil)
	if s.maxConsentLifetime <= 0 {
		return validUntil
	}
	limit := models.Day(now).AddDate(0, 0, s.maxConsentLifetime-1)
	if validUntil.After(limit) {
		return limit
	}
	return validUntil
}

// RemainingQuota returns the accesses left on the consent for day.
func (s *Service) RemainingQuota(ctx context.Context, consentID, instanceID string, day time.Time) (int, bool, error) {
	consent, err := s.loadConsent(ctx, consentID, instanceID)
	if err != nil || consent == nil {
		return 0, false, err
	}
	return quota.RemainingQuota(consent, day), true, nil
}

// CreateConsent stores a new consent in RECEIVED.
func (s *Service) CreateConsent(ctx context.Context, req *models.CreateConsentRequest) (_ *models.Consent, err error) {
	ctx, span := s.tracer.Start(ctx, "consent.create")
	defer func() { span.End(err) }()

	if err := req.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	now := requesttime.Now(ctx)
	if models.Day(req.ValidUntil).Before(models.Day(now)) {
		return nil, dErrors.New(dErrors.CodeValidation, "valid until must not be in the past")
	}
	data, err := models.EncodeConsentData(req.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode consent data")
	}

	var psus []models.PsuData
	for i := range req.PsuDataList {
		if req.PsuDataList[i].IsEmpty() {
			continue
		}
		psus = psu.EnrichPsuData(&req.PsuDataList[i], psus)
	}

	consent := &models.Consent{
		ExternalID:            uuid.NewString(),
		InstanceID:            req.InstanceID,
		Type:                  req.Type,
		Status:                models.ConsentStatusReceived,
		ValidUntil:            s.capValidUntil(now, req.ValidUntil),
		FrequencyPerDay:       req.FrequencyPerDay,
		Usages:                map[string]int{},
		PsuDataList:           psus,
		RecurringIndicator:    req.RecurringIndicator,
		TppAccountAccesses:    req.TppAccess.Clone(),
		TppInfo:               req.TppInfo,
		Data:                  data,
		CreationTimestamp:     now,
		StatusChangeTimestamp: now,
		LastActionDate:        now,
	}
	saved, err := s.store.VerifyAndSave(ctx, consent)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String("consent_id", saved.ExternalID))
	return saved, nil
}

// CreateAuthorisation starts a new SCA flow for an existing, non-finalised
// consent. Earlier open flows of the same type and PSU are failed first.
func (s *Service) CreateAuthorisation(ctx context.Context, req *models.CreateAuthorisationRequest) (_ *models.Authorisation, err error) {
	ctx, span := s.tracer.Start(ctx, "authorisation.create")
	defer func() { span.End(err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	consent, err := s.loadActualConsent(ctx, req.ParentExternalID, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if consent == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if consent.IsFinalised() {
		return nil, dErrors.New(dErrors.CodeConflict, "consent is finalised")
	}

	if req.PsuData != nil {
		if err := s.closePreviousAuthorisations(ctx, req); err != nil {
			return nil, err
		}
		if psu.IsPsuDataNew(req.PsuData, consent.PsuDataList) {
			consent.PsuDataList = psu.EnrichPsuData(req.PsuData, consent.PsuDataList)
			if _, err := s.store.VerifyAndUpdate(ctx, consent); err != nil {
				return nil, err
			}
		}
	}

	now := requesttime.Now(ctx)
	auth := &models.Authorisation{
		ExternalID:             uuid.NewString(),
		ParentExternalID:       consent.ExternalID,
		InstanceID:             consent.InstanceID,
		Type:                   req.Type,
		ScaStatus:              req.ScaStatus,
		PsuData:                psu.DefinePsuDataForAuthorisation(req.PsuData, consent.PsuDataList),
		RedirectURLExpiresAt:   now.Add(s.redirectTTL),
		AuthorisationExpiresAt: now.Add(s.authorisationTTL),
		TppOkRedirectURI:       req.TppOkRedirectURI,
		TppNokRedirectURI:      req.TppNokRedirectURI,
		CreatedAt:              now,
	}
	saved, err := s.store.SaveAuthorisation(ctx, auth)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String("authorisation_id", saved.ExternalID))
	return saved, nil
}

func (s *Service) closePreviousAuthorisations(ctx context.Context, req *models.CreateAuthorisationRequest) error {
	previous, err := s.store.FindAuthorisationsByParent(ctx, models.ParentQuery{
		ParentExternalID: req.ParentExternalID,
		InstanceID:       req.InstanceID,
		Type:             req.Type,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list authorisations")
	}
	for _, a := range previous {
		if a.IsFinalised() || !psu.Matches(a.PsuData, req.PsuData) {
			continue
		}
		if _, err := s.authorisations.FailAuthorisation(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// GetAuthorisation returns the authorisation or nil when it does not exist.
func (s *Service) GetAuthorisation(ctx context.Context, authorisationID, instanceID string) (*models.Authorisation, error) {
	return s.loadAuthorisation(ctx, authorisationID, instanceID)
}

// GetConsentsForPsu lists the consents that name the PSU, expiring stale ones on read.
func (s *Service) GetConsentsForPsu(ctx context.Context, psuData *models.PsuData, instanceID string, page models.Page) ([]*models.Consent, error) {
	if psuData.IsEmpty() {
		return nil, nil
	}
	consents, err := s.store.FindConsentsByPsu(ctx, models.PsuConsentQuery{
		Psu:        *psuData,
		InstanceID: instanceID,
		Page:       page,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	out := make([]*models.Consent, 0, len(consents))
	for _, c := range consents {
		if _, err := s.consents.ExpireIfNeeded(ctx, c); err != nil {
			return nil, err
		}
		if s.isBeyondRetention(ctx, c) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// TerminateOldConsents closes the earlier recurring consents that a new
// recurring consent replaces: same TPP, instance and type, and the same set of
// PSUs. Consents not yet valid are rejected, valid ones terminated by the TPP.
// It reports whether any consent was closed.
func (s *Service) TerminateOldConsents(ctx context.Context, newConsentID, instanceID string) (_ bool, err error) {
	ctx, span := s.tracer.Start(ctx, "consent.terminate_old", tracer.String("consent_id", newConsentID))
	defer func() { span.End(err) }()

	consent, err := s.loadConsent(ctx, newConsentID, instanceID)
	if err != nil || consent == nil {
		return false, err
	}
	return s.terminateReplaced(ctx, consent, instanceID)
}

func (s *Service) terminateReplaced(ctx context.Context, consent *models.Consent, instanceID string) (bool, error) {
	if !consent.RecurringIndicator || len(consent.PsuDataList) == 0 || consent.TppInfo.AuthorisationNumber == "" {
		return false, nil
	}
	olds, err := s.store.FindOldConsents(ctx, models.OldConsentQuery{
		TppAuthorisationNumber: consent.TppInfo.AuthorisationNumber,
		InstanceID:             instanceID,
		Type:                   consent.Type,
		ExcludeExternalID:      consent.ExternalID,
	})
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find old consents")
	}

	var targets []*models.Consent
	for _, old := range olds {
		if old.RecurringIndicator && psu.IsPsuDataListEqual(old.PsuDataList, consent.PsuDataList) {
			targets = append(targets, old)
		}
	}
	if len(targets) == 0 {
		return false, nil
	}

	closed := make([]bool, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(terminateConcurrency)
	for i, old := range targets {
		g.Go(func() error {
			closeFn := s.consents.Terminate
			if old.Status == models.ConsentStatusReceived || old.Status == models.ConsentStatusPartiallyAuthorised {
				closeFn = s.consents.Reject
			}
			ok, err := closeFn(gctx, old)
			closed[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	count := 0
	for _, ok := range closed {
		if ok {
			count++
		}
	}
	if s.metrics != nil {
		s.metrics.AddOldConsentsTerminated(count)
	}
	s.logOutcome(ctx, "old consents closed", "consent_id", consent.ExternalID, "instance_id", instanceID, "count", count)
	return count > 0, nil
}
