package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cms/internal/consent/lifecycle"
	"cms/internal/consent/models"
	"cms/internal/consent/service/mocks"
	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/middleware/requesttime"
	"cms/pkg/platform/sentinel"
)

const instance = "UNDEFINED"

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockStore
	service   *Service
	now       time.Time
	ctx       context.Context
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.service = New(
		s.mockStore,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithMaxConsentLifetime(90),
	)
	s.now = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s.ctx = requesttime.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) consent(status models.ConsentStatus) *models.Consent {
	return &models.Consent{
		ExternalID:         "consent-1",
		InstanceID:         instance,
		Type:               models.ConsentTypeAIS,
		Status:             status,
		ValidUntil:         models.Day(s.now).AddDate(0, 1, 0),
		FrequencyPerDay:    4,
		Usages:             map[string]int{"2026-03-02": 2},
		RecurringIndicator: true,
		Revision:           3,
		Checksum:           "001_token",
	}
}

func (s *ServiceSuite) authorisation(status models.ScaStatus) *models.Authorisation {
	return &models.Authorisation{
		ExternalID:             "auth-1",
		ParentExternalID:       "consent-1",
		InstanceID:             instance,
		Type:                   models.AuthorisationTypeAIS,
		ScaStatus:              status,
		RedirectURLExpiresAt:   s.now.Add(5 * time.Minute),
		AuthorisationExpiresAt: s.now.Add(time.Hour),
		TppNokRedirectURI:      "https://tpp.example/nok",
		Checksum:               "001_auth",
	}
}

func (s *ServiceSuite) expectConsent(c *models.Consent) {
	s.mockStore.EXPECT().FindConsentByExternalID(gomock.Any(), c.ExternalID, c.InstanceID).Return(c, nil)
}

func (s *ServiceSuite) expectAuthorisation(a *models.Authorisation) {
	s.mockStore.EXPECT().FindAuthorisationByExternalID(gomock.Any(), a.ExternalID, a.InstanceID).Return(a, nil)
}

func (s *ServiceSuite) TestStatusChange_UnknownConsent() {
	s.mockStore.EXPECT().FindConsentByExternalID(gomock.Any(), "unknown-id", instance).
		Return(nil, sentinel.ErrNotFound)

	ok, err := s.service.ConfirmConsent(s.ctx, "unknown-id", instance)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestStatusChange_StoreFailureIsInternal() {
	s.mockStore.EXPECT().FindConsentByExternalID(gomock.Any(), "consent-1", instance).
		Return(nil, errors.New("connection reset"))

	ok, err := s.service.RevokeConsent(s.ctx, "consent-1", instance)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestStatusChange_FinalisedConsentIsNotWritten() {
	for _, status := range []models.ConsentStatus{
		models.ConsentStatusRejected,
		models.ConsentStatusRevokedByPsu,
		models.ConsentStatusExpired,
		models.ConsentStatusTerminatedByTpp,
	} {
		s.Run(string(status), func() {
			s.expectConsent(s.consent(status))

			ok, err := s.service.ConfirmConsent(s.ctx, "consent-1", instance)
			s.Require().NoError(err)
			s.False(ok)
		})
	}
}

func (s *ServiceSuite) TestConfirmConsent_WritesValid() {
	s.expectConsent(s.consent(models.ConsentStatusReceived))
	s.mockStore.EXPECT().VerifyAndUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *models.Consent) (*models.Consent, error) {
			s.Equal(models.ConsentStatusValid, c.Status)
			s.Equal(s.now, c.StatusChangeTimestamp)
			s.Equal("001_token", c.Checksum, "caller token must reach the guarded store")
			return c, nil
		})

	ok, err := s.service.ConfirmConsent(s.ctx, "consent-1", instance)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestStatusChange_WrongChecksumPropagates() {
	s.expectConsent(s.consent(models.ConsentStatusReceived))
	s.mockStore.EXPECT().VerifyAndUpdate(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeWrongChecksum, "checksum mismatch"))

	ok, err := s.service.RejectConsent(s.ctx, "consent-1", instance)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeWrongChecksum))
}

func (s *ServiceSuite) TestGetConsentStatus_ExpiresOnRead() {
	c := s.consent(models.ConsentStatusValid)
	c.ValidUntil = models.Day(s.now).AddDate(0, 0, -1)
	s.expectConsent(c)
	s.mockStore.EXPECT().VerifyAndUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *models.Consent) (*models.Consent, error) {
			s.Equal(models.ConsentStatusExpired, c.Status)
			return c, nil
		})

	status, found, err := s.service.GetConsentStatus(s.ctx, "consent-1", instance)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(models.ConsentStatusExpired, status)
}

func (s *ServiceSuite) TestGetConsentStatus_ValidUntilTodayStaysValid() {
	c := s.consent(models.ConsentStatusValid)
	c.ValidUntil = models.Day(s.now)
	s.expectConsent(c)

	status, found, err := s.service.GetConsentStatus(s.ctx, "consent-1", instance)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(models.ConsentStatusValid, status)
}

func (s *ServiceSuite) TestUpdateAuthorisationStatus() {
	s.Run("authorisation of another consent", func() {
		auth := s.authorisation(models.ScaStatusReceived)
		auth.ParentExternalID = "consent-2"
		s.expectConsent(s.consent(models.ConsentStatusReceived))
		s.expectAuthorisation(auth)

		ok, err := s.service.UpdateAuthorisationStatus(s.ctx, nil, "consent-1", "auth-1", models.ScaStatusPsuAuthenticated, instance, nil)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("finalised consent skips authorisation lookup", func() {
		s.expectConsent(s.consent(models.ConsentStatusRevokedByPsu))

		ok, err := s.service.UpdateAuthorisationStatus(s.ctx, nil, "consent-1", "auth-1", models.ScaStatusPsuAuthenticated, instance, nil)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("finalised authorisation is frozen", func() {
		s.expectConsent(s.consent(models.ConsentStatusReceived))
		s.expectAuthorisation(s.authorisation(models.ScaStatusFinalised))

		ok, err := s.service.UpdateAuthorisationStatus(s.ctx, nil, "consent-1", "auth-1", models.ScaStatusFailed, instance, nil)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("psu differs from the bound psu", func() {
		auth := s.authorisation(models.ScaStatusPsuIdentified)
		auth.PsuData = &models.PsuData{PsuID: "alice"}
		s.expectConsent(s.consent(models.ConsentStatusReceived))
		s.expectAuthorisation(auth)

		ok, err := s.service.UpdateAuthorisationStatus(s.ctx, &models.PsuData{PsuID: "bob"}, "consent-1", "auth-1", models.ScaStatusPsuAuthenticated, instance, nil)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("expired authorisation", func() {
		auth := s.authorisation(models.ScaStatusPsuIdentified)
		auth.AuthorisationExpiresAt = s.now.Add(-time.Second)
		s.expectConsent(s.consent(models.ConsentStatusReceived))
		s.expectAuthorisation(auth)

		ok, err := s.service.UpdateAuthorisationStatus(s.ctx, nil, "consent-1", "auth-1", models.ScaStatusPsuAuthenticated, instance, nil)
		s.False(ok)
		s.True(dErrors.HasCode(err, dErrors.CodeAuthorisationExpired))
	})

	s.Run("merges authentication data", func() {
		auth := s.authorisation(models.ScaStatusPsuIdentified)
		auth.AuthenticationMethodID = "sms"
		s.expectConsent(s.consent(models.ConsentStatusReceived))
		s.expectAuthorisation(auth)
		s.mockStore.EXPECT().VerifyAndUpdateAuthorisation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Authorisation) (*models.Authorisation, error) {
				s.Equal(models.ScaStatusScaMethodSelected, a.ScaStatus)
				s.Equal("sms", a.AuthenticationMethodID)
				s.Equal("123456", a.ScaAuthenticationData)
				return a, nil
			})

		ok, err := s.service.UpdateAuthorisationStatus(s.ctx, nil, "consent-1", "auth-1", models.ScaStatusScaMethodSelected, instance,
			&models.AuthenticationData{ScaAuthenticationData: "123456"})
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *ServiceSuite) TestCheckRedirectAndGetConsent() {
	s.Run("expired redirect fails the authorisation", func() {
		auth := s.authorisation(models.ScaStatusReceived)
		auth.RedirectURLExpiresAt = s.now.Add(-time.Minute)
		s.expectAuthorisation(auth)
		s.mockStore.EXPECT().VerifyAndUpdateAuthorisation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Authorisation) (*models.Authorisation, error) {
				s.Equal(models.ScaStatusFailed, a.ScaStatus)
				return a, nil
			})

		resp, err := s.service.CheckRedirectAndGetConsent(s.ctx, "auth-1", instance)
		s.Nil(resp)
		var redirectErr *lifecycle.RedirectExpiredError
		s.Require().ErrorAs(err, &redirectErr)
		s.Equal("https://tpp.example/nok", redirectErr.NokRedirectURI)
		s.True(dErrors.HasCode(err, dErrors.CodeRedirectExpired))
	})

	s.Run("open redirect falls back to tpp info uris", func() {
		c := s.consent(models.ConsentStatusReceived)
		c.TppInfo = models.TppInfo{RedirectURI: "https://tpp.example/ok", NokRedirectURI: "https://tpp.example/default-nok"}
		s.expectAuthorisation(s.authorisation(models.ScaStatusReceived))
		s.expectConsent(c)

		resp, err := s.service.CheckRedirectAndGetConsent(s.ctx, "auth-1", instance)
		s.Require().NoError(err)
		s.Require().NotNil(resp)
		s.Equal("auth-1", resp.AuthorisationID)
		s.Equal("https://tpp.example/ok", resp.TppOkRedirectURI)
		s.Equal("https://tpp.example/nok", resp.TppNokRedirectURI)
	})

	s.Run("unknown authorisation", func() {
		s.mockStore.EXPECT().FindAuthorisationByExternalID(gomock.Any(), "nope", instance).Return(nil, sentinel.ErrNotFound)

		resp, err := s.service.CheckRedirectAndGetConsent(s.ctx, "nope", instance)
		s.Require().NoError(err)
		s.Nil(resp)
	})
}

func (s *ServiceSuite) TestCheckRedirectAndGetPaymentForCancellation_RequiresCancellationType() {
	s.expectAuthorisation(s.authorisation(models.ScaStatusReceived))

	resp, err := s.service.CheckRedirectAndGetPaymentForCancellation(s.ctx, "auth-1", instance)
	s.Require().NoError(err)
	s.Nil(resp)
}

func (s *ServiceSuite) TestUpdateAccountAccessInConsent() {
	s.Run("valid until in the past touches nothing", func() {
		req := &models.UpdateAccountAccessRequest{
			ValidUntil:      models.Day(s.now).AddDate(0, 0, -1),
			FrequencyPerDay: 4,
		}

		ok, err := s.service.UpdateAccountAccessInConsent(s.ctx, "consent-1", req, instance)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("nil request", func() {
		ok, err := s.service.UpdateAccountAccessInConsent(s.ctx, "consent-1", nil, instance)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("replaces access and resets usage", func() {
		s.expectConsent(s.consent(models.ConsentStatusValid))
		s.mockStore.EXPECT().VerifyAndUpdate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, c *models.Consent) (*models.Consent, error) {
				s.False(c.RecurringIndicator)
				s.Empty(c.Usages)
				s.Equal(1, c.FrequencyPerDay)
				s.Equal([]models.AccountReference{{IBAN: "DE02100100109307118603", Currency: "EUR"}}, c.AspspAccountAccesses.Accounts)
				s.Equal(models.Day(s.now).AddDate(0, 0, 89), c.ValidUntil, "validity capped to the max lifetime")
				return c, nil
			})

		req := &models.UpdateAccountAccessRequest{
			Access: models.AccountAccess{
				Accounts: []models.AccountReference{{IBAN: "DE02100100109307118603", Currency: "EUR"}},
			},
			ValidUntil:      s.now.AddDate(1, 0, 0),
			FrequencyPerDay: 1,
		}
		ok, err := s.service.UpdateAccountAccessInConsent(s.ctx, "consent-1", req, instance)
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *ServiceSuite) TestUpdatePsuDataInConsent_ExpiredAuthorisation() {
	auth := s.authorisation(models.ScaStatusReceived)
	auth.AuthorisationExpiresAt = s.now.Add(-time.Minute)
	s.expectAuthorisation(auth)

	ok, err := s.service.UpdatePsuDataInConsent(s.ctx, &models.PsuData{PsuID: "alice"}, "auth-1", instance)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthorisationExpired))
}

func (s *ServiceSuite) TestUpdatePsuDataInConsent_BindsNewPsu() {
	s.expectAuthorisation(s.authorisation(models.ScaStatusReceived))
	s.expectConsent(s.consent(models.ConsentStatusReceived))
	gomock.InOrder(
		s.mockStore.EXPECT().VerifyAndUpdate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, c *models.Consent) (*models.Consent, error) {
				s.Require().Len(c.PsuDataList, 1)
				s.Equal("alice", c.PsuDataList[0].PsuID)
				return c, nil
			}),
		s.mockStore.EXPECT().VerifyAndUpdateAuthorisation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Authorisation) (*models.Authorisation, error) {
				s.Require().NotNil(a.PsuData)
				s.Equal("alice", a.PsuData.PsuID)
				return a, nil
			}),
	)

	ok, err := s.service.UpdatePsuDataInConsent(s.ctx, &models.PsuData{PsuID: "alice"}, "auth-1", instance)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestUpdatePsuDataInConsent_LostAuthorisationWriteKeepsConsentWrite() {
	s.expectAuthorisation(s.authorisation(models.ScaStatusReceived))
	s.expectConsent(s.consent(models.ConsentStatusReceived))
	gomock.InOrder(
		s.mockStore.EXPECT().VerifyAndUpdate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, c *models.Consent) (*models.Consent, error) {
				return c, nil
			}),
		s.mockStore.EXPECT().VerifyAndUpdateAuthorisation(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeWrongChecksum, "checksum mismatch")),
	)

	ok, err := s.service.UpdatePsuDataInConsent(s.ctx, &models.PsuData{PsuID: "alice"}, "auth-1", instance)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeWrongChecksum))
}

func (s *ServiceSuite) TestCreateConsent_Validation() {
	_, err := s.service.CreateConsent(s.ctx, &models.CreateConsentRequest{
		InstanceID:      instance,
		Type:            models.ConsentTypeAIS,
		ValidUntil:      s.now.AddDate(0, 0, 10),
		FrequencyPerDay: 4,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "missing tpp authorisation number")

	_, err = s.service.CreateConsent(s.ctx, &models.CreateConsentRequest{
		InstanceID:      instance,
		Type:            models.ConsentTypeAIS,
		ValidUntil:      s.now.AddDate(0, 0, -1),
		FrequencyPerDay: 4,
		TppInfo:         models.TppInfo{AuthorisationNumber: "PSDDE-BAFIN-123"},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "past validity")
}

func (s *ServiceSuite) TestCreateAuthorisation_FinalisedConsent() {
	s.expectConsent(s.consent(models.ConsentStatusRejected))

	_, err := s.service.CreateAuthorisation(s.ctx, &models.CreateAuthorisationRequest{
		ParentExternalID: "consent-1",
		InstanceID:       instance,
		Type:             models.AuthorisationTypeAIS,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestCapValidUntil(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)

	unlimited := New(nil, nil)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		unlimited.capValidUntil(now, time.Date(2030, 1, 1, 15, 0, 0, 0, time.UTC)))

	capped := New(nil, nil, WithMaxConsentLifetime(1))
	require.Equal(t, models.Day(now), capped.capValidUntil(now, now.AddDate(0, 0, 5)),
		"a one-day lifetime ends today")
}
