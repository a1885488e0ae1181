package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cms/internal/consent/models"
	"cms/internal/consent/store"
	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/middleware/requesttime"
)

type ConsentMachineSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	guarded *store.Guarded
	machine *ConsentMachine
}

func TestConsentMachineSuite(t *testing.T) {
	suite.Run(t, new(ConsentMachineSuite))
}

func (s *ConsentMachineSuite) SetupTest() {
	s.now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	s.ctx = requesttime.WithTime(context.Background(), s.now)
	s.guarded = store.NewGuarded(store.NewInMemory())
	s.machine = NewConsentMachine(s.guarded)
}

func (s *ConsentMachineSuite) seed(status models.ConsentStatus) *models.Consent {
	c := &models.Consent{
		ExternalID:      uuid.NewString(),
		InstanceID:      "UNDEFINED",
		Type:            models.ConsentTypeAIS,
		Status:          status,
		ValidUntil:      s.now.AddDate(0, 1, 0),
		FrequencyPerDay: 4,
	}
	saved, err := s.guarded.VerifyAndSave(s.ctx, c)
	s.Require().NoError(err)
	return saved
}

func (s *ConsentMachineSuite) reload(c *models.Consent) *models.Consent {
	got, err := s.guarded.FindConsentByExternalID(s.ctx, c.ExternalID, c.InstanceID)
	s.Require().NoError(err)
	return got
}

func (s *ConsentMachineSuite) TestAuthorisePartiallyFromReceived() {
	c := s.seed(models.ConsentStatusReceived)
	s.Require().False(c.MultilevelScaRequired)

	ok, err := s.machine.AuthorisePartially(s.ctx, c)

	s.Require().NoError(err)
	s.True(ok)
	stored := s.reload(c)
	s.Equal(models.ConsentStatusPartiallyAuthorised, stored.Status)
	s.True(stored.MultilevelScaRequired)
	s.Equal(s.now, stored.StatusChangeTimestamp)
	s.Equal(stored.Checksum, c.Checksum, "caller pointer carries the new token")
}

func (s *ConsentMachineSuite) TestFinalisedConsentsRefuseEveryTransition() {
	finalised := []models.ConsentStatus{
		models.ConsentStatusRejected,
		models.ConsentStatusExpired,
		models.ConsentStatusRevokedByPsu,
		models.ConsentStatusTerminatedByTpp,
	}
	ops := map[string]func(context.Context, *models.Consent) (bool, error){
		"confirm":             s.machine.Confirm,
		"reject":              s.machine.Reject,
		"revoke":              s.machine.Revoke,
		"authorise partially": s.machine.AuthorisePartially,
	}
	for _, status := range finalised {
		c := s.seed(status)
		for name, op := range ops {
			s.Run(string(status)+" "+name, func() {
				ok, err := op(s.ctx, c)
				s.NoError(err)
				s.False(ok)
				s.Equal(status, c.Status)
				s.Equal(status, s.reload(c).Status)
			})
		}
	}
}

func (s *ConsentMachineSuite) TestTransitionTable() {
	s.Run("received confirms", func() {
		c := s.seed(models.ConsentStatusReceived)
		ok, err := s.machine.Confirm(s.ctx, c)
		s.NoError(err)
		s.True(ok)
		s.Equal(models.ConsentStatusValid, c.Status)
	})

	s.Run("valid cannot be rejected or confirmed again", func() {
		c := s.seed(models.ConsentStatusValid)
		ok, err := s.machine.Reject(s.ctx, c)
		s.NoError(err)
		s.False(ok)
		ok, err = s.machine.Confirm(s.ctx, c)
		s.NoError(err)
		s.False(ok)
	})

	s.Run("valid can be revoked", func() {
		c := s.seed(models.ConsentStatusValid)
		ok, err := s.machine.Revoke(s.ctx, c)
		s.NoError(err)
		s.True(ok)
		s.Equal(models.ConsentStatusRevokedByPsu, s.reload(c).Status)
	})

	s.Run("partially authorised confirms", func() {
		c := s.seed(models.ConsentStatusPartiallyAuthorised)
		ok, err := s.machine.Confirm(s.ctx, c)
		s.NoError(err)
		s.True(ok)
	})

	s.Run("partially authorised accepts further psus", func() {
		c := s.seed(models.ConsentStatusPartiallyAuthorised)
		ok, err := s.machine.AuthorisePartially(s.ctx, c)
		s.NoError(err)
		s.True(ok)
		s.Equal(models.ConsentStatusPartiallyAuthorised, s.reload(c).Status)
		ok, err = s.machine.Reject(s.ctx, c)
		s.NoError(err)
		s.False(ok)
	})

	s.Run("nil consent", func() {
		ok, err := s.machine.Confirm(s.ctx, nil)
		s.NoError(err)
		s.False(ok)
	})
}

func (s *ConsentMachineSuite) TestExpireIfNeeded() {
	c := s.seed(models.ConsentStatusValid)

	ok, err := s.machine.ExpireIfNeeded(s.ctx, c)
	s.NoError(err)
	s.False(ok, "validity date not reached")

	later := requesttime.WithTime(context.Background(), s.now.AddDate(0, 2, 0))
	ok, err = s.machine.ExpireIfNeeded(later, c)
	s.NoError(err)
	s.True(ok)
	s.Equal(models.ConsentStatusExpired, s.reload(c).Status)
}

func (s *ConsentMachineSuite) TestStaleSnapshotFailsWithWrongChecksum() {
	c := s.seed(models.ConsentStatusReceived)
	stale := c.Clone()

	ok, err := s.machine.Confirm(s.ctx, c)
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.machine.Reject(s.ctx, stale)
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeWrongChecksum))
	s.Equal(models.ConsentStatusReceived, stale.Status, "refused write leaves the snapshot untouched")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.ConsentStatusReceived, models.ConsentStatusRejected))
	assert.True(t, CanTransition(models.ConsentStatusPartiallyAuthorised, models.ConsentStatusExpired))
	assert.False(t, CanTransition(models.ConsentStatusPartiallyAuthorised, models.ConsentStatusRejected))
	assert.False(t, CanTransition(models.ConsentStatusValid, models.ConsentStatusPartiallyAuthorised))
	assert.True(t, CanTransition(models.ConsentStatusPartiallyAuthorised, models.ConsentStatusPartiallyAuthorised))
	assert.False(t, CanTransition(models.ConsentStatusValid, models.ConsentStatusValid))
	assert.False(t, CanTransition(models.ConsentStatusValid, models.ConsentStatusRejected))
	assert.False(t, CanTransition(models.ConsentStatusExpired, models.ConsentStatusRevokedByPsu))
	assert.False(t, CanTransition("", models.ConsentStatusValid))
	require.True(t, models.ConsentStatus("").IsFinalised())
}
