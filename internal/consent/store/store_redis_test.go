package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"cms/internal/consent/models"
	dErrors "cms/pkg/domain-errors"
	"cms/pkg/platform/sentinel"
	cmstestutil "cms/pkg/testutil"
)

type RedisStoreSuite struct {
	suite.Suite
	ctx    context.Context
	server *miniredis.Miniredis
	client *redis.Client
	store  *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.server = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.server.Addr()})
	s.store = NewRedis(s.client)
}

func (s *RedisStoreSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisStoreSuite) TestConsentRoundTripKeepsChecksum() {
	guarded := NewGuarded(s.store)
	c := cmstestutil.NewConsentBuilder().WithPsu("alice").Recurring().Build()
	c.Usages = map[string]int{"2026-06-15": 2}
	c.Data = []byte(`{"version":2}`)

	saved, err := guarded.VerifyAndSave(s.ctx, c)
	s.Require().NoError(err)

	got, err := s.store.FindConsentByExternalID(s.ctx, c.ExternalID, c.InstanceID)
	s.Require().NoError(err)
	s.Equal(saved.Checksum, got.Checksum)
	s.Equal(saved.ValidUntil, got.ValidUntil)
	s.Equal(saved.PsuDataList, got.PsuDataList)
	s.True(saved.CreationTimestamp.Equal(got.CreationTimestamp))

	got.Status = models.ConsentStatusValid
	_, err = guarded.VerifyAndUpdate(s.ctx, got)
	s.Require().NoError(err, "a loaded consent must verify against its own checksum")
}

func (s *RedisStoreSuite) TestInsertConsent_Duplicate() {
	c := cmstestutil.NewConsentBuilder().Build()
	s.Require().NoError(s.store.InsertConsent(s.ctx, c))
	s.ErrorIs(s.store.InsertConsent(s.ctx, c), sentinel.ErrConflict)
}

func (s *RedisStoreSuite) TestCompareAndSwapConsent() {
	c := cmstestutil.NewConsentBuilder().Build()
	c.Checksum = "v1"
	s.Require().NoError(s.store.InsertConsent(s.ctx, c))

	next := c.Clone()
	next.Checksum = "v2"
	s.ErrorIs(s.store.CompareAndSwapConsent(s.ctx, next, "v0"), sentinel.ErrConflict)
	s.Require().NoError(s.store.CompareAndSwapConsent(s.ctx, next, "v1"))

	s.ErrorIs(s.store.CompareAndSwapConsent(s.ctx, cmstestutil.NewConsentBuilder().Build(), "v1"), sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestFindConsentsByPsu_UsesIndex() {
	a := cmstestutil.NewConsentBuilder().WithPsu("alice").CreatedAt(cmstestutil.FixedNow).Build()
	b := cmstestutil.NewConsentBuilder().WithPsu("alice", "bob").CreatedAt(cmstestutil.FixedNow.Add(time.Minute)).Build()
	other := cmstestutil.NewConsentBuilder().WithPsu("bob").Build()
	for _, c := range []*models.Consent{a, b, other} {
		s.Require().NoError(s.store.InsertConsent(s.ctx, c))
	}

	list, err := s.store.FindConsentsByPsu(s.ctx, models.PsuConsentQuery{
		Psu:        models.PsuData{PsuID: "alice"},
		InstanceID: cmstestutil.DefaultInstance,
	})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(a.ExternalID, list[0].ExternalID)
	s.Equal(b.ExternalID, list[1].ExternalID)
}

func (s *RedisStoreSuite) TestFindOldConsents() {
	old := cmstestutil.NewConsentBuilder().WithTpp("tpp-1").Recurring().Build()
	closed := cmstestutil.NewConsentBuilder().WithTpp("tpp-1").WithStatus(models.ConsentStatusExpired).Build()
	fresh := cmstestutil.NewConsentBuilder().WithTpp("tpp-1").Recurring().Build()
	for _, c := range []*models.Consent{old, closed, fresh} {
		s.Require().NoError(s.store.InsertConsent(s.ctx, c))
	}

	olds, err := s.store.FindOldConsents(s.ctx, models.OldConsentQuery{
		TppAuthorisationNumber: "tpp-1",
		InstanceID:             cmstestutil.DefaultInstance,
		ExcludeExternalID:      fresh.ExternalID,
	})
	s.Require().NoError(err)
	s.Require().Len(olds, 1)
	s.Equal(old.ExternalID, olds[0].ExternalID)
}

func (s *RedisStoreSuite) TestAuthorisations() {
	guarded := NewGuarded(s.store)
	parent, err := guarded.VerifyAndSave(s.ctx, cmstestutil.NewConsentBuilder().Build())
	s.Require().NoError(err)

	auth, err := guarded.SaveAuthorisation(s.ctx, cmstestutil.NewAuthorisationBuilder(parent).WithPsu("alice").Build())
	s.Require().NoError(err)

	list, err := s.store.FindAuthorisationsByParent(s.ctx, models.ParentQuery{
		ParentExternalID: parent.ExternalID,
		InstanceID:       parent.InstanceID,
	})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(auth.Checksum, list[0].Checksum)

	auth.ScaStatus = models.ScaStatusFinalised
	_, err = guarded.VerifyAndUpdateAuthorisation(s.ctx, auth)
	s.Require().NoError(err)

	_, err = guarded.SaveAuthorisation(s.ctx, cmstestutil.NewAuthorisationBuilder(cmstestutil.NewConsentBuilder().Build()).Build())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "parent must exist")
}
