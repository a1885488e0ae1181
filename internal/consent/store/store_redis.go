package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cms/internal/consent/models"
	"cms/internal/consent/psu"
	"cms/pkg/platform/sentinel"
)

const (
	consentKeyPrefix       = "consent:"
	authorisationKeyPrefix = "authorisation:"
	psuIndexKeyPrefix      = "psu_consents:"
	tppIndexKeyPrefix      = "tpp_consents:"
	parentIndexKeyPrefix   = "consent_authorisations:"
)

type consentJSON struct {
	ID                    string               `json:"id"`
	ExternalID            string               `json:"external_id"`
	InstanceID            string               `json:"instance_id"`
	Type                  string               `json:"type"`
	Status                string               `json:"status"`
	ValidUntil            string               `json:"valid_until"`
	FrequencyPerDay       int                  `json:"frequency_per_day"`
	Usages                map[string]int       `json:"usages"`
	PsuDataList           []models.PsuData     `json:"psu_data"`
	MultilevelScaRequired bool                 `json:"multilevel_sca_required"`
	RecurringIndicator    bool                 `json:"recurring_indicator"`
	AspspAccess           models.AccountAccess `json:"aspsp_access"`
	TppAccess             models.AccountAccess `json:"tpp_access"`
	TppInfo               models.TppInfo       `json:"tpp_info"`
	Data                  []byte               `json:"data,omitempty"`
	CreationTimestamp     int64                `json:"creation_timestamp"`      // Unix nano
	StatusChangeTimestamp int64                `json:"status_change_timestamp"` // Unix nano
	LastActionDate        int64                `json:"last_action_at"`          // Unix nano
	Revision              int64                `json:"revision"`
	Checksum              string               `json:"checksum"`
}

type authorisationJSON struct {
	ID                     string          `json:"id"`
	ExternalID             string          `json:"external_id"`
	ParentExternalID       string          `json:"parent_external_id"`
	InstanceID             string          `json:"instance_id"`
	Type                   string          `json:"type"`
	ScaStatus              string          `json:"sca_status"`
	PsuData                *models.PsuData `json:"psu_data,omitempty"`
	RedirectURLExpiresAt   int64           `json:"redirect_url_expires_at"`  // Unix nano
	AuthorisationExpiresAt int64           `json:"authorisation_expires_at"` // Unix nano
	AuthenticationMethodID string          `json:"authentication_method_id"`
	ScaAuthenticationData  string          `json:"sca_authentication_data"`
	TppOkRedirectURI       string          `json:"tpp_ok_redirect_uri"`
	TppNokRedirectURI      string          `json:"tpp_nok_redirect_uri"`
	CreatedAt              int64           `json:"created_at"` // Unix nano
	Revision               int64           `json:"revision"`
	Checksum               string          `json:"checksum"`
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func consentToJSON(c *models.Consent) *consentJSON {
	return &consentJSON{
		ID:                    c.ID.String(),
		ExternalID:            c.ExternalID,
		InstanceID:            c.InstanceID,
		Type:                  string(c.Type),
		Status:                string(c.Status),
		ValidUntil:            c.ValidUntil.UTC().Format(models.DateLayout),
		FrequencyPerDay:       c.FrequencyPerDay,
		Usages:                c.Usages,
		PsuDataList:           c.PsuDataList,
		MultilevelScaRequired: c.MultilevelScaRequired,
		RecurringIndicator:    c.RecurringIndicator,
		AspspAccess:           c.AspspAccountAccesses,
		TppAccess:             c.TppAccountAccesses,
		TppInfo:               c.TppInfo,
		Data:                  c.Data,
		CreationTimestamp:     unixNano(c.CreationTimestamp),
		StatusChangeTimestamp: unixNano(c.StatusChangeTimestamp),
		LastActionDate:        unixNano(c.LastActionDate),
		Revision:              c.Revision,
		Checksum:              c.Checksum,
	}
}

func consentFromJSON(j *consentJSON) (*models.Consent, error) {
	consentID, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse consent id: %w", err)
	}
	validUntil, err := time.Parse(models.DateLayout, j.ValidUntil)
	if err != nil {
		return nil, fmt.Errorf("parse valid until: %w", err)
	}
	return &models.Consent{
		ID:                    consentID,
		ExternalID:            j.ExternalID,
		InstanceID:            j.InstanceID,
		Type:                  models.ConsentType(j.Type),
		Status:                models.ConsentStatus(j.Status),
		ValidUntil:            validUntil,
		FrequencyPerDay:       j.FrequencyPerDay,
		Usages:                j.Usages,
		PsuDataList:           j.PsuDataList,
		MultilevelScaRequired: j.MultilevelScaRequired,
		RecurringIndicator:    j.RecurringIndicator,
		AspspAccountAccesses:  j.AspspAccess,
		TppAccountAccesses:    j.TppAccess,
		TppInfo:               j.TppInfo,
		Data:                  j.Data,
		CreationTimestamp:     fromUnixNano(j.CreationTimestamp),
		StatusChangeTimestamp: fromUnixNano(j.StatusChangeTimestamp),
		LastActionDate:        fromUnixNano(j.LastActionDate),
		Revision:              j.Revision,
		Checksum:              j.Checksum,
	}, nil
}

func authorisationToJSON(a *models.Authorisation) *authorisationJSON {
	return &authorisationJSON{
		ID:                     a.ID.String(),
		ExternalID:             a.ExternalID,
		ParentExternalID:       a.ParentExternalID,
		InstanceID:             a.InstanceID,
		Type:                   string(a.Type),
		ScaStatus:              string(a.ScaStatus),
		PsuData:                a.PsuData,
		RedirectURLExpiresAt:   unixNano(a.RedirectURLExpiresAt),
		AuthorisationExpiresAt: unixNano(a.AuthorisationExpiresAt),
		AuthenticationMethodID: a.AuthenticationMethodID,
		ScaAuthenticationData:  a.ScaAuthenticationData,
		TppOkRedirectURI:       a.TppOkRedirectURI,
		TppNokRedirectURI:      a.TppNokRedirectURI,
		CreatedAt:              unixNano(a.CreatedAt),
		Revision:               a.Revision,
		Checksum:               a.Checksum,
	}
}

func authorisationFromJSON(j *authorisationJSON) (*models.Authorisation, error) {
	authID, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse authorisation id: %w", err)
	}
	return &models.Authorisation{
		ID:                     authID,
		ExternalID:             j.ExternalID,
		ParentExternalID:       j.ParentExternalID,
		InstanceID:             j.InstanceID,
		Type:                   models.AuthorisationType(j.Type),
		ScaStatus:              models.ScaStatus(j.ScaStatus),
		PsuData:                j.PsuData,
		RedirectURLExpiresAt:   fromUnixNano(j.RedirectURLExpiresAt),
		AuthorisationExpiresAt: fromUnixNano(j.AuthorisationExpiresAt),
		AuthenticationMethodID: j.AuthenticationMethodID,
		ScaAuthenticationData:  j.ScaAuthenticationData,
		TppOkRedirectURI:       j.TppOkRedirectURI,
		TppNokRedirectURI:      j.TppNokRedirectURI,
		CreatedAt:              fromUnixNano(j.CreatedAt),
		Revision:               j.Revision,
		Checksum:               j.Checksum,
	}, nil
}

// RedisStore persists consents in Redis for multi-instance deployments.
// Each entity lives under its own key; secondary lookups go through set indexes.
// Compare-and-swap uses WATCH so a concurrent writer aborts the transaction.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func consentKey(externalID, instanceID string) string {
	return consentKeyPrefix + instanceID + ":" + externalID
}

func authorisationKey(externalID, instanceID string) string {
	return authorisationKeyPrefix + instanceID + ":" + externalID
}

func psuIndexKey(p models.PsuData, instanceID string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{p.PsuID, p.PsuIDType, p.PsuCorporateID, p.PsuCorporateIDType}, "\x1f")))
	return psuIndexKeyPrefix + instanceID + ":" + hex.EncodeToString(sum[:])
}

func tppIndexKey(authorisationNumber, instanceID string) string {
	return tppIndexKeyPrefix + instanceID + ":" + authorisationNumber
}

func parentIndexKey(parentExternalID, instanceID string) string {
	return parentIndexKeyPrefix + instanceID + ":" + parentExternalID
}

func decodeConsent(data string) (*models.Consent, error) {
	var j consentJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("unmarshal consent: %w", err)
	}
	return consentFromJSON(&j)
}

func decodeAuthorisation(data string) (*models.Authorisation, error) {
	var j authorisationJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("unmarshal authorisation: %w", err)
	}
	return authorisationFromJSON(&j)
}

func (s *RedisStore) FindConsentByExternalID(ctx context.Context, externalID, instanceID string) (*models.Consent, error) {
	data, err := s.client.Get(ctx, consentKey(externalID, instanceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get consent: %w", err)
	}
	return decodeConsent(data)
}

// loadConsents fetches every consent listed in the index set. Ids whose key
// vanished are skipped.
func (s *RedisStore) loadConsents(ctx context.Context, indexKey, instanceID string) ([]*models.Consent, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read consent index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, externalID := range ids {
		keys[i] = consentKey(externalID, instanceID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load consents: %w", err)
	}
	out := make([]*models.Consent, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		c, err := decodeConsent(data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) FindConsentsByPsu(ctx context.Context, q models.PsuConsentQuery) ([]*models.Consent, error) {
	candidates, err := s.loadConsents(ctx, psuIndexKey(q.Psu, q.InstanceID), q.InstanceID)
	if err != nil {
		return nil, err
	}
	var out []*models.Consent
	for _, c := range candidates {
		if q.Type != "" && c.Type != q.Type {
			continue
		}
		if psu.ContainsIdentity(c.PsuDataList, &q.Psu) {
			out = append(out, c)
		}
	}
	sortConsents(out)
	start, end := q.Page.Bounds(len(out))
	return out[start:end], nil
}

func (s *RedisStore) FindOldConsents(ctx context.Context, q models.OldConsentQuery) ([]*models.Consent, error) {
	candidates, err := s.loadConsents(ctx, tppIndexKey(q.TppAuthorisationNumber, q.InstanceID), q.InstanceID)
	if err != nil {
		return nil, err
	}
	var out []*models.Consent
	for _, c := range candidates {
		if c.ExternalID == q.ExcludeExternalID || c.Status.IsFinalised() {
			continue
		}
		if q.Type != "" && c.Type != q.Type {
			continue
		}
		out = append(out, c)
	}
	sortConsents(out)
	return out, nil
}

func (s *RedisStore) FindAuthorisationByExternalID(ctx context.Context, externalID, instanceID string) (*models.Authorisation, error) {
	data, err := s.client.Get(ctx, authorisationKey(externalID, instanceID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get authorisation: %w", err)
	}
	return decodeAuthorisation(data)
}

func (s *RedisStore) FindAuthorisationsByParent(ctx context.Context, q models.ParentQuery) ([]*models.Authorisation, error) {
	ids, err := s.client.SMembers(ctx, parentIndexKey(q.ParentExternalID, q.InstanceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read authorisation index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, externalID := range ids {
		keys[i] = authorisationKey(externalID, q.InstanceID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load authorisations: %w", err)
	}
	var out []*models.Authorisation
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		a, err := decodeAuthorisation(data)
		if err != nil {
			return nil, err
		}
		if q.Type != "" && a.Type != q.Type {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	start, end := q.Page.Bounds(len(out))
	return out[start:end], nil
}

func (s *RedisStore) InsertConsent(ctx context.Context, consent *models.Consent) error {
	data, err := json.Marshal(consentToJSON(consent))
	if err != nil {
		return fmt.Errorf("marshal consent: %w", err)
	}
	key := consentKey(consent.ExternalID, consent.InstanceID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check consent: %w", err)
		}
		if exists > 0 {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			indexConsent(ctx, pipe, consent)
			return nil
		})
		return err
	}, key)
	return mapTxError(err, "insert consent")
}

func (s *RedisStore) CompareAndSwapConsent(ctx context.Context, consent *models.Consent, expectedChecksum string) error {
	data, err := json.Marshal(consentToJSON(consent))
	if err != nil {
		return fmt.Errorf("marshal consent: %w", err)
	}
	key := consentKey(consent.ExternalID, consent.InstanceID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get consent for update: %w", err)
		}
		stored, err := decodeConsent(current)
		if err != nil {
			return err
		}
		if stored.Checksum != expectedChecksum {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			indexConsent(ctx, pipe, consent)
			return nil
		})
		return err
	}, key)
	return mapTxError(err, "update consent")
}

func (s *RedisStore) InsertAuthorisation(ctx context.Context, auth *models.Authorisation) error {
	data, err := json.Marshal(authorisationToJSON(auth))
	if err != nil {
		return fmt.Errorf("marshal authorisation: %w", err)
	}
	key := authorisationKey(auth.ExternalID, auth.InstanceID)
	parent := consentKey(auth.ParentExternalID, auth.InstanceID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		parentExists, err := tx.Exists(ctx, parent).Result()
		if err != nil {
			return fmt.Errorf("check parent consent: %w", err)
		}
		if parentExists == 0 {
			return sentinel.ErrNotFound
		}
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check authorisation: %w", err)
		}
		if exists > 0 {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, parentIndexKey(auth.ParentExternalID, auth.InstanceID), auth.ExternalID)
			return nil
		})
		return err
	}, key, parent)
	return mapTxError(err, "insert authorisation")
}

func (s *RedisStore) CompareAndSwapAuthorisation(ctx context.Context, auth *models.Authorisation, expectedChecksum string) error {
	data, err := json.Marshal(authorisationToJSON(auth))
	if err != nil {
		return fmt.Errorf("marshal authorisation: %w", err)
	}
	key := authorisationKey(auth.ExternalID, auth.InstanceID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get authorisation for update: %w", err)
		}
		stored, err := decodeAuthorisation(current)
		if err != nil {
			return err
		}
		if stored.Checksum != expectedChecksum {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	return mapTxError(err, "update authorisation")
}

// indexConsent adds the consent to its secondary indexes. PSU lists only grow,
// so stale index entries never need removing; readers re-check identity anyway.
func indexConsent(ctx context.Context, pipe redis.Pipeliner, c *models.Consent) {
	for _, p := range c.PsuDataList {
		pipe.SAdd(ctx, psuIndexKey(p, c.InstanceID), c.ExternalID)
	}
	if c.TppInfo.AuthorisationNumber != "" {
		pipe.SAdd(ctx, tppIndexKey(c.TppInfo.AuthorisationNumber, c.InstanceID), c.ExternalID)
	}
}

func mapTxError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return sentinel.ErrConflict
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

var _ Repository = (*RedisStore)(nil)
