package store

import (
	"context"
	"sort"
	"sync"

	"cms/internal/consent/models"
	"cms/internal/consent/psu"
	"cms/pkg/platform/sentinel"
	psync "cms/pkg/platform/sync"
)

// Error Contract:
// - Return sentinel.ErrNotFound when the requested entity does not exist
// - Return sentinel.ErrConflict on duplicate inserts or a stale compare-and-swap
// - Never hand out pointers to stored values; every read and write copies

// InMemoryStore keeps consents and authorisations in memory for tests and
// single-instance deployments.
type InMemoryStore struct {
	mu             sync.RWMutex
	consents       map[string]*models.Consent
	authorisations map[string]*models.Authorisation

	// rows serialises compare-and-swap per entity key, standing in for a row lock.
	rows *psync.ShardedMutex
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		consents:       make(map[string]*models.Consent),
		authorisations: make(map[string]*models.Authorisation),
		rows:           psync.NewShardedMutex(),
	}
}

func key(externalID, instanceID string) string {
	return instanceID + "/" + externalID
}

func (s *InMemoryStore) FindConsentByExternalID(_ context.Context, externalID, instanceID string) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.consents[key(externalID, instanceID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) FindConsentsByPsu(_ context.Context, q models.PsuConsentQuery) ([]*models.Consent, error) {
	s.mu.RLock()
	var out []*models.Consent
	for _, c := range s.consents {
		if c.InstanceID != q.InstanceID {
			continue
		}
		if q.Type != "" && c.Type != q.Type {
			continue
		}
		if !psu.ContainsIdentity(c.PsuDataList, &q.Psu) {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sortConsents(out)
	start, end := q.Page.Bounds(len(out))
	return out[start:end], nil
}

func (s *InMemoryStore) FindOldConsents(_ context.Context, q models.OldConsentQuery) ([]*models.Consent, error) {
	s.mu.RLock()
	var out []*models.Consent
	for _, c := range s.consents {
		if c.InstanceID != q.InstanceID || c.ExternalID == q.ExcludeExternalID {
			continue
		}
		if c.TppInfo.AuthorisationNumber != q.TppAuthorisationNumber {
			continue
		}
		if q.Type != "" && c.Type != q.Type {
			continue
		}
		if c.Status.IsFinalised() {
			continue
		}
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sortConsents(out)
	return out, nil
}

func (s *InMemoryStore) FindAuthorisationByExternalID(_ context.Context, externalID, instanceID string) (*models.Authorisation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authorisations[key(externalID, instanceID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemoryStore) FindAuthorisationsByParent(_ context.Context, q models.ParentQuery) ([]*models.Authorisation, error) {
	s.mu.RLock()
	var out []*models.Authorisation
	for _, a := range s.authorisations {
		if a.ParentExternalID != q.ParentExternalID || a.InstanceID != q.InstanceID {
			continue
		}
		if q.Type != "" && a.Type != q.Type {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	start, end := q.Page.Bounds(len(out))
	return out[start:end], nil
}

func (s *InMemoryStore) InsertConsent(_ context.Context, consent *models.Consent) error {
	k := key(consent.ExternalID, consent.InstanceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.consents[k]; exists {
		return sentinel.ErrConflict
	}
	s.consents[k] = consent.Clone()
	return nil
}

func (s *InMemoryStore) CompareAndSwapConsent(_ context.Context, consent *models.Consent, expectedChecksum string) error {
	k := key(consent.ExternalID, consent.InstanceID)
	return s.rows.WithLock("consent:"+k, func() error {
		s.mu.RLock()
		current, ok := s.consents[k]
		s.mu.RUnlock()
		if !ok {
			return sentinel.ErrNotFound
		}
		if current.Checksum != expectedChecksum {
			return sentinel.ErrConflict
		}

		s.mu.Lock()
		s.consents[k] = consent.Clone()
		s.mu.Unlock()
		return nil
	})
}

func (s *InMemoryStore) InsertAuthorisation(_ context.Context, auth *models.Authorisation) error {
	k := key(auth.ExternalID, auth.InstanceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[key(auth.ParentExternalID, auth.InstanceID)]; !ok {
		return sentinel.ErrNotFound
	}
	if _, exists := s.authorisations[k]; exists {
		return sentinel.ErrConflict
	}
	s.authorisations[k] = auth.Clone()
	return nil
}

func (s *InMemoryStore) CompareAndSwapAuthorisation(_ context.Context, auth *models.Authorisation, expectedChecksum string) error {
	k := key(auth.ExternalID, auth.InstanceID)
	return s.rows.WithLock("authorisation:"+k, func() error {
		s.mu.RLock()
		current, ok := s.authorisations[k]
		s.mu.RUnlock()
		if !ok {
			return sentinel.ErrNotFound
		}
		if current.Checksum != expectedChecksum {
			return sentinel.ErrConflict
		}

		s.mu.Lock()
		s.authorisations[k] = auth.Clone()
		s.mu.Unlock()
		return nil
	})
}

func sortConsents(list []*models.Consent) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreationTimestamp.Equal(list[j].CreationTimestamp) {
			return list[i].ExternalID < list[j].ExternalID
		}
		return list[i].CreationTimestamp.Before(list[j].CreationTimestamp)
	})
}

var _ Repository = (*InMemoryStore)(nil)
