package psu

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms/internal/consent/models"
)

func psuWithIP(id, ip string) models.PsuData {
	return models.PsuData{
		ID:           uuid.New(),
		PsuID:        id,
		PsuIDType:    "login",
		PsuIPAddress: ip,
	}
}

func TestMatchesIgnoresIPAddress(t *testing.T) {
	a := psuWithIP("alice", "10.0.0.1")
	b := psuWithIP("alice", "192.168.1.7")

	assert.True(t, Matches(&a, &b))
	assert.False(t, Matches(&a, nil))

	c := a
	c.PsuCorporateID = "corp-1"
	assert.False(t, Matches(&a, &c))
}

func TestDefinePsuDataForAuthorisation(t *testing.T) {
	existing := psuWithIP("alice", "10.0.0.1")
	list := []models.PsuData{existing}

	t.Run("returns stored record when identity matches", func(t *testing.T) {
		candidate := psuWithIP("alice", "172.16.0.9")
		got := DefinePsuDataForAuthorisation(&candidate, list)
		require.NotNil(t, got)
		assert.Equal(t, existing.ID, got.ID)
	})

	t.Run("returns candidate when new", func(t *testing.T) {
		candidate := psuWithIP("bob", "10.0.0.1")
		got := DefinePsuDataForAuthorisation(&candidate, list)
		require.NotNil(t, got)
		assert.Equal(t, candidate.ID, got.ID)
	})

	t.Run("nil candidate", func(t *testing.T) {
		assert.Nil(t, DefinePsuDataForAuthorisation(nil, list))
	})
}

func TestEnrichPsuData(t *testing.T) {
	alice := psuWithIP("alice", "10.0.0.1")
	list := []models.PsuData{alice}

	same := psuWithIP("alice", "10.9.9.9")
	assert.Len(t, EnrichPsuData(&same, list), 1)

	bob := psuWithIP("bob", "10.0.0.1")
	enriched := EnrichPsuData(&bob, list)
	assert.Len(t, enriched, 2)
	assert.Len(t, list, 1, "input list must not be mutated")

	assert.Equal(t, list, EnrichPsuData(nil, list))
}

func TestIsPsuDataNew(t *testing.T) {
	alice := psuWithIP("alice", "10.0.0.1")
	list := []models.PsuData{alice}

	assert.False(t, IsPsuDataNew(nil, list))
	other := psuWithIP("alice", "8.8.8.8")
	assert.False(t, IsPsuDataNew(&other, list))
	bob := psuWithIP("bob", "10.0.0.1")
	assert.True(t, IsPsuDataNew(&bob, list))
	assert.True(t, IsPsuDataNew(&bob, nil))
}

func TestIsPsuDataListEqual(t *testing.T) {
	alice := psuWithIP("alice", "10.0.0.1")
	bob := psuWithIP("bob", "10.0.0.2")
	aliceOtherIP := psuWithIP("alice", "10.0.0.3")
	carol := psuWithIP("carol", "10.0.0.4")

	tests := []struct {
		name string
		a, b []models.PsuData
		want bool
	}{
		{"both empty", nil, []models.PsuData{}, true},
		{"same identities different order and ids", []models.PsuData{alice, bob}, []models.PsuData{bob, aliceOtherIP}, true},
		{"different identities", []models.PsuData{alice}, []models.PsuData{carol}, false},
		{"different sizes", []models.PsuData{alice, bob}, []models.PsuData{carol}, false},
		{"subset", []models.PsuData{alice, bob}, []models.PsuData{alice}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPsuDataListEqual(tt.a, tt.b))
			assert.Equal(t, tt.want, IsPsuDataListEqual(tt.b, tt.a), "equality must be symmetric")
		})
	}
}
