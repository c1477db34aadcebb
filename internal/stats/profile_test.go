package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeProfiles_WeightedAverage(t *testing.T) {
	t.Parallel()

	// Arrange: five nodes at 10% in d1, one node at 20% in d2
	districts := map[string]DistrictEntry{
		"d1": testDistrict("d1", "small", 1000, "a1", "a2", "a3", "a4", "a5", "gone"),
		"d2": testDistrict("d2", "small", 2000, "b1"),
	}
	nodes := map[string]NodeEntry{}
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		nodes[id] = testNode(id, "small", "d1", true, 2, 100, 10)
	}
	nodes["b1"] = testNode("b1", "small", "d2", false, 4, 100, 20)

	// Act
	profiles := SummarizeProfiles(SummarizeDistricts(districts, nodes), nil)

	// Assert
	require.Len(t, profiles, 1)
	p := profiles["small"]
	require.NotNil(t, p)
	assert.Equal(t, "small", p.Profile)
	assert.Equal(t, 2, p.DistrictCount)
	assert.Equal(t, 6, p.NodeCount)
	assert.Equal(t, 5, p.NodesActive)
	assert.Equal(t, 1, p.NodesInactive)
	assert.InDelta(t, (10.0*5+20.0*1)/6, p.AvgActiveCapacityPct, 1e-9, "average is node weighted, not 15")
	assert.Equal(t, 10.0, p.LowestActiveCapacityPct)
	assert.Equal(t, 20.0, p.HighestActiveCapacityPct)
	assert.Equal(t, 14, p.GearsTotal)
	assert.Equal(t, 5*10+20, p.GearsActive)
	assert.Equal(t, 5*90+80, p.AvailableActiveGears)
	assert.Equal(t, 12000, p.DistrictCapacity)
	assert.Equal(t, 3000, p.AvailableCapacity)
	assert.Equal(t, 3000, p.AvailableUIDs)
	assert.Equal(t, 530, p.EffectiveAvailableGears)
	assert.Equal(t, []string{"gone"}, p.MissingNodes)
	assert.Nil(t, p.Recorded)
	require.Len(t, p.Districts, 2)
	assert.Equal(t, "d1", p.Districts[0].ID)
	assert.Equal(t, "d2", p.Districts[1].ID)
}

func TestSummarizeProfiles_IncludesUndistrictedBucket(t *testing.T) {
	t.Parallel()

	districts := map[string]DistrictEntry{"d1": testDistrict("d1", "small", 1000, "a")}
	nodes := map[string]NodeEntry{
		"a": testNode("a", "small", "d1", true, 1, 10, 10),
		"b": testNode("b", "small", "", true, 1, 10, 10),
		"c": testNode("c", "large", "", true, 1, 10, 50),
	}

	profiles := SummarizeProfiles(SummarizeDistricts(districts, nodes), nil)

	require.Len(t, profiles, 2)
	assert.Equal(t, 2, profiles["small"].DistrictCount)
	assert.Equal(t, 2, profiles["small"].NodeCount)
	assert.Equal(t, 1, profiles["large"].DistrictCount)
	assert.Equal(t, 0, profiles["large"].EffectiveAvailableGears)
	assert.True(t, profiles["large"].Districts[0].Undistricted())
}

func TestSummarizeProfiles_ZeroNodes(t *testing.T) {
	t.Parallel()

	districts := map[string]DistrictEntry{"d1": testDistrict("d1", "small", 1000, "a", "b")}

	p := SummarizeProfiles(SummarizeDistricts(districts, nil), nil)["small"]

	require.NotNil(t, p)
	assert.Equal(t, 0, p.NodeCount)
	assert.Equal(t, 0.0, p.AvgActiveCapacityPct)
	assert.Equal(t, []string{"a", "b"}, p.MissingNodes)
}

func TestSummarizeProfiles_RecordCounts(t *testing.T) {
	t.Parallel()

	districts := map[string]DistrictEntry{
		"d1": testDistrict("d1", "small", 1000),
		"d2": testDistrict("d2", "medium", 1000),
	}
	counts := map[string]*RecordCounts{
		"small": {
			Apps:            3,
			Gears:           5,
			Cartridges:      Histogram{"php-5.3": 3},
			CartridgesShort: Histogram{"php": 3},
		},
	}

	profiles := SummarizeProfiles(SummarizeDistricts(districts, nil), counts)

	require.NotNil(t, profiles["small"].Recorded)
	assert.Equal(t, 3, profiles["small"].Recorded.Apps)
	assert.Equal(t, 5, profiles["small"].Recorded.Gears)
	assert.Equal(t, Histogram{"php": 3}, profiles["small"].Recorded.CartridgesShort)

	require.NotNil(t, profiles["medium"].Recorded, "profiles with no records still carry empty counts")
	assert.Equal(t, 0, profiles["medium"].Recorded.Gears)
	assert.Empty(t, profiles["medium"].Recorded.Cartridges)
}
