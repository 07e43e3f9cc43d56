package wizard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/onboard/internal/model"
)

func TestResources(t *testing.T) {
	w := New(&fakeBackend{})
	assert.Equal(t, []string{""}, w.Form().Resources)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.AddResource())
	}
	assert.ErrorIs(t, w.AddResource(), ErrLimitReached)
	assert.Len(t, w.Form().Resources, 5)

	require.NoError(t, w.UpdateResource(2, "https://acme.test/deck.pdf"))
	assert.ErrorIs(t, w.UpdateResource(9, "x"), ErrIndexOutOfRange)

	require.NoError(t, w.RemoveResource(0))
	assert.Equal(t, "https://acme.test/deck.pdf", w.Form().Resources[1])
	assert.ErrorIs(t, w.RemoveResource(-1), ErrIndexOutOfRange)
}

func TestCompetitorsAndMessagesCapped(t *testing.T) {
	w := New(&fakeBackend{})
	for i := 0; i < 5; i++ {
		require.NoError(t, w.AddCompetitor())
		require.NoError(t, w.UpdateCompetitor(i, fmt.Sprintf("c%d", i)))
		require.NoError(t, w.AddMarketingMessage())
	}
	assert.ErrorIs(t, w.AddCompetitor(), ErrLimitReached)
	assert.ErrorIs(t, w.AddMarketingMessage(), ErrLimitReached)

	require.NoError(t, w.RemoveCompetitor(1))
	require.NoError(t, w.UpdateMarketingMessage(4, "last"))
	require.NoError(t, w.RemoveMarketingMessage(0))

	b := w.Form().BrandStyles
	assert.Equal(t, []string{"c0", "c2", "c3", "c4"}, b.Competitors)
	assert.Equal(t, "last", b.KeyMarketingMessages[3])
}

func TestToggles_CatalogOnly(t *testing.T) {
	w := New(&fakeBackend{})

	assert.ErrorIs(t, w.ToggleMarket("Atlantis"), ErrUnknownOption)
	assert.ErrorIs(t, w.ToggleBrandVoice("professional"), ErrUnknownOption)
	assert.Empty(t, w.Form().Audience.GeographicMarkets)
	assert.Empty(t, w.Form().BrandStyles.BrandVoices)

	// Values prefilled from enrichment can be deselected even when the
	// catalog does not list them.
	require.NoError(t, w.Prefill(&model.EnrichmentPayload{
		GeographicMarkets: []string{"Worldwide", "Europe"},
		BrandVoice:        []string{"professional"},
	}))
	require.NoError(t, w.ToggleMarket("Worldwide"))
	require.NoError(t, w.ToggleBrandVoice("professional"))
	assert.Equal(t, []string{"Europe"}, w.Form().Audience.GeographicMarkets)
	assert.Empty(t, w.Form().BrandStyles.BrandVoices)
	assert.ErrorIs(t, w.ToggleMarket("Worldwide"), ErrUnknownOption, "cannot be re-added")
}

func TestToggles(t *testing.T) {
	w := New(&fakeBackend{})

	require.NoError(t, w.ToggleMarket("Europe"))
	require.NoError(t, w.ToggleMarket("India"))
	require.NoError(t, w.ToggleMarket("Europe"))
	assert.Equal(t, []string{"India"}, w.Form().Audience.GeographicMarkets)

	require.NoError(t, w.ToggleBrandVoice("witty"))
	assert.Equal(t, []string{"witty"}, w.Form().BrandStyles.BrandVoices)
	require.NoError(t, w.ToggleBrandVoice("witty"))
	assert.Empty(t, w.Form().BrandStyles.BrandVoices)

	require.NoError(t, w.ToggleObjective("grow_brand"))
	require.NoError(t, w.ToggleExpanded("grow_brand"))
	g := w.Form().BusinessGoals
	assert.Equal(t, []string{"grow_brand"}, g.SelectedObjectives)
	assert.True(t, g.ExpandedSections["grow_brand"])

	require.NoError(t, w.ToggleObjective("grow_brand"))
	assert.Empty(t, w.Form().BusinessGoals.SelectedObjectives)
	assert.NotEmpty(t, w.Form().BusinessGoals.ObjectiveDescriptions["grow_brand"], "description kept on deselect")
}

func TestCustomObjectives(t *testing.T) {
	n := 0
	w := New(&fakeBackend{}, WithIDFunc(func() string {
		n++
		return fmt.Sprintf("custom_%d", n)
	}))

	id1, err := w.AddCustomObjective()
	require.NoError(t, err)
	id2, err := w.AddCustomObjective()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	g := w.Form().BusinessGoals
	assert.True(t, g.ExpandedSections[id1], "new custom objectives start expanded")

	require.NoError(t, w.SetCustomObjectiveName(id1, "Launch podcast"))
	require.NoError(t, w.SetCustomObjectiveDescription(id1, "Weekly episodes"))
	require.NoError(t, w.ToggleCustomObjectiveExpanded(id1))
	assert.ErrorIs(t, w.SetCustomObjectiveName("nope", "x"), ErrUnknownCustomObjective)

	require.NoError(t, w.RemoveCustomObjective(id2))
	assert.ErrorIs(t, w.RemoveCustomObjective(id2), ErrUnknownCustomObjective)

	g = w.Form().BusinessGoals
	require.Len(t, g.CustomObjectives, 1)
	assert.Equal(t, "Launch podcast", g.CustomObjectives[0].Name)
	assert.False(t, g.ExpandedSections[id1])
	assert.NotContains(t, g.ExpandedSections, id2)
}

func TestDefaultCustomObjectiveIDsAreUnique(t *testing.T) {
	w := New(&fakeBackend{})
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := w.AddCustomObjective()
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSetCompanyOverviewField_Unknown(t *testing.T) {
	w := New(&fakeBackend{})
	assert.ErrorIs(t, w.SetCompanyOverviewField("revenue", "1M"), ErrUnknownField)
}

func TestEditsAreLastWriteWins(t *testing.T) {
	w := New(&fakeBackend{})
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			_ = w.SetDifferentiator(fmt.Sprintf("v%d", i))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	require.NoError(t, w.SetDifferentiator("final"))
	assert.Equal(t, "final", w.Form().BrandStyles.Differentiator)
}
