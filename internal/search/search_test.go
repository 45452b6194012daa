package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRank_NameMatchBoost(t *testing.T) {
	base := Match{NameMatchTsvRank: 0.2, ContentRank: 0.1}
	withName := base
	withName.NameMatch = true

	assert.InDelta(t, 0.3, Rank(base), 1e-9)
	assert.InDelta(t, 1.3, Rank(withName), 1e-9)
}

func TestRank_LinkContentMatchBoostOnlyAppliesToLinks(t *testing.T) {
	link := Match{ItemType: ItemLink, ContentMatch: true}
	file := Match{ItemType: ItemFile, ContentMatch: true}

	assert.InDelta(t, 1.0, Rank(link), 1e-9)
	assert.InDelta(t, 0.0, Rank(file), 1e-9)
}

func TestRank_CombinesAllComponents(t *testing.T) {
	m := Match{
		ItemType: ItemLink, NameMatchTsvRank: 0.5, ContentRank: 0.4,
		NameMatch: true, ContentMatch: true,
	}
	assert.InDelta(t, 2.9, Rank(m), 1e-9)
}

func TestPageRank_IlikeBoost(t *testing.T) {
	assert.InDelta(t, 0.3, PageRank(0.3, false), 1e-9)
	assert.InDelta(t, 1.3, PageRank(0.3, true), 1e-9)
}

func TestHeadline_WrapsFirstCaseInsensitiveMatch(t *testing.T) {
	got := Headline("The Quick Brown Fox", "quick")
	assert.Equal(t, "The <em>Quick</em> Brown Fox", got)
}

func TestHeadline_NoMatchReturnsOriginal(t *testing.T) {
	got := Headline("The Quick Brown Fox", "zzz")
	assert.Equal(t, "The Quick Brown Fox", got)
}

func TestHeadline_EmptyNeedleReturnsOriginal(t *testing.T) {
	got := Headline("The Quick Brown Fox", "")
	assert.Equal(t, "The Quick Brown Fox", got)
}
