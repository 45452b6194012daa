package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchRow only touches b.db when scoring a File's content pages
// (itemType == ItemFile && IncludeContent); the name-match and Link
// content-match paths below exercise it against a zero-value backend.

func TestMatchRow_NameMatchRequiresQueryTerm(t *testing.T) {
	b := &PostgresBackend{}
	row := searchRow{ItemID: uuid.New(), ItemType: string(ItemFolder), Name: "Quarterly Reports"}

	match, ok, err := b.matchRow(row, Filters{IncludeName: true, Query: "quarterly"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, match.NameMatch)
	assert.Greater(t, match.NameMatchTsvRank, 0.0)

	_, ok, err = b.matchRow(row, Filters{IncludeName: true, Query: "invoices"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchRow_WhitespaceQueryMatchesNothing(t *testing.T) {
	b := &PostgresBackend{}
	row := searchRow{ItemID: uuid.New(), ItemType: string(ItemFolder), Name: "Quarterly Reports"}

	_, ok, err := b.matchRow(row, Filters{IncludeName: true, Query: "   "})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchRow_LinkContentMatchAgainstQueryTerm(t *testing.T) {
	b := &PostgresBackend{}
	row := searchRow{ItemID: uuid.New(), ItemType: string(ItemLink), Name: "Bookmark", Value: "https://example.com/quantum-computing"}

	match, ok, err := b.matchRow(row, Filters{IncludeName: true, IncludeContent: true, Query: "quantum"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, match.ContentMatch)
	assert.False(t, match.NameMatch)

	_, ok, err = b.matchRow(row, Filters{IncludeName: true, IncludeContent: true, Query: "widgets"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchRow_LinkContentMatchRequiresIncludeContent(t *testing.T) {
	b := &PostgresBackend{}
	row := searchRow{ItemID: uuid.New(), ItemType: string(ItemLink), Name: "Bookmark", Value: "https://example.com/quantum-computing"}

	// Query term is present in Value, but IncludeContent is left false (and
	// IncludeName is also false): include_name=false ∧ include_content=false
	// must yield zero matches even though the substring is there.
	_, ok, err := b.matchRow(row, Filters{Query: "quantum"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuery_WhitespaceOnlyQueryShortCircuits(t *testing.T) {
	b := &PostgresBackend{}
	page, err := b.Query(Filters{DocumentBoxes: []string{"box1"}, Query: "   "})
	require.NoError(t, err)
	assert.Equal(t, Page{}, page)
}

func TestQuery_NoDocumentBoxesShortCircuits(t *testing.T) {
	b := &PostgresBackend{}
	page, err := b.Query(Filters{Query: "quantum"})
	require.NoError(t, err)
	assert.Equal(t, Page{}, page)
}

func TestTsRankApprox_DenserMatchScoresHigher(t *testing.T) {
	sparse := tsRankApprox("quantum computing is a broad and deep field of study", "quantum")
	dense := tsRankApprox("quantum quantum quantum", "quantum")
	assert.Greater(t, dense, sparse)
}

func TestTsRankApprox_NoMatchIsZero(t *testing.T) {
	assert.Equal(t, 0.0, tsRankApprox("quantum computing", "widgets"))
}

func TestContainsFold_CaseInsensitive(t *testing.T) {
	assert.True(t, containsFold("Quantum Computing", "computing"))
	assert.False(t, containsFold("Quantum Computing", "widgets"))
}
