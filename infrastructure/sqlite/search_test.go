package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
)

func searchFixture(t *testing.T) *Partition {
	t.Helper()
	return newTestPartition(t,
		[]speech.Speaker{
			{Name: "Lindman", Gender: "man", Party: "Right"},
			{Name: "Hesselgren", Gender: "woman", Party: "Liberal"},
		},
		[]rowSpec{
			{id: "s1", content: "Rikets finanser är i ordning", speakerID: 1, date: 19120110},
			{id: "s2", content: "Försvar av rikets gränser kräver mod", speakerID: 1, date: 19120215, tag1: true},
			{id: "s3", content: "Om skolan och bildningen", speakerID: 2, date: 19120320},
			{id: "s4", content: "Rikets försvar är vår plikt", speakerID: 2, date: 19120425, tag1: true},
		})
}

func TestSearchTokensAreConjunctive(t *testing.T) {
	p := searchFixture(t)

	// Both tokens must match, in any position and order.
	records, err := p.Search(context.Background(),
		speech.SearchCriteria{Year: 1912, Query: "rikets försvar"}, 100)
	require.NoError(t, err)

	ids := recordIDs(records)
	assert.Equal(t, []string{"s2", "s4"}, ids,
		"non-adjacent token occurrences still match; results ordered by (date, id)")
}

func TestSearchCaseFoldsBeyondASCII(t *testing.T) {
	p := newTestPartition(t, nil, []rowSpec{
		{id: "u1", content: "ÖSTERSJÖN skyddas av flottan", date: 19120505},
		{id: "u2", content: "om östersjön och handeln", date: 19120606},
		{id: "u3", content: "inget om havet", date: 19120707},
	})

	records, err := p.Search(context.Background(),
		speech.SearchCriteria{Year: 1912, Query: "östersjön"}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, recordIDs(records),
		"capital Å/Ä/Ö must fold like their lower-case forms")
}

func TestSearchCombinedCriteria(t *testing.T) {
	p := searchFixture(t)
	ctx := context.Background()

	tag1 := true
	records, err := p.Search(ctx, speech.SearchCriteria{
		Year:    1912,
		Parties: []string{"Right"},
		Tag1:    &tag1,
	}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, recordIDs(records),
		"party and tag filters apply simultaneously")

	speaker := int64(2)
	records, err = p.Search(ctx, speech.SearchCriteria{Year: 1912, SpeakerID: &speaker}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s4"}, recordIDs(records))

	from, to := 19120201, 19120331
	records, err = p.Search(ctx, speech.SearchCriteria{Year: 1912, DateFrom: &from, DateTo: &to}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3"}, recordIDs(records), "date range is inclusive")

	records, err = p.Search(ctx, speech.SearchCriteria{Year: 1912, Gender: "woman"}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s4"}, recordIDs(records))
}

func TestSearchBlankQueryMatchesAll(t *testing.T) {
	p := searchFixture(t)

	records, err := p.Search(context.Background(),
		speech.SearchCriteria{Year: 1912, Query: "   "}, 100)
	require.NoError(t, err)
	assert.Len(t, records, 4, "blank query contributes no predicate")
}

func TestSearchRowCap(t *testing.T) {
	p := searchFixture(t)

	records, err := p.Search(context.Background(), speech.SearchCriteria{Year: 1912}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, recordIDs(records),
		"cap keeps the earliest rows in (date, id) order")
}

func TestSearchFalseTagFilter(t *testing.T) {
	p := searchFixture(t)

	tag1 := false
	records, err := p.Search(context.Background(),
		speech.SearchCriteria{Year: 1912, Tag1: &tag1}, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3"}, recordIDs(records),
		"tri-state false is a real filter, not an absent one")
}

func recordIDs(records []speech.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
