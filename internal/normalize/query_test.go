package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryCandidatesJSONArray(t *testing.T) {
	got := QueryCandidates(`["coffee table", "lamp", "rug"]`)
	assert.Equal(t, []string{"coffee table", "lamp", "rug"}, got)
}

func TestQueryCandidatesNewlineBulletList(t *testing.T) {
	got := QueryCandidates("- coffee table\n- lamp\n* rug")
	assert.Equal(t, []string{"coffee table", "lamp", "rug"}, got)
}

func TestQueryCandidatesNumberedList(t *testing.T) {
	got := QueryCandidates("1. coffee table\n2) lamp")
	assert.Equal(t, []string{"coffee table", "lamp"}, got)
}

func TestQueryCandidatesCommaSeparated(t *testing.T) {
	got := QueryCandidates("coffee table, lamp, rug")
	assert.Equal(t, []string{"coffee table", "lamp", "rug"}, got)
}

func TestQueryCandidatesSplitsOnFirstSeparatorOnly(t *testing.T) {
	got := QueryCandidates("coffee table, lamp; rug")
	assert.Equal(t, []string{"coffee table", "lamp; rug"}, got)
}

func TestQueryCandidatesSemicolonSeparated(t *testing.T) {
	got := QueryCandidates("coffee table; lamp")
	assert.Equal(t, []string{"coffee table", "lamp"}, got)
}

func TestQueryCandidatesSinglePhrase(t *testing.T) {
	got := QueryCandidates("coffee table")
	assert.Equal(t, []string{"coffee table"}, got)
}

func TestQueryCandidatesEmpty(t *testing.T) {
	assert.Nil(t, QueryCandidates(""))
	assert.Nil(t, QueryCandidates("   "))
}
