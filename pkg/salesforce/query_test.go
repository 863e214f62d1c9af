package salesforce

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpportunityQuery_SOQL(t *testing.T) {
	t.Run("all opportunities", func(t *testing.T) {
		soql := OpportunityQuery{}.SOQL()
		assert.Contains(t, soql, "SELECT Id, Name, StageName, Amount")
		assert.Contains(t, soql, "Account.Industry")
		assert.NotContains(t, soql, "WHERE")
		assert.True(t, strings.HasSuffix(soql, " ORDER BY Id"))
	})

	t.Run("filters", func(t *testing.T) {
		q := OpportunityQuery{
			CreatedSince: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			RecordTypes:  []string{"Survey", "O'Brien"},
		}
		soql := q.SOQL()
		assert.Contains(t, soql, "WHERE CreatedDate >= 2024-04-01T00:00:00Z AND RecordType.Name IN ('Survey', 'O\\'Brien')")
	})
}

func TestListOpportunities(t *testing.T) {
	t.Run("returns records", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "FROM Opportunity")
				opps := out.(*[]Opportunity)
				*opps = []Opportunity{{ID: "006A", Name: "Coal Survey"}}
				return nil
			},
		}

		opps, err := ListOpportunities(context.Background(), mock, OpportunityQuery{})
		require.NoError(t, err)
		require.Len(t, opps, 1)
		assert.Equal(t, "Coal Survey", opps[0].Name)
	})

	t.Run("returns error on query failure", func(t *testing.T) {
		mock := &mockClient{
			queryFn: func(_ context.Context, _ string, _ any) error {
				return errors.New("connection refused")
			},
		}

		opps, err := ListOpportunities(context.Background(), mock, OpportunityQuery{})
		assert.Error(t, err)
		assert.Nil(t, opps)
		assert.Contains(t, err.Error(), "list opportunities")
	})
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, "test\\'; DROP", escapeSoql("test'; DROP"))
	assert.Equal(t, "plain", escapeSoql("plain"))
}
