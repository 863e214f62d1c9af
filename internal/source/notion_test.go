package source

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/internal/resilience"
)

// mockNotion implements notion.Client for testing.
type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	args := m.Called(ctx, dbID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Database), args.Error(1)
}

func dealDB() *notionapi.Database {
	return &notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"Deal Name":  &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			"Deal Value": &notionapi.NumberPropertyConfig{Type: notionapi.PropertyConfigTypeNumber},
			"Deal Stage": &notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect},
		},
	}
}

func dealPage(id, name, stage string, value float64) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			"Deal Name": &notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{{PlainText: name}},
			},
			"Deal Stage": &notionapi.StatusProperty{
				Type:   notionapi.PropertyTypeStatus,
				Status: notionapi.Status{Name: stage},
			},
			"Deal Value": &notionapi.NumberProperty{
				Type:   notionapi.PropertyTypeNumber,
				Number: value,
			},
		},
	}
}

func TestNotionSource_Fetch(t *testing.T) {
	mc := new(mockNotion)
	mc.On("GetDatabase", mock.Anything, "db-pipe").Return(dealDB(), nil).Once()

	archived := dealPage("p3", "Old Deal", "Lost", 1)
	archived.Archived = true
	mc.On("QueryDatabase", mock.Anything, "db-pipe", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				dealPage("p1", "Coal Survey", "Won", 25000000),
				dealPage("p2", "Metro Mapping", "Open", 3000000),
				dealPage("p1", "Coal Survey", "Won", 25000000),
				archived,
			},
		}, nil).Once()

	src := NewNotion(mc, "db-pipe", model.CollectionPipeline)
	raw, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.CollectionPipeline, raw.Collection)
	require.Len(t, raw.Records, 2, "duplicate and archived pages are dropped")
	assert.Equal(t, "p1", raw.Records[0][model.FieldItemID])
	assert.Equal(t, "Coal Survey", raw.Records[0][model.FieldItemName])
	assert.Equal(t, "Won", raw.Records[0]["Deal Stage"])

	require.NotNil(t, raw.Schema)
	f, ok := raw.Schema.Field("Deal Value")
	require.True(t, ok)
	assert.Equal(t, model.TypeNumeric, f.Type)
	_, ok = raw.Schema.Field("Deal Stage")
	assert.False(t, ok, "only number and date properties are declared")
	mc.AssertExpectations(t)
}

func TestNotionSource_FetchError(t *testing.T) {
	mc := new(mockNotion)
	mc.On("GetDatabase", mock.Anything, "db-exec").Return(nil, assert.AnError)
	mc.On("QueryDatabase", mock.Anything, "db-exec", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Maybe()

	src := NewNotion(mc, "db-exec", model.CollectionExecution)
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "source: notion execution")
}

func TestNotionSource_BreakerOpens(t *testing.T) {
	mc := new(mockNotion)
	mc.On("GetDatabase", mock.Anything, "db-exec").Return(nil, assert.AnError)
	mc.On("QueryDatabase", mock.Anything, "db-exec", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Maybe()

	src := NewNotion(mc, "db-exec", model.CollectionExecution,
		WithBreaker(resilience.NewBreaker("test", 2, time.Hour)))

	for range 2 {
		_, err := src.Fetch(context.Background())
		require.ErrorIs(t, err, assert.AnError)
	}
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	mc.AssertNumberOfCalls(t, "GetDatabase", 2)
}
