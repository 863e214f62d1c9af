package source

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bi-agent/internal/model"
	"github.com/sells-group/bi-agent/pkg/notion"
)

// NotionSource reads a collection from a Notion database. The client
// handles throttling and retries; the source adds a circuit breaker.
type NotionSource struct {
	client     notion.Client
	dbID       string
	collection model.Collection
	guard      guard
}

// NewNotion returns a source for the database dbID.
func NewNotion(client notion.Client, dbID string, collection model.Collection, opts ...Option) *NotionSource {
	return &NotionSource{
		client:     client,
		dbID:       dbID,
		collection: collection,
		guard:      newGuard("notion:"+string(collection), opts),
	}
}

// Fetch reads the database schema and every page concurrently. Number and
// date properties are declared in the schema; the rest is inferred.
func (s *NotionSource) Fetch(ctx context.Context) (model.RawCollection, error) {
	var (
		db    *notionapi.Database
		pages []notionapi.Page
	)
	err := s.guard.run(ctx, "notion", "fetch "+string(s.collection), func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			db, err = s.client.GetDatabase(gctx, s.dbID)
			return err
		})
		g.Go(func() error {
			var err error
			pages, err = notion.QueryAll(gctx, s.client, s.dbID, nil)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return model.RawCollection{}, eris.Wrapf(err, "source: notion %s", s.collection)
	}

	records := make([]model.RawRecord, 0, len(pages))
	for _, p := range pages {
		if p.Archived {
			continue
		}
		records = append(records, notion.Flatten(p))
	}
	records = uniqueByID(s.collection, records)

	zap.L().Info("source: fetched notion collection",
		zap.String("collection", string(s.collection)),
		zap.String("database", s.dbID),
		zap.Int("records", len(records)),
	)
	return model.RawCollection{
		Collection: s.collection,
		Schema:     model.NewSchema(notion.DeclaredTypes(db), nil, nil),
		Records:    records,
	}, nil
}
