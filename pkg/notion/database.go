package notion

import (
	"context"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bi-agent/internal/model"
)

// QueryAll fetches every page of a database, following cursors. While page
// N is appended the request for page N+1 is already in flight.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	request := func(cursor notionapi.Cursor) <-chan result {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor, PageSize: 100}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			if filter.PageSize > 0 {
				req.PageSize = filter.PageSize
			}
		}
		ch := make(chan result, 1)
		if err := ctx.Err(); err != nil {
			ch <- result{err: err}
			return ch
		}
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, req)
			ch <- result{resp, err}
		}()
		return ch
	}

	var all []notionapi.Page
	next := request("")
	for next != nil {
		r := <-next
		if r.err != nil {
			return nil, eris.Wrap(r.err, "notion: query all")
		}
		next = nil
		if r.resp.HasMore && r.resp.NextCursor != "" {
			next = request(r.resp.NextCursor)
		}
		all = append(all, r.resp.Results...)
	}
	return all, nil
}

// Flatten converts a page into a raw record. The page id is stored under
// model.FieldItemID and its title under model.FieldItemName; every other
// property keeps its Notion name. Relations contribute their first page id.
func Flatten(p notionapi.Page) model.RawRecord {
	rec := model.RawRecord{model.FieldItemID: string(p.ID)}
	for name, prop := range p.Properties {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			rec[model.FieldItemName] = plainText(tp.Title)
			continue
		}
		rec[name] = propertyValue(prop)
	}
	if _, ok := rec[model.FieldItemName]; !ok {
		rec[model.FieldItemName] = nil
	}
	return rec
}

func propertyValue(prop notionapi.Property) any {
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case *notionapi.NumberProperty:
		return p.Number
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.StatusProperty:
		return p.Status.Name
	case *notionapi.MultiSelectProperty:
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return strings.Join(names, ", ")
	case *notionapi.DateProperty:
		return dateValue(p.Date)
	case *notionapi.CheckboxProperty:
		return p.Checkbox
	case *notionapi.RelationProperty:
		if len(p.Relation) == 0 {
			return nil
		}
		return string(p.Relation[0].ID)
	case *notionapi.PeopleProperty:
		if len(p.People) == 0 {
			return nil
		}
		return p.People[0].Name
	case *notionapi.EmailProperty:
		return p.Email
	case *notionapi.URLProperty:
		return p.URL
	case *notionapi.PhoneNumberProperty:
		return p.PhoneNumber
	case *notionapi.FormulaProperty:
		return formulaValue(p.Formula)
	default:
		return nil
	}
}

func formulaValue(f notionapi.Formula) any {
	switch f.Type {
	case notionapi.FormulaTypeNumber:
		return f.Number
	case notionapi.FormulaTypeBoolean:
		return f.Boolean
	case notionapi.FormulaTypeDate:
		return dateValue(f.Date)
	default:
		return f.String
	}
}

func dateValue(d *notionapi.DateObject) any {
	if d == nil || d.Start == nil {
		return nil
	}
	return time.Time(*d.Start).Format("2006-01-02")
}

// DeclaredTypes returns the field types Notion guarantees: number
// properties are numeric and date properties are dates. Other properties
// are left to schema inference.
func DeclaredTypes(db *notionapi.Database) []model.FieldSpec {
	var out []model.FieldSpec
	for name, cfg := range db.Properties {
		switch string(cfg.GetType()) {
		case "number":
			out = append(out, model.FieldSpec{Name: name, Type: model.TypeNumeric})
		case "date":
			out = append(out, model.FieldSpec{Name: name, Type: model.TypeDate})
		}
	}
	return out
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return b.String()
}
