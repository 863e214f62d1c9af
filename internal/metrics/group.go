package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/bi-agent/internal/model"
)

// foldMode says how a bucket's accumulators become its value.
type foldMode int

const (
	foldSum     foldMode = iota // num
	foldPercent                 // num / den * 100
	foldRatio                   // num / den
)

type tally struct {
	key   string
	order string
	num   float64
	den   float64
	count int
}

// groups is a generic fold of records into breakdown buckets.
type groups struct {
	by     model.GroupBy
	fiscal time.Month
	m      map[string]*tally
}

func newGroups(by model.GroupBy, fiscal time.Month) *groups {
	return &groups{by: by, fiscal: fiscal, m: map[string]*tally{}}
}

// key returns the bucket key of a record and its chronological sort key.
// Defaulted keys land in the unspecified and unscheduled buckets.
func (g *groups) key(rec *model.CleanRecord, d time.Time, dated bool) (string, string) {
	switch g.by {
	case model.GroupSector:
		if rec.Sector == "" {
			return model.Unspecified, ""
		}
		return rec.Sector, ""
	case model.GroupMonth:
		if !dated {
			return model.Unscheduled, "~"
		}
		k := d.Format("2006-01")
		return k, k
	case model.GroupQuarter:
		if !dated {
			return model.Unscheduled, "~"
		}
		q, fy := FiscalQuarter(d, g.fiscal)
		return QuarterLabel(d, g.fiscal), fmt.Sprintf("%04d-%d", fy, q)
	case model.GroupStatus:
		return string(rec.Status), ""
	}
	return "", ""
}

// add folds one record. count marks whether the record counts toward the
// bucket's record count.
func (g *groups) add(rec *model.CleanRecord, d time.Time, dated bool, num, den float64, count bool) {
	if g.by == model.GroupNone {
		return
	}
	k, order := g.key(rec, d, dated)
	t, ok := g.m[k]
	if !ok {
		t = &tally{key: k, order: order}
		g.m[k] = t
	}
	t.num += num
	t.den += den
	if count {
		t.count++
	}
}

// buckets returns the breakdown ordered by value descending for sectors
// and statuses and chronologically for periods, with defaulted keys last.
func (g *groups) buckets(mode foldMode) []model.Bucket {
	if g.by == model.GroupNone || len(g.m) == 0 {
		return nil
	}
	out := make([]model.Bucket, 0, len(g.m))
	order := make(map[string]string, len(g.m))
	for k, t := range g.m {
		b := model.Bucket{Key: k, Count: t.count}
		b.Value, b.NoData = fold(mode, t.num, t.den)
		out = append(out, b)
		order[k] = t.order
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if g.by == model.GroupMonth || g.by == model.GroupQuarter {
			return order[a.Key] < order[b.Key]
		}
		if (a.Key == model.Unspecified) != (b.Key == model.Unspecified) {
			return b.Key == model.Unspecified
		}
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Key < b.Key
	})
	return out
}

func fold(mode foldMode, num, den float64) (float64, bool) {
	switch mode {
	case foldPercent:
		if den == 0 {
			return 0, true
		}
		return num / den * 100, false
	case foldRatio:
		if den == 0 {
			return 0, true
		}
		return num / den, false
	default:
		return num, false
	}
}
