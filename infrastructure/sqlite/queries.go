package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// selectColumns is the fixed, versioned field list every record query
// scans. Columns outside this list never reach callers.
const selectColumns = `
	s.id, s.content, COALESCE(s.prev, ''), COALESCE(s.next, ''),
	s.speaker_id, s.year, s.date, s.tag_1, s.tag_2, s.tag_3,
	COALESCE(sp.name, ''), COALESCE(sp.gender, ''), COALESCE(sp.party, '')`

const fromJoin = ` FROM speeches s LEFT JOIN speakers sp ON s.speaker_id = sp.id`

// scanRecord scans one row in selectColumns order.
func scanRecord(row interface{ Scan(...any) error }) (*speech.Record, error) {
	var r speech.Record
	var tag1, tag2, tag3 int
	err := row.Scan(
		&r.ID, &r.Content, &r.Prev, &r.Next,
		&r.SpeakerID, &r.Year, &r.Date, &tag1, &tag2, &tag3,
		&r.Speaker.Name, &r.Speaker.Gender, &r.Speaker.Party,
	)
	if err != nil {
		return nil, err
	}
	r.Tag1 = tag1 != 0
	r.Tag2 = tag2 != 0
	r.Tag3 = tag3 != 0
	return &r, nil
}

// queryOne runs a single-record query; a missing row maps to (nil, nil).
func (p *Partition) queryOne(ctx context.Context, operation, query string, args ...any) (*speech.Record, error) {
	row := p.db.QueryRowContext(ctx, query, args...)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionError(operation, err).WithPartition(p.key)
	}
	return r, nil
}

// RecordByID fetches one record with its speaker attributes. Returns
// (nil, nil) when the id does not exist: traversal treats that as a
// chain terminus, not an error.
func (p *Partition) RecordByID(ctx context.Context, id string) (*speech.Record, error) {
	return p.queryOne(ctx, "record_by_id",
		"SELECT"+selectColumns+fromJoin+" WHERE s.id = ?", id)
}

// orderClause builds the (date, id) ordering for a direction: strict
// inequality on the comparison pair excludes the anchor record itself,
// ascending for next semantics and descending for prev.
func orderClause(dir speech.Direction) (cmp string, order string) {
	if dir == speech.DirectionNext {
		return "(s.date > ? OR (s.date = ? AND s.id > ?))", "ORDER BY s.date ASC, s.id ASC"
	}
	return "(s.date < ? OR (s.date = ? AND s.id < ?))", "ORDER BY s.date DESC, s.id DESC"
}

// exchangeStartCond selects records that open an exchange.
const exchangeStartCond = "(s.prev IS NULL OR s.prev = '')"

// AdjacentExchangeStart finds the nearest exchange-opening record
// strictly before/after (date, id) in the ordering for dir.
func (p *Partition) AdjacentExchangeStart(ctx context.Context, date int, id string, dir speech.Direction) (*speech.Record, error) {
	cmp, order := orderClause(dir)
	query := "SELECT" + selectColumns + fromJoin +
		" WHERE " + exchangeStartCond + " AND " + cmp + " " + order + " LIMIT 1"
	return p.queryOne(ctx, "adjacent_exchange", query, date, date, id)
}

// FirstExchangeStart returns the boundary exchange-opening record:
// the earliest one for next semantics, the latest for prev. Used when
// an adjacency scan crosses into a fresh partition.
func (p *Partition) FirstExchangeStart(ctx context.Context, dir speech.Direction) (*speech.Record, error) {
	order := "ORDER BY s.date ASC, s.id ASC"
	if dir == speech.DirectionPrev {
		order = "ORDER BY s.date DESC, s.id DESC"
	}
	query := "SELECT" + selectColumns + fromJoin +
		" WHERE " + exchangeStartCond + " " + order + " LIMIT 1"
	return p.queryOne(ctx, "first_exchange", query)
}

// Boundary returns the first (prev direction) or last (next direction)
// record of the whole partition by (date, id) order.
func (p *Partition) Boundary(ctx context.Context, dir speech.Direction) (*speech.Record, error) {
	order := "ORDER BY s.date ASC, s.id ASC"
	if dir == speech.DirectionNext {
		order = "ORDER BY s.date DESC, s.id DESC"
	}
	return p.queryOne(ctx, "boundary",
		"SELECT"+selectColumns+fromJoin+" "+order+" LIMIT 1")
}

// AdjacentTagged finds the nearest record matching pred strictly
// before/after (date, id) in the ordering for dir.
func (p *Partition) AdjacentTagged(ctx context.Context, date int, id string, dir speech.Direction, pred speech.TagPredicate) (*speech.Record, error) {
	cond, args := tagCondition(pred)
	if cond == "" {
		return nil, nil
	}

	cmp, order := orderClause(dir)
	query := "SELECT" + selectColumns + fromJoin +
		" WHERE " + cond + " AND " + cmp + " " + order + " LIMIT 1"
	args = append(args, date, date, id)
	return p.queryOne(ctx, "adjacent_tagged", query, args...)
}

// FirstTagged returns the boundary record matching pred, scanning from
// the start of the partition for next semantics and from the end for
// prev. Used when a tag scan crosses into a fresh partition.
func (p *Partition) FirstTagged(ctx context.Context, dir speech.Direction, pred speech.TagPredicate) (*speech.Record, error) {
	cond, args := tagCondition(pred)
	if cond == "" {
		return nil, nil
	}

	order := "ORDER BY s.date ASC, s.id ASC"
	if dir == speech.DirectionPrev {
		order = "ORDER BY s.date DESC, s.id DESC"
	}
	query := "SELECT" + selectColumns + fromJoin + " WHERE " + cond + " " + order + " LIMIT 1"
	return p.queryOne(ctx, "first_tagged", query, args...)
}

// tagCondition renders a tag predicate to SQL. An empty predicate
// renders to no condition, which callers treat as no match.
func tagCondition(pred speech.TagPredicate) (string, []any) {
	var conds []string
	var args []any
	if pred.AnyTag {
		conds = append(conds, "(s.tag_1 = 1 OR s.tag_2 = 1 OR s.tag_3 = 1)")
	}
	if pred.Gender != "" {
		conds = append(conds, "sp.gender = ?")
		args = append(args, pred.Gender)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return strings.Join(conds, " AND "), args
}
