package sqlite

import (
	"context"
	"strings"

	"github.com/DigitalHistory-Lund/ToK-Reader/domain/speech"
	apperrors "github.com/DigitalHistory-Lund/ToK-Reader/pkg/errors"
)

// predicate is one typed filter clause. Keeping the variants explicit
// (instead of concatenating raw SQL fragments per criterion) keeps
// parameter ordering unambiguous and the query injection-safe.
type predicate struct {
	kind   predicateKind
	column string
	args   []any
}

type predicateKind int

const (
	predEquality predicateKind = iota
	predSetMembership
	predLowerBound
	predUpperBound
	predSubstring
)

// render emits the SQL fragment and appends its bind args.
func (p predicate) render(args *[]any) string {
	*args = append(*args, p.args...)
	switch p.kind {
	case predEquality:
		return p.column + " = ?"
	case predSetMembership:
		return p.column + " IN (?" + strings.Repeat(", ?", len(p.args)-1) + ")"
	case predLowerBound:
		return p.column + " >= ?"
	case predUpperBound:
		return p.column + " <= ?"
	case predSubstring:
		return "instr(ulower(" + p.column + "), ?) > 0"
	}
	return ""
}

// buildPredicates translates the optional-criteria set into an ordered
// conjunctive predicate list. Absent criteria contribute nothing.
func buildPredicates(c speech.SearchCriteria) []predicate {
	var preds []predicate

	// Free text: lower-cased, whitespace-tokenized, every token an
	// independent required substring match.
	for _, token := range strings.Fields(strings.ToLower(c.Query)) {
		preds = append(preds, predicate{kind: predSubstring, column: "s.content", args: []any{token}})
	}

	if len(c.Parties) > 0 {
		args := make([]any, len(c.Parties))
		for i, party := range c.Parties {
			args[i] = party
		}
		preds = append(preds, predicate{kind: predSetMembership, column: "sp.party", args: args})
	}

	if c.Gender != "" {
		preds = append(preds, predicate{kind: predEquality, column: "sp.gender", args: []any{c.Gender}})
	}

	if c.SpeakerID != nil {
		preds = append(preds, predicate{kind: predEquality, column: "s.speaker_id", args: []any{*c.SpeakerID}})
	}

	tags := []struct {
		column string
		value  *bool
	}{
		{"s.tag_1", c.Tag1},
		{"s.tag_2", c.Tag2},
		{"s.tag_3", c.Tag3},
	}
	for _, t := range tags {
		if tag := t.value; tag != nil {
			v := 0
			if *tag {
				v = 1
			}
			preds = append(preds, predicate{kind: predEquality, column: t.column, args: []any{v}})
		}
	}

	if c.DateFrom != nil {
		preds = append(preds, predicate{kind: predLowerBound, column: "s.date", args: []any{*c.DateFrom}})
	}
	if c.DateTo != nil {
		preds = append(preds, predicate{kind: predUpperBound, column: "s.date", args: []any{*c.DateTo}})
	}

	return preds
}

// Search runs the conjunctive filter query against the partition,
// capped at limit rows, ordered by (date, id) ascending.
func (p *Partition) Search(ctx context.Context, c speech.SearchCriteria, limit int) ([]speech.Record, error) {
	var sb strings.Builder
	sb.WriteString("SELECT" + selectColumns + fromJoin)

	var args []any
	preds := buildPredicates(c)
	for i, pred := range preds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(pred.render(&args))
	}

	sb.WriteString(" ORDER BY s.date ASC, s.id ASC LIMIT ?")
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionError("search", err).WithPartition(p.key)
	}
	defer rows.Close()

	var records []speech.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionError("search", err).WithPartition(p.key)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionError("search", err).WithPartition(p.key)
	}
	return records, nil
}
