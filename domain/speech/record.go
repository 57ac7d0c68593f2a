// Package speech defines the domain model for archived parliamentary
// speeches: one record per utterance, chained chronologically through
// prev/next links into exchanges, partitioned one dataset per year.
package speech

// Record is a single utterance, denormalized with its speaker's
// attributes at read time. Prev and Next hold the ids of the linked
// records; an empty Prev marks the first record of an exchange.
type Record struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Prev      string `json:"prev,omitempty"`
	Next      string `json:"next,omitempty"`
	SpeakerID int64  `json:"speaker_id"`
	Year      int    `json:"year"`
	Date      int    `json:"date"` // YYYYMMDD

	Tag1 bool `json:"tag_1"`
	Tag2 bool `json:"tag_2"`
	Tag3 bool `json:"tag_3"`

	Speaker Speaker `json:"speaker"`
}

// Speaker holds the attributes joined onto a record.
type Speaker struct {
	Name   string `json:"name"`
	Gender string `json:"gender,omitempty"`
	Party  string `json:"party,omitempty"`
}

// IsExchangeStart reports whether the record opens an exchange.
func (r *Record) IsExchangeStart() bool {
	return r.Prev == ""
}

// Direction orders chain walks and adjacency queries. Next means
// chronologically forward by the (date, id) ordering key, Prev backward.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// Valid reports whether d is one of the two defined directions.
func (d Direction) Valid() bool {
	return d == DirectionPrev || d == DirectionNext
}

// TagPredicate selects records by classification flags or by a speaker
// attribute. Zero value matches nothing; exactly one selection mode is
// expected to be set by the caller.
type TagPredicate struct {
	// AnyTag matches records with at least one of tag_1..tag_3 set.
	AnyTag bool `json:"any_tag,omitempty"`
	// Gender, when non-empty, matches records whose speaker has this gender.
	Gender string `json:"gender,omitempty"`
}

// Context is a window of records around a center: Before in
// chronological order, then Center, then After.
type Context struct {
	Before []Record `json:"before"`
	Center *Record  `json:"center"`
	After  []Record `json:"after"`
}
