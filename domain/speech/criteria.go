package speech

// SearchCriteria is the optional-field filter set for speech search.
// Year is the only required field; every other present criterion adds
// one AND-ed predicate. Tags are tri-state: nil means unconstrained.
type SearchCriteria struct {
	Year      int      `json:"year" validate:"required,min=1800,max=2100"`
	Query     string   `json:"query,omitempty"`
	Parties   []string `json:"parties,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	SpeakerID *int64   `json:"speaker_id,omitempty"`
	Tag1      *bool    `json:"tag_1,omitempty"`
	Tag2      *bool    `json:"tag_2,omitempty"`
	Tag3      *bool    `json:"tag_3,omitempty"`
	DateFrom  *int     `json:"date_from,omitempty" validate:"omitempty,min=18000101"`
	DateTo    *int     `json:"date_to,omitempty" validate:"omitempty,min=18000101"`
}

// SearchResult is a matched record plus the snippet derived for the
// free-text query, when one was given.
type SearchResult struct {
	Record
	Snippet string `json:"snippet,omitempty"`
}
