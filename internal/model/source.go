package model

import "time"

// Source is a stored piece of raw text a job extracts from. Domain carries
// the provenance authority lookup key (a hostname for web pages, a
// collection name for documents).
type Source struct {
	Type        SourceType `json:"type"`
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id"`
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"text"`
	Domain      string     `json:"domain,omitempty"`
	ArticleDate string     `json:"article_date,omitempty"` // YYYY-MM-DD when known
	CreatedAt   time.Time  `json:"created_at"`
}

// Ref renders the provenance reference recorded on extracted facts.
func (s *Source) Ref() string {
	return string(s.Type) + ":" + s.ID
}
