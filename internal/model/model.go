// Package model defines the domain types used across the application.
package model

import "time"

// SourceKind identifies where a news item came from.
type SourceKind string

// Supported source kinds.
const (
	SourcePrimary SourceKind = "hackernews"
	SourceRSS     SourceKind = "rss"
)

// Source identifies the provenance of an item. Name is only set for RSS feeds.
type Source struct {
	Kind SourceKind
	Name string
}

// PrimarySource is the top stories API.
var PrimarySource = Source{Kind: SourcePrimary}

// RSSSource returns the source for the RSS feed with the given name.
func RSSSource(name string) Source {
	return Source{Kind: SourceRSS, Name: name}
}

// Key returns the namespace under which items of this source are stored.
// Different sources may reuse the same external IDs, so the key is part of
// the stored identity.
func (s Source) Key() string {
	if s.Kind == SourceRSS {
		return "rss:" + s.Name
	}
	return string(s.Kind)
}

// Label returns a human-readable name for the source.
func (s Source) Label() string {
	if s.Kind == SourceRSS {
		return s.Name
	}
	return "Hacker News"
}

// CandidateItem is a freshly fetched item that has not been checked against
// stored history yet.
type CandidateItem struct {
	ExternalID  string
	Source      Source
	Title       string
	URL         string
	Text        string
	PublishedAt time.Time
}

// StoredItem marks an item as already processed.
type StoredItem struct {
	ExternalID  string
	Source      Source
	FirstSeenAt time.Time
}

// TopicFilter is a named classification rule. Value holds comma-separated
// regex alternatives.
type TopicFilter struct {
	Title string `yaml:"title"`
	Value string `yaml:"value"`
}

// DigestEntry is a new item selected for delivery together with the topics
// it matched.
type DigestEntry struct {
	ExternalID  string
	Source      Source
	Title       string
	URL         string
	PublishedAt time.Time
	FirstSeenAt time.Time
	Labels      []string
}
