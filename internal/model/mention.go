package model

import (
	"fmt"
	"time"
)

// Source identifies where a piece of employment evidence came from.
type Source string

const (
	SourcePipeline  Source = "pipeline"
	SourceRegistry  Source = "npi_registry"
	SourceWebSearch Source = "web_search"
	SourceNetwork   Source = "linkedin"
	SourceDirectory Source = "directory"
)

// Sources lists every evidence source in monitoring precedence order.
var Sources = []Source{SourcePipeline, SourceRegistry, SourceWebSearch, SourceDirectory, SourceNetwork}

// MentionKind records how strongly a mention is tied to the person.
type MentionKind string

const (
	// KindProfile is a person-validated profile (network profile, directory listing).
	KindProfile MentionKind = "profile"
	// KindRegistry is a registry record or a page keyed on the person's registry number.
	KindRegistry MentionKind = "registry"
	// KindSearchResult is a search result title and snippet.
	KindSearchResult MentionKind = "search_result"
	// KindPage is the extracted text of a fetched page.
	KindPage MentionKind = "page"
)

// PersonValidated reports whether the mention's provenance already ties it to the person.
func (k MentionKind) PersonValidated() bool {
	return k == KindProfile || k == KindRegistry
}

// Location is a city/state pair. State is a two-letter postal code.
type Location struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// IsZero reports whether no part of the location is known.
func (l Location) IsZero() bool { return l.City == "" && l.State == "" }

func (l Location) String() string {
	switch {
	case l.City != "" && l.State != "":
		return fmt.Sprintf("%s, %s", l.City, l.State)
	case l.State != "":
		return l.State
	default:
		return l.City
	}
}

// OrganizationMention is a candidate organization extracted from one piece of evidence.
type OrganizationMention struct {
	Organization string      `json:"organization"`
	Location     Location    `json:"location"`
	Address      string      `json:"address,omitempty"`
	Source       Source      `json:"source"`
	Kind         MentionKind `json:"kind"`
	URL          string      `json:"url,omitempty"`
	Title        string      `json:"title,omitempty"`
	Start        *time.Time  `json:"start,omitempty"`
	End          *time.Time  `json:"end,omitempty"`
	Current      bool        `json:"current,omitempty"`
	RawScore     int         `json:"raw_score,omitempty"`
}
