// Package normalize canonicalizes person and organization names for matching.
package normalize

import (
	_ "embed"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var defaultVocabYAML []byte

// Vocab holds the versioned word lists used by matching. Lists are stored
// lower-cased; the set fields are built by index().
type Vocab struct {
	Version                  int      `yaml:"version"`
	Credentials              []string `yaml:"credentials"`
	Honorifics               []string `yaml:"honorifics"`
	FormerNameMarkers        []string `yaml:"former_name_markers"`
	LegalSuffixes            []string `yaml:"legal_suffixes"`
	ProfessionalSuffixes     []string `yaml:"professional_suffixes"`
	Stopwords                []string `yaml:"stopwords"`
	GeoStopwords             []string `yaml:"geo_stopwords"`
	DirectoryDomains         []string `yaml:"directory_domains"`
	SearchEngineDomains      []string `yaml:"search_engine_domains"`
	ShortenerDomains         []string `yaml:"shortener_domains"`
	RegistryAggregators      []string `yaml:"registry_aggregators"`
	PracticeSuffixes         []string `yaml:"practice_suffixes"`
	ProfessionalKeywords     []string `yaml:"professional_keywords"`
	ForeignLocaleIndicators  []string `yaml:"foreign_locale_indicators"`
	ForeignNetworkSubdomains []string `yaml:"foreign_network_subdomains"`

	credentials map[string]bool
	honorifics  map[string]bool
	legal       map[string]bool
	profSuffix  map[string]bool
	stopwords   map[string]bool

	formerOnce sync.Once
	formerRe   *regexp.Regexp
}

var (
	defaultOnce  sync.Once
	defaultVocab *Vocab
)

// Default returns the embedded vocabulary.
func Default() *Vocab {
	defaultOnce.Do(func() {
		v, err := ParseVocab(defaultVocabYAML)
		if err != nil {
			panic(err)
		}
		defaultVocab = v
	})
	return defaultVocab
}

// LoadVocab reads a vocabulary override from path. An empty path returns Default().
func LoadVocab(path string) (*Vocab, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read vocab %s", path)
	}
	return ParseVocab(data)
}

// ParseVocab decodes a YAML vocabulary document.
func ParseVocab(data []byte) (*Vocab, error) {
	var v Vocab
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "normalize: parse vocab")
	}
	if v.Version == 0 {
		return nil, eris.New("normalize: vocab version is required")
	}
	v.index()
	return &v, nil
}

func (v *Vocab) index() {
	v.credentials = toSet(v.Credentials)
	v.honorifics = toSet(v.Honorifics)
	v.legal = toSet(v.LegalSuffixes)
	v.profSuffix = toSet(v.ProfessionalSuffixes)
	v.stopwords = toSet(v.Stopwords)
	for w := range toSet(v.GeoStopwords) {
		v.stopwords[w] = true
	}
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return m
}

// IsStopword reports whether a lower-cased token is industry or geographic vocabulary.
func (v *Vocab) IsStopword(token string) bool { return v.stopwords[token] }

// IsCredential reports whether a token (any case, dots allowed) is a post-nominal credential.
func (v *Vocab) IsCredential(token string) bool { return v.credentials[credentialKey(token)] }

func credentialKey(token string) string {
	return strings.ToLower(strings.NewReplacer(".", "", ",", "", "-", "").Replace(token))
}

// hostMatches reports whether host equals, or is a subdomain of, any listed domain.
func hostMatches(host string, domains []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsDirectoryHost reports whether host belongs to a directory, review site,
// social network or data broker.
func (v *Vocab) IsDirectoryHost(host string) bool { return hostMatches(host, v.DirectoryDomains) }

// IsSearchEngineHost reports whether host belongs to a search engine.
func (v *Vocab) IsSearchEngineHost(host string) bool {
	return hostMatches(host, v.SearchEngineDomains)
}

// IsShortenerHost reports whether host is a link shortener.
func (v *Vocab) IsShortenerHost(host string) bool { return hostMatches(host, v.ShortenerDomains) }
