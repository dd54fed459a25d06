package netrows

import (
	"strconv"
	"strings"
	"time"
)

// The API has shipped several payload shapes. Each field is read from the
// first key in its list that holds a value.
var (
	envelopeKeys   = []string{"data", "profile", "person", "result"}
	fullNameKeys   = []string{"full_name", "fullName", "name"}
	firstNameKeys  = []string{"first_name", "firstName"}
	lastNameKeys   = []string{"last_name", "lastName"}
	headlineKeys   = []string{"headline", "title", "occupation"}
	locationKeys   = []string{"location", "locationName", "geo", "city"}
	positionsKeys  = []string{"experiences", "experience", "positions", "position", "work_experience"}
	companyKeys    = []string{"company", "companyName", "company_name", "organization", "employer"}
	titleKeys      = []string{"title", "position", "role", "job_title"}
	startKeys      = []string{"start", "starts_at", "startDate", "start_date", "date_start"}
	endKeys        = []string{"end", "ends_at", "endDate", "end_date", "date_end"}
	currentKeys    = []string{"is_current", "current", "isCurrent"}
	dateLayouts    = []string{"2006-01-02", "2006-01", "Jan 2006", "January 2006", "2006"}
	presentMarkers = []string{"present", "current", "now"}
)

func decodeProfile(raw map[string]any) *Profile {
	for _, k := range envelopeKeys {
		if inner, ok := raw[k].(map[string]any); ok {
			raw = inner
			break
		}
	}

	p := &Profile{
		FullName: firstString(raw, fullNameKeys...),
		Headline: firstString(raw, headlineKeys...),
		Location: firstString(raw, locationKeys...),
	}
	if p.FullName == "" {
		p.FullName = strings.TrimSpace(firstString(raw, firstNameKeys...) + " " + firstString(raw, lastNameKeys...))
	}

	for _, k := range positionsKeys {
		items, ok := raw[k].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			pos := Position{
				Company:  firstString(m, companyKeys...),
				Title:    firstString(m, titleKeys...),
				Location: firstString(m, locationKeys...),
				Start:    firstDate(m, startKeys...),
				End:      firstDate(m, endKeys...),
			}
			pos.Current = firstBool(m, currentKeys...) || (pos.End == nil && isPresent(firstString(m, endKeys...)))
			if pos.Company != "" {
				p.Positions = append(p.Positions, pos)
			}
		}
		if len(p.Positions) > 0 {
			break
		}
	}
	return p
}

// firstString returns the first non-empty string under keys. Nested objects
// with a "name" field (e.g. {"company": {"name": "Acme"}}) are unwrapped.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			if s, ok := v["name"].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func firstBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if b, ok := m[k].(bool); ok {
			return b
		}
	}
	return false
}

func firstDate(m map[string]any, keys ...string) *time.Time {
	for _, k := range keys {
		if t := parseDate(m[k]); t != nil {
			return t
		}
	}
	return nil
}

func parseDate(v any) *time.Time {
	switch d := v.(type) {
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
	case map[string]any:
		year := toInt(d["year"])
		if year == 0 {
			return nil
		}
		month := toInt(d["month"])
		if month < 1 || month > 12 {
			month = 1
		}
		day := toInt(d["day"])
		if day < 1 {
			day = 1
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		return &t
	}
	return nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func isPresent(s string) bool {
	s = strings.ToLower(s)
	for _, m := range presentMarkers {
		if s == m {
			return true
		}
	}
	return false
}
