package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// TitleValue builds a title property.
func TitleValue(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: richText(s)}
}

// TextValue builds a rich text property. Notion caps a text block at 2000
// characters, so longer values are cut.
func TextValue(s string) notionapi.RichTextProperty {
	if len(s) > 2000 {
		s = s[:2000]
	}
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(s)}
}

// URLValue builds a URL property.
func URLValue(u string) notionapi.URLProperty {
	return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: u}
}

// SelectValue builds a select property.
func SelectValue(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// StatusValue builds a status property.
func StatusValue(name string) notionapi.StatusProperty {
	return notionapi.StatusProperty{Type: notionapi.PropertyTypeStatus, Status: notionapi.Status{Name: name}}
}

// DateValue builds a date property.
func DateValue(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &d}}
}

// PlainText returns the text of a title or rich text property, or "" when the
// page has no such property.
func PlainText(p notionapi.Page, property string) string {
	var parts []notionapi.RichText
	switch prop := p.Properties[property].(type) {
	case *notionapi.TitleProperty:
		parts = prop.Title
	case *notionapi.RichTextProperty:
		parts = prop.RichText
	default:
		return ""
	}
	var sb strings.Builder
	for _, rt := range parts {
		sb.WriteString(rt.PlainText)
		if rt.PlainText == "" && rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(sb.String())
}

// OptionName returns the chosen option of a status or select property.
func OptionName(p notionapi.Page, property string) string {
	switch prop := p.Properties[property].(type) {
	case *notionapi.StatusProperty:
		return prop.Status.Name
	case *notionapi.SelectProperty:
		return prop.Select.Name
	}
	return ""
}
