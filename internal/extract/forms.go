package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

// ExtractForms enumerates form elements and their input-like fields with
// inferred types and required-ness.
func ExtractForms(doc *goquery.Document, baseURL string) []permit.Form {
	var forms []permit.Form
	doc.Find("form").Each(func(i int, sel *goquery.Selection) {
		form := permit.Form{Name: formName(sel, i)}
		if action, ok := sel.Attr("action"); ok {
			form.URL = resolveURL(baseURL, action)
		}
		sel.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
			f, ok := parseField(field)
			if ok {
				form.Fields = append(form.Fields, f)
			}
		})
		if len(form.Fields) > 0 {
			forms = append(forms, form)
		}
	})
	return forms
}

func formName(sel *goquery.Selection, index int) string {
	for _, attr := range []string{"name", "id", "aria-label", "title"} {
		if v, ok := sel.Attr(attr); ok && v != "" {
			return v
		}
	}
	if legend := normalizeSpace(sel.Find("legend").First().Text()); legend != "" {
		return legend
	}
	return fmt.Sprintf("form-%d", index+1)
}

func parseField(sel *goquery.Selection) (permit.FormField, bool) {
	f := permit.FormField{}
	f.Name, _ = sel.Attr("name")
	if f.Name == "" {
		f.Name, _ = sel.Attr("id")
	}
	if f.Name == "" {
		return f, false
	}

	switch goquery.NodeName(sel) {
	case "textarea":
		f.Type = "textarea"
	case "select":
		f.Type = "select"
	default:
		f.Type = inferInputType(sel)
		if f.Type == "" {
			return f, false
		}
	}

	f.Label = fieldLabel(sel)
	f.Required = fieldRequired(sel, f.Label)
	return f, true
}

func inferInputType(sel *goquery.Selection) string {
	typ, _ := sel.Attr("type")
	switch strings.ToLower(typ) {
	case "hidden", "submit", "button", "image", "reset":
		return ""
	case "email":
		return "email"
	case "tel":
		return "phone"
	case "date", "datetime-local":
		return "date"
	case "number":
		return "number"
	case "checkbox", "radio":
		return "checkbox"
	case "", "text", "search":
		// Fall through to name-based inference for bare text inputs.
	default:
		return "text"
	}

	name, _ := sel.Attr("name")
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "email"):
		return "email"
	case strings.Contains(lower, "phone"), strings.Contains(lower, "tel"):
		return "phone"
	case strings.Contains(lower, "date"):
		return "date"
	case strings.Contains(lower, "zip"), strings.Contains(lower, "amount"),
		strings.Contains(lower, "sqft"), strings.Contains(lower, "number"):
		return "number"
	default:
		return "text"
	}
}

func fieldLabel(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok && id != "" {
		label := sel.Closest("form").Find(`label[for="` + id + `"]`).First()
		if text := normalizeSpace(label.Text()); text != "" {
			return text
		}
	}
	if parent := sel.Closest("label"); parent.Length() > 0 {
		return normalizeSpace(parent.Text())
	}
	if placeholder, ok := sel.Attr("placeholder"); ok {
		return normalizeSpace(placeholder)
	}
	return ""
}

// fieldRequired checks the required attribute, aria marker, and the asterisk
// convention in the label.
func fieldRequired(sel *goquery.Selection, label string) bool {
	if _, ok := sel.Attr("required"); ok {
		return true
	}
	if v, ok := sel.Attr("aria-required"); ok && v == "true" {
		return true
	}
	return strings.Contains(label, "*")
}

// FindPortalURL looks for a link into a known online permitting portal.
func FindPortalURL(doc *goquery.Document, baseURL string) string {
	portalHints := []string{
		"aca.accela.com", "citizenserve.com", "energov", "viewpointcloud",
		"permits.", "epermits", "onlinepermits", "permitportal",
	}
	var portal string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		for _, hint := range portalHints {
			if strings.Contains(lower, hint) {
				portal = resolveURL(baseURL, href)
				return false
			}
		}
		return true
	})
	return portal
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
