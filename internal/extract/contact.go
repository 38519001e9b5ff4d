package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

var (
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// Street address followed by city/state/zip, the shape municipal contact
	// blocks almost always take.
	addressRe = regexp.MustCompile(
		`\d{1,6}\s+[A-Za-z0-9.' -]+\b(?:Street|St|Avenue|Ave|Boulevard|Blvd|Drive|Dr|Road|Rd|Lane|Ln|Way|Plaza|Square|Sq)\b\.?(?:,?\s+(?:Suite|Ste|Room|Rm|Floor|Fl)\.?\s*[A-Za-z0-9-]+)?(?:,\s*[A-Za-z .-]+,?\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?)?`)

	// "Monday - Friday: 8:00 AM - 5:00 PM" and similar.
	hoursRe = regexp.MustCompile(
		`(?i)(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*\.?\s*(?:through|thru|to|[-–])\s*(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)[a-z]*\.?,?\s*:?\s*\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)?\s*(?:to|[-–])\s*\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)`)
)

// ExtractContact scans the document text for phone, email, postal address
// and hours-of-operation patterns. First match wins for each field.
func ExtractContact(doc *goquery.Document) permit.ContactInfo {
	text := doc.Text()
	contact := permit.ContactInfo{
		Phone:   normalizeSpace(phoneRe.FindString(text)),
		Address: normalizeSpace(addressRe.FindString(text)),
		Hours:   normalizeSpace(hoursRe.FindString(text)),
	}

	// Prefer permit-office mailboxes over webmaster addresses when several
	// emails appear on the page.
	emails := emailRe.FindAllString(text, 10)
	contact.Email = pickEmail(emails)

	// mailto links are more reliable than body text.
	if contact.Email == "" {
		doc.Find(`a[href^="mailto:"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			addr := strings.TrimPrefix(href, "mailto:")
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			if emailRe.MatchString(addr) {
				contact.Email = addr
				return false
			}
			return true
		})
	}
	return contact
}

var preferredMailboxes = []string{"permit", "building", "planning", "zoning", "development", "inspection"}

func pickEmail(emails []string) string {
	if len(emails) == 0 {
		return ""
	}
	for _, e := range emails {
		lower := strings.ToLower(e)
		for _, kw := range preferredMailboxes {
			if strings.Contains(lower, kw) {
				return e
			}
		}
	}
	return emails[0]
}
