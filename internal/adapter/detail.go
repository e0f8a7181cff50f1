package adapter

import (
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/ksaito/jobharvest/internal/harvest"
)

const (
	maxDescriptionRunes = 500
	maxRequirementRunes = 300
)

// ExtractDetail applies the source's detail patterns against the rendered
// body text of a detail page. Pattern misses leave the field zero, a missing
// pattern set yields an empty result. The goquery document is accepted for
// sources that later need structured detail selectors, today only the text
// patterns are used.
func (a *Adapter) ExtractDetail(_ *goquery.Document, bodyText string) harvest.DetailFields {
	var out harvest.DetailFields
	if len(a.compiled.detail) == 0 || bodyText == "" {
		return out
	}
	for field, re := range a.compiled.detail {
		m := re.FindStringSubmatch(bodyText)
		if len(m) < 2 {
			continue
		}
		value := harvest.CleanText(m[1])
		if value == "" {
			continue
		}
		switch field {
		case "phone":
			out.Phone = value
		case "postal_code":
			out.PostalCode = value
		case "address":
			out.Address = value
		case "company_kana":
			out.CompanyKana = value
		case "business_description":
			out.BusinessDescription = truncateRunes(value, maxDescriptionRunes)
		case "job_description":
			out.JobDescription = truncateRunes(value, maxDescriptionRunes)
		case "working_hours":
			out.WorkingHours = value
		case "holidays":
			out.Holidays = value
		case "requirements":
			out.Requirements = truncateRunes(value, maxRequirementRunes)
		case "employee_count":
			if n, err := strconv.Atoi(harvest.NormalizePhone(value)); err == nil {
				out.EmployeeCount = n
			}
		case "posted_date":
			if t, ok := a.parseDate(value); ok {
				out.PostedDate = &t
			}
		}
	}
	return out
}

func (a *Adapter) parseDate(value string) (time.Time, bool) {
	value = harvest.NormalizeWidth(value)
	for _, layout := range a.cfg.DateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
