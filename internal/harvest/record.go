// Package harvest defines core types shared across subsystems.
package harvest

import (
	"strings"
	"time"
	"unicode"
)

// JobRecord is one extracted job listing. Adapters create records from a DOM
// card, the detail phase enriches them in place, and the dedup/filter
// pipeline only ever removes or annotates them.
type JobRecord struct {
	Source      string `json:"source"`
	BusinessKey string `json:"business_key,omitempty"`
	PageURL     string `json:"page_url"`

	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	CompanyKana    string `json:"company_kana,omitempty"`
	Salary         string `json:"salary,omitempty"`
	Location       string `json:"location,omitempty"`
	EmploymentType string `json:"employment_type,omitempty"`
	JobType        string `json:"job_type,omitempty"`
	WorkingStyle   string `json:"working_style,omitempty"`
	WorkingHours   string `json:"working_hours,omitempty"`
	Holidays       string `json:"holidays,omitempty"`
	Requirements   string `json:"requirements,omitempty"`

	PostalCode          string `json:"postal_code,omitempty"`
	Address             string `json:"address,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
	JobDescription      string `json:"job_description,omitempty"`

	Phone           string `json:"phone,omitempty"`
	NormalizedPhone string `json:"phone_normalized,omitempty"`
	EmployeeCount   int    `json:"employee_count,omitempty"`

	Keyword string `json:"keyword,omitempty"`
	Area    string `json:"area,omitempty"`

	PostedDate *time.Time `json:"posted_date,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`

	Excluded        bool   `json:"excluded"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`
	ExclusionDetail string `json:"exclusion_detail,omitempty"`
}

// DedupKey returns the identity used for cross-record grouping and the
// store's seen check: the business key when present, otherwise the
// normalized page URL. Empty means the record cannot participate in
// deduplication.
func (r JobRecord) DedupKey() string {
	if r.BusinessKey != "" {
		return r.BusinessKey
	}
	if r.PageURL != "" {
		if norm, err := NormalizeURL(r.PageURL); err == nil {
			return norm
		}
	}
	return ""
}

// DetailFields holds the values a detail-page fetch can contribute.
type DetailFields struct {
	Phone               string
	PostalCode          string
	Address             string
	CompanyKana         string
	BusinessDescription string
	JobDescription      string
	WorkingHours        string
	Holidays            string
	Requirements        string
	EmployeeCount       int
	PostedDate          *time.Time
}

// Merge copies detail fields onto the record without overwriting fields the
// card extraction already populated.
func (r *JobRecord) Merge(d DetailFields) {
	if r.Phone == "" && d.Phone != "" {
		r.Phone = d.Phone
		r.NormalizedPhone = NormalizePhone(d.Phone)
	}
	if r.PostalCode == "" {
		r.PostalCode = NormalizePostalCode(d.PostalCode)
	}
	if r.Address == "" {
		r.Address = d.Address
	}
	if r.CompanyKana == "" {
		r.CompanyKana = d.CompanyKana
	}
	if r.BusinessDescription == "" {
		r.BusinessDescription = d.BusinessDescription
	}
	if r.JobDescription == "" {
		r.JobDescription = d.JobDescription
	}
	if r.WorkingHours == "" {
		r.WorkingHours = d.WorkingHours
	}
	if r.Holidays == "" {
		r.Holidays = d.Holidays
	}
	if r.Requirements == "" {
		r.Requirements = d.Requirements
	}
	if r.EmployeeCount == 0 {
		r.EmployeeCount = d.EmployeeCount
	}
	if r.PostedDate == nil {
		r.PostedDate = d.PostedDate
	}
}

// fullToHalf maps full-width digits and separators to their ASCII forms so
// phone numbers written as ０３−１２３４−５６７８ normalize like 03-1234-5678.
func fullToHalf(r rune) rune {
	switch {
	case r >= '０' && r <= '９':
		return '0' + (r - '０')
	case r == '−' || r == 'ー' || r == '―':
		return '-'
	case r == '（':
		return '('
	case r == '）':
		return ')'
	case r == '　':
		return ' '
	}
	return r
}

// NormalizeWidth converts full-width digits and separators to their ASCII
// forms without removing anything else.
func NormalizeWidth(s string) string {
	return strings.Map(fullToHalf, s)
}

// NormalizePhone reduces a phone number to ASCII digits only.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	phone = strings.Map(fullToHalf, phone)
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePostalCode formats a postal code as XXX-XXXX when it contains
// exactly seven digits, otherwise returns the input unchanged.
func NormalizePostalCode(postal string) string {
	if postal == "" {
		return ""
	}
	digits := NormalizePhone(postal)
	if len(digits) == 7 {
		return digits[:3] + "-" + digits[3:]
	}
	return postal
}

// CleanText collapses whitespace runs (including non-breaking spaces) into
// single spaces and trims the result.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
