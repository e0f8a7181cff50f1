package pipeline

import (
	"fmt"
	"strings"

	"github.com/ksaito/jobharvest/internal/harvest"
	"github.com/ksaito/jobharvest/internal/metrics"
)

// Exclusion reason tokens. The order of the checks in checkExclusion is part
// of the contract: the first matching rule wins and later rules never see
// the record.
const (
	ReasonLargeCompany     = "large_company"
	ReasonStaffingKeyword  = "staffing_keyword"
	ReasonDispatchField    = "dispatch_field"
	ReasonExcludedIndustry = "excluded_industry"
	ReasonExcludedLocation = "excluded_location"
	ReasonPhonePrefix      = "phone_prefix"
)

// descriptionHeadRunes bounds the dispatch check in the job description. A
// dispatch term deep in the body text is usually incidental, at the head it
// names the employment form.
const descriptionHeadRunes = 50

// Rules configures the exclusion filter. Nil lists and zero values fall back
// to the built-in defaults, so callers only set what they want to override.
type Rules struct {
	StaffingKeywords      []string
	DispatchTerms         []string
	Industries            []string
	Locations             []string
	PhonePrefixes         []string
	LargeCompanyThreshold int
	SourcePriority        map[string]int
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		StaffingKeywords: []string{
			"人材派遣", "人材紹介", "職業紹介", "有料職業紹介", "アウトソーシング",
			"紹介予定派遣", "スタッフサービス", "テンプスタッフ", "パソナ",
			"リクルートスタッフィング", "マンパワー", "アデコ", "ランスタッド",
		},
		DispatchTerms: []string{"派遣", "派遣社員", "無期雇用派遣", "登録型派遣"},
		Industries:    []string{"広告", "新聞", "メディア", "出版", "放送", "広告代理店", "PR"},
		Locations:     []string{"沖縄県", "沖縄"},
		PhonePrefixes: []string{"0120", "0988", "0980", "0989", "050", "50", "0880"},

		LargeCompanyThreshold: 1001,
		SourcePriority: map[string]int{
			"indeed":    1,
			"hellowork": 2,
			"townwork":  3,
			"baitoru":   4,
			"machbaito": 5,
			"linebaito": 6,
			"rikunavi":  7,
			"mynavi":    8,
		},
	}
}

func (r Rules) resolved() Rules {
	def := DefaultRules()
	if r.StaffingKeywords == nil {
		r.StaffingKeywords = def.StaffingKeywords
	}
	if r.DispatchTerms == nil {
		r.DispatchTerms = def.DispatchTerms
	}
	if r.Industries == nil {
		r.Industries = def.Industries
	}
	if r.Locations == nil {
		r.Locations = def.Locations
	}
	if r.PhonePrefixes == nil {
		r.PhonePrefixes = def.PhonePrefixes
	}
	if r.LargeCompanyThreshold <= 0 {
		r.LargeCompanyThreshold = def.LargeCompanyThreshold
	}
	if r.SourcePriority == nil {
		r.SourcePriority = def.SourcePriority
	}
	return r
}

// Priority returns the dedup rank for a source, unknown sources rank last.
func (r Rules) Priority(source string) int {
	if p, ok := r.SourcePriority[strings.ToLower(source)]; ok {
		return p
	}
	return 99
}

// FilterResult is the outcome of one pipeline run.
type FilterResult struct {
	TotalCount     int
	Kept           []harvest.JobRecord
	Excluded       []harvest.JobRecord
	DuplicateCount int
	ReasonCounts   map[string]int
}

// Summary renders the breakdown for operator logs.
func (r FilterResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "records in: %d, kept: %d, duplicates: %d, excluded: %d",
		r.TotalCount, len(r.Kept), r.DuplicateCount, len(r.Excluded))
	for _, reason := range []string{
		ReasonLargeCompany, ReasonStaffingKeyword, ReasonDispatchField,
		ReasonExcludedIndustry, ReasonExcludedLocation, ReasonPhonePrefix,
	} {
		if n := r.ReasonCounts[reason]; n > 0 {
			fmt.Fprintf(&b, ", %s: %d", reason, n)
		}
	}
	return b.String()
}

// Filter applies phone deduplication and the exclusion rules. Excluded
// records come back annotated rather than discarded, so downstream storage
// can keep an audit trail. TotalCount always equals
// len(Kept)+len(Excluded)+DuplicateCount.
func Filter(records []harvest.JobRecord, rules Rules) FilterResult {
	rules = rules.resolved()
	result := FilterResult{
		TotalCount:   len(records),
		ReasonCounts: make(map[string]int),
	}

	deduped, dropped := Deduplicate(records, rules.Priority)
	result.DuplicateCount = dropped
	if dropped > 0 {
		metrics.RecordsDeduplicated.Add(float64(dropped))
	}

	for _, rec := range deduped {
		reason, detail := checkExclusion(rec, rules)
		if reason == "" {
			result.Kept = append(result.Kept, rec)
			continue
		}
		rec.Excluded = true
		rec.ExclusionReason = reason
		rec.ExclusionDetail = detail
		result.Excluded = append(result.Excluded, rec)
		result.ReasonCounts[reason]++
		metrics.RecordsExcluded.WithLabelValues(reason).Inc()
	}
	return result
}

func checkExclusion(rec harvest.JobRecord, rules Rules) (reason, detail string) {
	if rec.EmployeeCount > 0 && rec.EmployeeCount >= rules.LargeCompanyThreshold {
		return ReasonLargeCompany, fmt.Sprintf("%d employees", rec.EmployeeCount)
	}

	companyText := rec.Company + " " + rec.BusinessDescription
	for _, kw := range rules.StaffingKeywords {
		if strings.Contains(companyText, kw) {
			return ReasonStaffingKeyword, kw
		}
	}

	dispatchFields := []struct{ name, value string }{
		{"employment_type", rec.EmploymentType},
		{"title", rec.Title},
		{"job_type", rec.JobType},
		{"working_style", rec.WorkingStyle},
	}
	for _, f := range dispatchFields {
		if f.value == "" {
			continue
		}
		for _, term := range rules.DispatchTerms {
			if strings.Contains(f.value, term) {
				return ReasonDispatchField, f.name + ": " + term
			}
		}
	}
	if rec.JobDescription != "" {
		head := headRunes(rec.JobDescription, descriptionHeadRunes)
		for _, term := range rules.DispatchTerms {
			if strings.Contains(head, term) {
				return ReasonDispatchField, "job_description: " + term
			}
		}
	}

	for _, industry := range rules.Industries {
		if strings.Contains(companyText, industry) {
			return ReasonExcludedIndustry, industry
		}
	}

	locationText := rec.Address + " " + rec.Location
	for _, loc := range rules.Locations {
		if strings.Contains(locationText, loc) {
			return ReasonExcludedLocation, loc
		}
	}

	if rec.NormalizedPhone != "" {
		for _, prefix := range rules.PhonePrefixes {
			if strings.HasPrefix(rec.NormalizedPhone, prefix) {
				return ReasonPhonePrefix, prefix
			}
		}
	}
	return "", ""
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
