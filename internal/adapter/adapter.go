// Package adapter implements the per-source site contract as data-driven
// configuration: URL templates, keyword-category tables, selectors, and
// structural predicates. Adding a source is configuration, not new control
// flow.
package adapter

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ksaito/jobharvest/internal/harvest"
)

// Site is the contract one source must expose to the fetch state machine and
// the crawl scheduler. All methods are pure functions of their inputs.
type Site interface {
	Name() string
	// Render reports whether the source needs a JavaScript-capable session.
	Render() bool
	PageSize() int
	CardSelector() string

	// Categories maps a keyword to zero or more category codes. Each code is
	// an independent page-sequence whose results are concatenated.
	Categories(keyword string) []string
	BuildSearchURL(keyword, area string, page int, category string) string

	// IsNoResultsPage is evaluated before waiting for card selectors so empty
	// result pages do not pay the full selector-timeout cost.
	IsNoResultsPage(bodyText string) bool
	IsPromotionalCard(sel *goquery.Selection, position, total int) bool
	ExtractRecord(sel *goquery.Selection) *harvest.JobRecord
	HasMorePages(doc *goquery.Document, currentPage int) bool

	ExtractDetail(doc *goquery.Document, bodyText string) harvest.DetailFields
}

// Adapter is the compiled form of a Config.
type Adapter struct {
	cfg      Config
	compiled compiledRules
}

var _ Site = (*Adapter)(nil)

// Name returns the source name.
func (a *Adapter) Name() string { return a.cfg.Name }

// Render reports whether the source needs headless rendering.
func (a *Adapter) Render() bool { return a.cfg.Render }

// PageSize returns the source's listing page size.
func (a *Adapter) PageSize() int { return a.cfg.PageSize }

// CardSelector returns the job-card selector.
func (a *Adapter) CardSelector() string { return a.cfg.CardSelector }

// Priority returns the source's rank for dedup tie-breaking (lower wins).
func (a *Adapter) Priority() int { return a.cfg.Priority }

// Categories resolves the keyword against the category table. Exact matches
// win; otherwise the first partial match (either direction) is used. A nil
// result means plain keyword search.
func (a *Adapter) Categories(keyword string) []string {
	if keyword == "" || len(a.cfg.CategoryTable) == 0 {
		return nil
	}
	if codes, ok := a.cfg.CategoryTable[keyword]; ok {
		return append([]string(nil), codes...)
	}
	for _, name := range a.cfg.categoryNames {
		if strings.Contains(name, keyword) || strings.Contains(keyword, name) {
			return append([]string(nil), a.cfg.CategoryTable[name]...)
		}
	}
	return nil
}

// BuildSearchURL renders the search URL for one page of one sequence. With a
// category code the category template is used; otherwise the keyword
// template. Both are pure text substitution.
func (a *Adapter) BuildSearchURL(keyword, area string, page int, category string) string {
	areaCode := a.cfg.AreaCodes[area]
	if areaCode == "" {
		areaCode = strings.ToLower(area)
	}
	tmpl := a.cfg.KeywordURLTemplate
	if category != "" && a.cfg.CategoryURLTemplate != "" {
		tmpl = a.cfg.CategoryURLTemplate
	}
	r := strings.NewReplacer(
		"{area}", areaCode,
		"{keyword}", keyword,
		"{category}", category,
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(tmpl)
}

// IsNoResultsPage scans the body text for the source's empty-result phrases.
func (a *Adapter) IsNoResultsPage(bodyText string) bool {
	for _, marker := range a.cfg.NoResultsMarkers {
		if strings.Contains(bodyText, marker) {
			return true
		}
	}
	return false
}

// IsPromotionalCard classifies sponsored placements by structure: the card's
// own class markers, ancestor section markers (up to five levels), section
// headings, and a leading-position window. Sponsored cards look like organic
// ones but sit in structurally distinguishable containers.
func (a *Adapter) IsPromotionalCard(sel *goquery.Selection, position, total int) bool {
	if a.cfg.LeadingPromoCount > 0 && total > a.cfg.LeadingPromoCount && position < a.cfg.LeadingPromoCount {
		return true
	}
	if classMatchesAny(sel, a.cfg.PromoCardMarkers) {
		return true
	}
	ancestor := sel.Parent()
	for depth := 0; depth < promoAncestorDepth && ancestor.Length() > 0; depth++ {
		if classMatchesAny(ancestor, a.cfg.PromoAncestorMarkers) {
			return true
		}
		if len(a.cfg.PromoHeadingMarkers) > 0 {
			// Direct children only, a page-level heading elsewhere must not
			// taint every card.
			heading := harvest.CleanText(ancestor.ChildrenFiltered("h1,h2,h3").First().Text())
			if heading != "" && containsAny(heading, a.cfg.PromoHeadingMarkers) {
				return true
			}
		}
		ancestor = ancestor.Parent()
	}
	return false
}

const promoAncestorDepth = 5

func classMatchesAny(sel *goquery.Selection, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	class, _ := sel.Attr("class")
	class = strings.ToLower(class)
	if class == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(class, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ExtractRecord pulls a structured record out of one card selection. It
// returns nil when the mandatory detail-page reference is missing, or when
// the source requires a location and the card has none (location-less cards
// are almost always promotional filler).
func (a *Adapter) ExtractRecord(sel *goquery.Selection) (rec *harvest.JobRecord) {
	// Extraction failure for one card must never abort the page.
	defer func() {
		if recover() != nil {
			rec = nil
		}
	}()

	href, ok := sel.Attr("href")
	if !ok || href == "" {
		linkSel := a.cfg.LinkSelector
		if linkSel == "" {
			linkSel = "a[href]"
		}
		href, _ = sel.Find(linkSel).First().Attr("href")
	}
	if href == "" {
		return nil
	}
	if strings.HasPrefix(href, "/") {
		href = strings.TrimRight(a.cfg.BaseURL, "/") + href
	}
	if norm, err := harvest.NormalizeURL(href); err == nil {
		href = norm
	}

	out := harvest.JobRecord{
		Source:  a.cfg.Name,
		PageURL: href,
	}
	if a.compiled.businessKey != nil {
		if m := a.compiled.businessKey.FindStringSubmatch(href); len(m) > 1 {
			out.BusinessKey = m[1]
		}
	}

	for field, selector := range a.cfg.FieldSelectors {
		text := harvest.CleanText(sel.Find(selector).First().Text())
		if text == "" {
			continue
		}
		switch field {
		case "title":
			out.Title = text
		case "company":
			out.Company = text
		case "salary":
			out.Salary = text
		case "location":
			if a.compiled.locationTrim != nil {
				text = harvest.CleanText(a.compiled.locationTrim.ReplaceAllString(text, ""))
			}
			out.Location = text
		case "employment_type":
			out.EmploymentType = text
		case "job_type":
			out.JobType = text
		}
	}

	if a.cfg.RequireLocation && out.Location == "" {
		return nil
	}
	return &out
}

// HasMorePages walks an ordered fallback chain: explicit next control,
// page-number link greater than current, and finally a parsed result count
// compared against currentPage × pageSize. When the chain is inconclusive the
// source's Optimistic flag decides (some sources hide the next control on
// slow renders and are worth another page attempt).
func (a *Adapter) HasMorePages(doc *goquery.Document, currentPage int) bool {
	for _, selector := range a.cfg.NextPageSelectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	if a.cfg.NextPageTextSelector != "" && len(a.cfg.NextPageTextMarkers) > 0 {
		more := false
		doc.Find(a.cfg.NextPageTextSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if containsAny(harvest.CleanText(s.Text()), a.cfg.NextPageTextMarkers) {
				more = true
				return false
			}
			return true
		})
		if more {
			return true
		}
	}
	if a.cfg.PageParam != "" {
		next := a.cfg.PageParam + "=" + strconv.Itoa(currentPage+1)
		if doc.Find("a[href*='"+next+"']").Length() > 0 {
			return true
		}
	}
	if a.cfg.PageLinkSelector != "" {
		want := strconv.Itoa(currentPage + 1)
		found := false
		doc.Find(a.cfg.PageLinkSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if harvest.CleanText(s.Text()) == want {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	if a.compiled.resultCount != nil {
		if m := a.compiled.resultCount.FindStringSubmatch(doc.Text()); len(m) > 1 {
			if total, err := strconv.Atoi(harvest.NormalizePhone(m[1])); err == nil {
				return total > currentPage*a.cfg.PageSize
			}
		}
	}
	return a.cfg.Optimistic
}
