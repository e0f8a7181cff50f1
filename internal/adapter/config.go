package adapter

import (
	"fmt"
	"regexp"
	"sort"
)

// Config describes one source declaratively. Compile validates it and
// produces a ready Adapter.
type Config struct {
	Name     string `mapstructure:"name"`
	BaseURL  string `mapstructure:"base_url"`
	Render   bool   `mapstructure:"render"`
	PageSize int    `mapstructure:"page_size"`
	// Priority ranks the source for cross-source dedup, lower wins.
	Priority int `mapstructure:"priority"`

	// URL templates with {area}, {keyword}, {category} and {page}
	// placeholders. CategoryURLTemplate is used when the keyword resolves to
	// category codes.
	KeywordURLTemplate  string              `mapstructure:"keyword_url_template"`
	CategoryURLTemplate string              `mapstructure:"category_url_template"`
	AreaCodes           map[string]string   `mapstructure:"area_codes"`
	CategoryTable       map[string][]string `mapstructure:"category_table"`

	CardSelector    string            `mapstructure:"card_selector"`
	LinkSelector    string            `mapstructure:"link_selector"`
	FieldSelectors  map[string]string `mapstructure:"field_selectors"`
	RequireLocation bool              `mapstructure:"require_location"`

	// BusinessKeyPattern captures the source's stable listing id from the
	// detail URL in group 1.
	BusinessKeyPattern  string `mapstructure:"business_key_pattern"`
	LocationTrimPattern string `mapstructure:"location_trim_pattern"`

	NoResultsMarkers []string `mapstructure:"no_results_markers"`

	PromoCardMarkers     []string `mapstructure:"promo_card_markers"`
	PromoAncestorMarkers []string `mapstructure:"promo_ancestor_markers"`
	PromoHeadingMarkers  []string `mapstructure:"promo_heading_markers"`
	LeadingPromoCount    int      `mapstructure:"leading_promo_count"`

	NextPageSelectors    []string `mapstructure:"next_page_selectors"`
	NextPageTextSelector string   `mapstructure:"next_page_text_selector"`
	NextPageTextMarkers  []string `mapstructure:"next_page_text_markers"`
	PageParam            string   `mapstructure:"page_param"`
	PageLinkSelector     string   `mapstructure:"page_link_selector"`
	ResultCountPattern   string   `mapstructure:"result_count_pattern"`
	// Optimistic decides the inconclusive case of the pagination chain. Set
	// it for rendered sources whose next control can be missing on a slow
	// paint.
	Optimistic bool `mapstructure:"optimistic"`

	// DetailPatterns are body-text regexes keyed by detail field name, value
	// in capture group 1. Recognized keys: phone, postal_code, address,
	// company_kana, business_description, job_description, working_hours,
	// holidays, requirements, employee_count, posted_date.
	DetailPatterns map[string]string `mapstructure:"detail_patterns"`
	DateLayouts    []string          `mapstructure:"date_layouts"`

	categoryNames []string
}

type compiledRules struct {
	businessKey  *regexp.Regexp
	locationTrim *regexp.Regexp
	resultCount  *regexp.Regexp
	detail       map[string]*regexp.Regexp
}

// Compile validates the config, compiles its patterns and returns the
// adapter.
func Compile(cfg Config) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("adapter config: name is required")
	}
	if cfg.KeywordURLTemplate == "" {
		return nil, fmt.Errorf("adapter %q: keyword_url_template is required", cfg.Name)
	}
	if cfg.CardSelector == "" {
		return nil, fmt.Errorf("adapter %q: card_selector is required", cfg.Name)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if len(cfg.DateLayouts) == 0 {
		cfg.DateLayouts = []string{"2006/1/2", "2006-1-2", "2006.1.2", "2006年1月2日"}
	}

	// Deterministic partial-match order for keyword to category resolution.
	cfg.categoryNames = make([]string, 0, len(cfg.CategoryTable))
	for name := range cfg.CategoryTable {
		cfg.categoryNames = append(cfg.categoryNames, name)
	}
	sort.Strings(cfg.categoryNames)

	var rules compiledRules
	var err error
	if cfg.BusinessKeyPattern != "" {
		if rules.businessKey, err = regexp.Compile(cfg.BusinessKeyPattern); err != nil {
			return nil, fmt.Errorf("adapter %q: business_key_pattern: %w", cfg.Name, err)
		}
	}
	if cfg.LocationTrimPattern != "" {
		if rules.locationTrim, err = regexp.Compile(cfg.LocationTrimPattern); err != nil {
			return nil, fmt.Errorf("adapter %q: location_trim_pattern: %w", cfg.Name, err)
		}
	}
	if cfg.ResultCountPattern != "" {
		if rules.resultCount, err = regexp.Compile(cfg.ResultCountPattern); err != nil {
			return nil, fmt.Errorf("adapter %q: result_count_pattern: %w", cfg.Name, err)
		}
	}
	if len(cfg.DetailPatterns) > 0 {
		rules.detail = make(map[string]*regexp.Regexp, len(cfg.DetailPatterns))
		for field, pattern := range cfg.DetailPatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("adapter %q: detail pattern %q: %w", cfg.Name, field, err)
			}
			rules.detail[field] = re
		}
	}

	return &Adapter{cfg: cfg, compiled: rules}, nil
}

// MustCompile is Compile for the builtin configs.
func MustCompile(cfg Config) *Adapter {
	a, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return a
}
