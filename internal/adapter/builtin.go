package adapter

// Builtin returns the compiled adapters for the bundled sources, keyed by
// source name.
func Builtin() map[string]*Adapter {
	out := make(map[string]*Adapter, len(builtinConfigs))
	for _, cfg := range builtinConfigs {
		out[cfg.Name] = MustCompile(cfg)
	}
	return out
}

// BuiltinNames returns the bundled source names in priority order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinConfigs))
	for _, cfg := range builtinConfigs {
		names = append(names, cfg.Name)
	}
	return names
}

var builtinConfigs = []Config{
	{
		Name:     "townwork",
		BaseURL:  "https://townwork.net",
		Render:   true,
		PageSize: 50,
		Priority: 1,

		KeywordURLTemplate:  "https://townwork.net/{area}/?fw={keyword}&sort=new&page={page}",
		CategoryURLTemplate: "https://townwork.net/{area}/{category}/?sort=new&page={page}",
		AreaCodes: map[string]string{
			"東京都": "tokyo",
			"大阪府": "osaka",
			"愛知県": "aichi",
			"福岡県": "fukuoka",
			"北海道": "hokkaido",
		},
		CategoryTable: map[string][]string{
			"飲食":  {"jc_002"},
			"販売":  {"jc_003"},
			"軽作業": {"jc_008"},
			"介護":  {"jc_014", "jc_015"},
			"事務":  {"jc_011"},
		},

		CardSelector:    "div[class*='jobCard']",
		LinkSelector:    "a[class*='jobCard_link']",
		RequireLocation: true,
		FieldSelectors: map[string]string{
			"title":           "[class*='jobCard_title']",
			"company":         "[class*='jobCard_company']",
			"salary":          "[class*='jobCard_salary']",
			"location":        "[class*='jobCard_place']",
			"employment_type": "[class*='jobCard_employment']",
		},
		BusinessKeyPattern:  `/detail/clc_([0-9]+)`,
		LocationTrimPattern: `【勤務地】|≪.*?≫`,

		NoResultsMarkers: []string{
			"該当する求人が見つかりませんでした",
			"検索条件に一致する求人はありません",
		},

		PromoCardMarkers:     []string{"pr_", "sponsored"},
		PromoAncestorMarkers: []string{"recommend", "pickup", "banner", "pr_", "sponsored", "ad_", "promotion", "feature", "highlight"},
		PromoHeadingMarkers:  []string{"おすすめ", "ピックアップ", "注目"},

		NextPageSelectors:  []string{"a[rel='next']", "a[class*='pagerNext']"},
		PageLinkSelector:   "[class*='pageButton'] a",
		ResultCountPattern: `([0-9,０-９]+)\s*件`,
		Optimistic:         true,

		DetailPatterns: map[string]string{
			"phone":           `(?:電話番号|TEL|ＴＥＬ)[：:\s]*([0-9０-９\-−ー()（）\s]{10,16})`,
			"postal_code":     `〒\s*([0-9０-９]{3}[-−ー]?[0-9０-９]{4})`,
			"address":         `(?:勤務地|所在地)[：:\s]*([^\n]{4,80})`,
			"employee_count":  `従業員数[：:\s]*([0-9,０-９]+)\s*[人名]`,
			"posted_date":     `掲載日[：:\s]*([0-9０-９]{4}[/年][0-9０-９]{1,2}[/月][0-9０-９]{1,2}日?)`,
			"working_hours":   `勤務時間[：:\s]*([^\n]{2,80})`,
			"job_description": `仕事内容[：:\s]*([^\n]{4,600})`,
		},
	},
	{
		Name:     "machbaito",
		BaseURL:  "https://machbaito.jp",
		Render:   true,
		PageSize: 30,
		Priority: 2,

		KeywordURLTemplate:  "https://machbaito.jp/search?pref={area}&q={keyword}&p={page}",
		CategoryURLTemplate: "https://machbaito.jp/search?pref={area}&{category}&p={page}",
		AreaCodes: map[string]string{
			"東京都": "13",
			"大阪府": "27",
			"愛知県": "23",
			"福岡県": "40",
			"北海道": "01",
		},
		CategoryTable: map[string][]string{
			"飲食":  {"q[ji][]=25", "q[ji][]=26"},
			"販売":  {"q[ji][]=31"},
			"軽作業": {"q[ji][]=52", "q[ji][]=53"},
			"介護":  {"q[ji][]=71"},
		},

		CardSelector: "article.job-list-item",
		LinkSelector: "a.job-list-item__link",
		FieldSelectors: map[string]string{
			"title":    ".job-list-item__title",
			"company":  ".job-list-item__company",
			"salary":   ".job-list-item__salary",
			"location": ".job-list-item__access",
			"job_type": ".job-list-item__occupation",
		},
		BusinessKeyPattern: `/jobs/([0-9a-z]+)`,

		// Anchored phrases only. A bare "0件" would match any result count
		// ending in zero ("10件", "20件").
		NoResultsMarkers: []string{
			"条件に一致する求人は見つかりませんでした",
			"0件がヒット",
			"該当する求人がありません",
			"検索結果がありません",
		},

		PromoCardMarkers:     []string{"is-pr", "sponsored"},
		PromoAncestorMarkers: []string{"recommend", "pickup", "banner", "pr-", "sponsored", "ad-", "promotion", "feature"},

		NextPageSelectors:    []string{"a[rel='next']"},
		NextPageTextSelector: ".pagination a",
		NextPageTextMarkers:  []string{"次へ", "次の"},
		PageParam:            "p",
		ResultCountPattern:   `検索結果\s*([0-9,０-９]+)\s*件`,

		DetailPatterns: map[string]string{
			"phone":                `(?:電話|TEL)[：:\s]*([0-9０-９\-−ー()（）\s]{10,16})`,
			"address":              `勤務地[：:\s]*([^\n]{4,80})`,
			"company_kana":         `(?:フリガナ|かな)[：:\s]*([ァ-ヶー\s]{2,40})`,
			"business_description": `事業内容[：:\s]*([^\n]{4,600})`,
			"posted_date":          `([0-9０-９]{4}/[0-9０-９]{1,2}/[0-9０-９]{1,2})\s*掲載`,
		},
	},
	{
		Name:     "hellowork",
		BaseURL:  "https://www.hellowork.mhlw.go.jp",
		Render:   false,
		PageSize: 30,
		Priority: 3,

		KeywordURLTemplate: "https://www.hellowork.mhlw.go.jp/kensaku/list?pref={area}&keyword={keyword}&pn={page}",
		AreaCodes: map[string]string{
			"東京都": "13",
			"大阪府": "27",
			"愛知県": "23",
			"福岡県": "40",
			"北海道": "01",
		},

		CardSelector: "table.kyujin",
		LinkSelector: "a[href*='kyujin/detail']",
		FieldSelectors: map[string]string{
			"title":           "tr.kyujin_head td",
			"company":         "tr.kyujin_company td",
			"salary":          "td.salary",
			"location":        "td.basho",
			"employment_type": "td.koyou_keitai",
		},
		BusinessKeyPattern: `kJNo=([0-9\-]+)`,

		NoResultsMarkers: []string{
			"該当する求人情報はありませんでした",
		},

		NextPageSelectors: []string{"input[name='fwListNaviBtnNext']", "a[rel='next']"},
		PageParam:         "pn",

		DetailPatterns: map[string]string{
			"phone":                `電話番号[：:\s]*([0-9\-−ー０-９]{10,14})`,
			"postal_code":          `〒([0-9０-９]{3}[-−ー][0-9０-９]{4})`,
			"address":              `事業所所在地[：:\s]*([^\n]{4,80})`,
			"business_description": `事業内容[：:\s]*([^\n]{4,600})`,
			"employee_count":       `企業全体[：:\s]*([0-9,０-９]+)\s*人`,
			"posted_date":          `受付年月日[：:\s]*([0-9０-９]{4}年[0-9０-９]{1,2}月[0-9０-９]{1,2}日)`,
		},
	},
}
