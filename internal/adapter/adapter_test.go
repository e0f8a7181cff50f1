package adapter

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Name:                "testsite",
		BaseURL:             "https://jobs.example.jp",
		PageSize:            2,
		KeywordURLTemplate:  "https://jobs.example.jp/{area}/?q={keyword}&page={page}",
		CategoryURLTemplate: "https://jobs.example.jp/{area}/cat/{category}/?page={page}",
		AreaCodes:           map[string]string{"東京都": "tokyo"},
		CategoryTable: map[string][]string{
			"飲食": {"food", "cafe"},
			"介護": {"care"},
		},
		CardSelector: "div.card",
		LinkSelector: "a.card-link",
		FieldSelectors: map[string]string{
			"title":    ".title",
			"company":  ".company",
			"salary":   ".salary",
			"location": ".place",
		},
		BusinessKeyPattern:   `/detail/([0-9]+)`,
		NoResultsMarkers:     []string{"該当する求人が見つかりませんでした"},
		PromoCardMarkers:     []string{"sponsored"},
		PromoAncestorMarkers: []string{"recommend", "pickup", "pr_"},
		PromoHeadingMarkers:  []string{"おすすめ"},
		NextPageSelectors:    []string{"a[rel='next']"},
		PageParam:            "page",
		ResultCountPattern:   `([0-9,０-９]+)\s*件`,
		DetailPatterns: map[string]string{
			"phone":          `TEL[：:\s]*([0-9０-９\-−ー]{10,14})`,
			"employee_count": `従業員数[：:\s]*([0-9,０-９]+)人`,
			"posted_date":    `掲載日[：:\s]*([0-9０-９]{4}/[0-9０-９]{1,2}/[0-9０-９]{1,2})`,
		},
	}
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestCompileValidation(t *testing.T) {
	_, err := Compile(Config{Name: "x", CardSelector: "div"})
	require.ErrorContains(t, err, "keyword_url_template")

	_, err = Compile(Config{Name: "x", KeywordURLTemplate: "https://x/{page}"})
	require.ErrorContains(t, err, "card_selector")

	cfg := testConfig()
	cfg.BusinessKeyPattern = `([`
	_, err = Compile(cfg)
	require.Error(t, err)
}

func TestBuildSearchURL(t *testing.T) {
	a := MustCompile(testConfig())

	url := a.BuildSearchURL("カフェ", "東京都", 3, "")
	require.Equal(t, "https://jobs.example.jp/tokyo/?q=カフェ&page=3", url)

	url = a.BuildSearchURL("飲食", "東京都", 1, "food")
	require.Equal(t, "https://jobs.example.jp/tokyo/cat/food/?page=1", url)

	// Unknown areas fall back to the lowercased name.
	url = a.BuildSearchURL("code", "Osaka", 1, "")
	require.Equal(t, "https://jobs.example.jp/osaka/?q=code&page=1", url)
}

func TestCategories(t *testing.T) {
	a := MustCompile(testConfig())

	require.Equal(t, []string{"food", "cafe"}, a.Categories("飲食"))
	require.Equal(t, []string{"care"}, a.Categories("介護スタッフ"))
	require.Nil(t, a.Categories("データ入力"))
	require.Nil(t, a.Categories(""))
}

func TestIsNoResultsPage(t *testing.T) {
	a := MustCompile(testConfig())
	require.True(t, a.IsNoResultsPage("検索結果 該当する求人が見つかりませんでした。"))
	require.False(t, a.IsNoResultsPage("検索結果 120件"))
}

func TestExtractRecord(t *testing.T) {
	a := MustCompile(testConfig())
	d := doc(t, `
		<div class="card">
			<a class="card-link" href="/detail/12345?ref=list"></a>
			<span class="title">ホールスタッフ</span>
			<span class="company">株式会社テスト</span>
			<span class="salary">時給1,200円</span>
			<span class="place">新宿駅 徒歩5分</span>
		</div>`)

	rec := a.ExtractRecord(d.Find("div.card"))
	require.NotNil(t, rec)
	require.Equal(t, "testsite", rec.Source)
	require.Equal(t, "12345", rec.BusinessKey)
	require.Equal(t, "https://jobs.example.jp/detail/12345", rec.PageURL)
	require.Equal(t, "ホールスタッフ", rec.Title)
	require.Equal(t, "株式会社テスト", rec.Company)
	require.Equal(t, "時給1,200円", rec.Salary)
	require.Equal(t, "新宿駅 徒歩5分", rec.Location)
}

func TestExtractRecordMissingLink(t *testing.T) {
	a := MustCompile(testConfig())
	d := doc(t, `<div class="card"><span class="title">孤立カード</span></div>`)
	require.Nil(t, a.ExtractRecord(d.Find("div.card")))
}

func TestExtractRecordRequiresLocation(t *testing.T) {
	cfg := testConfig()
	cfg.RequireLocation = true
	a := MustCompile(cfg)
	d := doc(t, `
		<div class="card">
			<a class="card-link" href="/detail/9"></a>
			<span class="title">勤務地なし</span>
		</div>`)
	require.Nil(t, a.ExtractRecord(d.Find("div.card")))
}

func TestIsPromotionalCard(t *testing.T) {
	a := MustCompile(testConfig())

	d := doc(t, `
		<div class="recommendList">
			<div><div class="card" id="promo"><a class="card-link" href="/detail/1"></a></div></div>
		</div>
		<div class="resultList">
			<div class="card sponsoredItem" id="self"></div>
			<div class="card" id="organic"></div>
		</div>
		<section>
			<h2>本日のおすすめ</h2>
			<div class="card" id="headed"></div>
		</section>`)

	require.True(t, a.IsPromotionalCard(d.Find("#promo"), 0, 10))
	require.True(t, a.IsPromotionalCard(d.Find("#self"), 1, 10))
	require.True(t, a.IsPromotionalCard(d.Find("#headed"), 2, 10))
	require.False(t, a.IsPromotionalCard(d.Find("#organic"), 3, 10))
}

func TestIsPromotionalCardLeadingWindow(t *testing.T) {
	cfg := testConfig()
	cfg.LeadingPromoCount = 2
	a := MustCompile(cfg)
	d := doc(t, `<div class="card" id="c"></div>`)

	require.True(t, a.IsPromotionalCard(d.Find("#c"), 0, 10))
	require.True(t, a.IsPromotionalCard(d.Find("#c"), 1, 10))
	require.False(t, a.IsPromotionalCard(d.Find("#c"), 2, 10))
	// A short page is all organic even in the leading window.
	require.False(t, a.IsPromotionalCard(d.Find("#c"), 0, 2))
}

func TestHasMorePages(t *testing.T) {
	a := MustCompile(testConfig())

	require.True(t, a.HasMorePages(doc(t, `<a rel="next" href="/p2">次へ</a>`), 1))
	require.True(t, a.HasMorePages(doc(t, `<a href="/list?page=2">2</a>`), 1))
	require.True(t, a.HasMorePages(doc(t, `<p>検索結果 120件</p>`), 1))
	require.False(t, a.HasMorePages(doc(t, `<p>検索結果 ３件</p>`), 2))
	require.False(t, a.HasMorePages(doc(t, `<p>おわり</p>`), 1))
}

func TestHasMorePagesOptimistic(t *testing.T) {
	cfg := testConfig()
	cfg.Optimistic = true
	a := MustCompile(cfg)
	require.True(t, a.HasMorePages(doc(t, `<p>おわり</p>`), 1))
}

func TestExtractDetail(t *testing.T) {
	a := MustCompile(testConfig())
	body := "会社概要\nTEL：０３−１２３４−５６７８\n従業員数：1,200人\n掲載日：2026/08/15\n"

	fields := a.ExtractDetail(doc(t, "<html></html>"), body)
	require.Equal(t, "０３−１２３４−５６７８", fields.Phone)
	require.Equal(t, 1200, fields.EmployeeCount)
	require.NotNil(t, fields.PostedDate)
	require.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), *fields.PostedDate)
}

func TestBuiltinCompiles(t *testing.T) {
	sites := Builtin()
	require.Len(t, sites, 3)
	for _, name := range BuiltinNames() {
		require.Contains(t, sites, name)
	}
	require.True(t, sites["townwork"].Render())
	require.False(t, sites["hellowork"].Render())
}

func TestBuiltinNoResultsPhrasesAreAnchored(t *testing.T) {
	for name, site := range Builtin() {
		// Pages that report a positive hit count must never read as empty.
		require.False(t, site.IsNoResultsPage("検索結果 20件"), name)
		require.False(t, site.IsNoResultsPage("東京都のバイト 10件"), name)
		require.False(t, site.IsNoResultsPage("全100件を表示"), name)
	}

	machbaito := Builtin()["machbaito"]
	require.True(t, machbaito.IsNoResultsPage("検索条件で0件がヒットしました"))
	require.True(t, machbaito.IsNoResultsPage("条件に一致する求人は見つかりませんでした"))
}
