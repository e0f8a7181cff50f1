package harvest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"03(1234)5678":    "0312345678",
		"03-1234-5678":    "0312345678",
		"０３−１２３４−５６７８": "0312345678",
		"090 1234 5678":   "09012345678",
		"":                "",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizePhone(in), "input %q", in)
	}
}

func TestNormalizePostalCode(t *testing.T) {
	require.Equal(t, "100-0001", NormalizePostalCode("1000001"))
	require.Equal(t, "100-0001", NormalizePostalCode("〒100-0001"))
	require.Equal(t, "12345", NormalizePostalCode("12345"), "non seven-digit input passes through")
}

func TestDedupKeyPrefersBusinessKey(t *testing.T) {
	rec := JobRecord{BusinessKey: "abc123", PageURL: "https://example.org/jobid_abc123/?vos=x"}
	require.Equal(t, "abc123", rec.DedupKey())

	rec.BusinessKey = ""
	require.Equal(t, "https://example.org/jobid_abc123", rec.DedupKey())

	require.Empty(t, JobRecord{}.DedupKey())
}

func TestMergeDoesNotOverwritePopulatedFields(t *testing.T) {
	posted := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := JobRecord{Phone: "0312345678", NormalizedPhone: "0312345678", Address: "東京都港区1-1"}
	rec.Merge(DetailFields{
		Phone:         "0998765432",
		Address:       "沖縄県那覇市2-2",
		EmployeeCount: 50,
		PostedDate:    &posted,
	})

	require.Equal(t, "0312345678", rec.Phone)
	require.Equal(t, "東京都港区1-1", rec.Address)
	require.Equal(t, 50, rec.EmployeeCount)
	require.Equal(t, &posted, rec.PostedDate)
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b c", CleanText("  a\n b  c  "))
}
