package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func utc(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func TestBucketBoundaries(t *testing.T) {
	cases := map[int]string{
		-5: BucketCurrent,
		0:  BucketCurrent,
		1:  Bucket1To30,
		30: Bucket1To30,
		31: Bucket31To60,
		60: Bucket31To60,
		61: Bucket61To90,
		90: Bucket61To90,
		91: Bucket91Plus,
	}
	for age, want := range cases {
		require.Equal(t, want, BucketFor(age), "age %d", age)
	}
}

func TestAgeDaysUsesUTCDays(t *testing.T) {
	plus7 := time.FixedZone("plus7", 7*3600)
	// 2024-03-01 05:00 +07:00 is 2024-02-29 22:00 UTC.
	agingDate := time.Date(2024, time.March, 1, 5, 0, 0, 0, plus7)
	asOf := time.Date(2024, time.March, 30, 23, 59, 0, 0, time.UTC)
	require.Equal(t, 30, AgeDays(asOf, agingDate))
}

func TestBuildAging(t *testing.T) {
	asOf := utc(2024, time.June, 30)
	due31 := utc(2024, time.May, 30)
	docs := []OpenDocument{
		{DocumentID: 1, Number: "INV-1", PartyID: 9, DocumentDate: utc(2024, time.May, 31), Total: m("100")},
		{DocumentID: 2, Number: "INV-2", PartyID: 9, DocumentDate: utc(2024, time.April, 1), DueDate: &due31, Total: m("80"), Allocated: m("30")},
		{DocumentID: 3, Number: "INV-3", PartyID: 4, DocumentDate: utc(2024, time.June, 30), Total: m("10")},
		{DocumentID: 4, Number: "INV-4", PartyID: 4, DocumentDate: utc(2024, time.January, 1), Total: m("55"), Allocated: m("55")},
	}

	report := BuildAging(docs, asOf)
	require.Equal(t, "2024-06-30", report.AsOf)
	require.Len(t, report.Parties, 2)

	first := report.Parties[0]
	require.Equal(t, int64(4), first.PartyID)
	require.Len(t, first.Lines, 1)
	require.Equal(t, BucketCurrent, first.Lines[0].Bucket)

	second := report.Parties[1]
	require.Equal(t, int64(9), second.PartyID)
	require.Len(t, second.Lines, 2)
	require.Equal(t, 31, second.Lines[0].AgeDays)
	require.Equal(t, Bucket31To60, second.Lines[0].Bucket)
	require.Equal(t, "50.00", second.Lines[0].Outstanding.String())
	require.Equal(t, 30, second.Lines[1].AgeDays)
	require.Equal(t, Bucket1To30, second.Lines[1].Bucket)

	require.Equal(t, "10.00", report.Totals.Current.String())
	require.Equal(t, "100.00", report.Totals.Days1.String())
	require.Equal(t, "50.00", report.Totals.Days31.String())
	require.Equal(t, "160.00", report.Totals.Total.String())
}
