package reports

import (
	"sort"
	"time"

	"github.com/odyssey-erp/ledger/internal/accounting/periods"
	"github.com/odyssey-erp/ledger/internal/money"
)

// Aging bucket labels.
const (
	BucketCurrent = "current"
	Bucket1To30   = "1-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	Bucket91Plus  = "91+"
)

// BucketOrder lists bucket labels from youngest to oldest.
var BucketOrder = []string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, Bucket91Plus}

// BucketFor classifies an age in days.
func BucketFor(ageDays int) string {
	switch {
	case ageDays <= 0:
		return BucketCurrent
	case ageDays <= 30:
		return Bucket1To30
	case ageDays <= 60:
		return Bucket31To60
	case ageDays <= 90:
		return Bucket61To90
	default:
		return Bucket91Plus
	}
}

// AgeDays counts whole UTC days from agingDate to asOf.
func AgeDays(asOf, agingDate time.Time) int {
	return int(periods.UTCDay(asOf).Sub(periods.UTCDay(agingDate)) / (24 * time.Hour))
}

// OpenDocument is a posted invoice or bill with what was settled by asOf.
type OpenDocument struct {
	DocumentID   int64
	Number       string
	PartyID      int64
	PartyName    string
	DocumentDate time.Time
	DueDate      *time.Time
	Total        money.Money
	Allocated    money.Money
}

// AgingDate is the due date when present, else the document date.
func (d OpenDocument) AgingDate() time.Time {
	if d.DueDate != nil {
		return *d.DueDate
	}
	return d.DocumentDate
}

// Buckets holds one amount per aging bucket.
type Buckets struct {
	Current money.Money `json:"current"`
	Days1   money.Money `json:"1_30"`
	Days31  money.Money `json:"31_60"`
	Days61  money.Money `json:"61_90"`
	Days91  money.Money `json:"91_plus"`
	Total   money.Money `json:"total"`
}

func (b *Buckets) add(bucket string, amount money.Money) {
	switch bucket {
	case BucketCurrent:
		b.Current = b.Current.Add(amount)
	case Bucket1To30:
		b.Days1 = b.Days1.Add(amount)
	case Bucket31To60:
		b.Days31 = b.Days31.Add(amount)
	case Bucket61To90:
		b.Days61 = b.Days61.Add(amount)
	default:
		b.Days91 = b.Days91.Add(amount)
	}
	b.Total = b.Total.Add(amount)
}

// AgingLine is one open document in the aging detail.
type AgingLine struct {
	DocumentID  int64       `json:"document_id"`
	Number      string      `json:"number"`
	AgingDate   string      `json:"aging_date"`
	AgeDays     int         `json:"age_days"`
	Bucket      string      `json:"bucket"`
	Total       money.Money `json:"total"`
	Outstanding money.Money `json:"outstanding"`
}

// PartyAging aggregates one customer or vendor.
type PartyAging struct {
	PartyID   int64       `json:"party_id"`
	PartyName string      `json:"party_name"`
	Buckets   Buckets     `json:"buckets"`
	Lines     []AgingLine `json:"lines"`
}

// Aging is the AR or AP aging report.
type Aging struct {
	AsOf    string       `json:"as_of"`
	Parties []PartyAging `json:"parties"`
	Totals  Buckets      `json:"totals"`
}

// BuildAging buckets the outstanding amount of each document as of asOf.
// Documents with nothing outstanding are skipped.
func BuildAging(docs []OpenDocument, asOf time.Time) Aging {
	parties := make(map[int64]*PartyAging)
	var ids []int64
	report := Aging{AsOf: periods.UTCDay(asOf).Format(time.DateOnly)}
	for _, d := range docs {
		outstanding := d.Total.Sub(d.Allocated).Round2()
		if !outstanding.IsPositive() {
			continue
		}
		agingDate := periods.UTCDay(d.AgingDate())
		age := AgeDays(asOf, agingDate)
		bucket := BucketFor(age)

		p, ok := parties[d.PartyID]
		if !ok {
			p = &PartyAging{PartyID: d.PartyID, PartyName: d.PartyName}
			parties[d.PartyID] = p
			ids = append(ids, d.PartyID)
		}
		p.Lines = append(p.Lines, AgingLine{
			DocumentID:  d.DocumentID,
			Number:      d.Number,
			AgingDate:   agingDate.Format(time.DateOnly),
			AgeDays:     age,
			Bucket:      bucket,
			Total:       d.Total.Round2(),
			Outstanding: outstanding,
		})
		p.Buckets.add(bucket, outstanding)
		report.Totals.add(bucket, outstanding)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := parties[id]
		sort.SliceStable(p.Lines, func(i, j int) bool { return p.Lines[i].AgeDays > p.Lines[j].AgeDays })
		report.Parties = append(report.Parties, *p)
	}
	return report
}
