package bigquery

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/lorry-checker/internal/logger"
	"github.com/dvloznov/lorry-checker/internal/pipeline"
)

type fakeRowReader struct {
	header []string
	rows   [][]bigquery.Value
	err    error
	gotRef TableRef
}

func (f *fakeRowReader) ReadRows(ctx context.Context, ref TableRef) ([]string, [][]bigquery.Value, error) {
	f.gotRef = ref
	return f.header, f.rows, f.err
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   bigquery.Value
		want string
	}{
		{"nil", nil, ""},
		{"string", "WB01", "WB01"},
		{"int", int64(15000), "15000"},
		{"float", 14250.5, "14250.5"},
		{"bool", true, "true"},
		{"numeric", big.NewRat(29, 2), "14.5"},
		{"numeric integer", big.NewRat(1500, 1), "1500"},
		{"date", civil.Date{Year: 2024, Month: time.March, Day: 12}, "2024-03-12"},
		{"time", civil.Time{Hour: 8, Minute: 5}, "08:05:00"},
		{"timestamp", time.Date(2024, 3, 12, 8, 5, 0, 0, time.UTC), "2024-03-12 08:05:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatValue(tt.in); got != tt.want {
				t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadWeighbridgeLog(t *testing.T) {
	date := civil.Date{Year: 2024, Month: time.March, Day: 12}
	reader := &fakeRowReader{
		header: append([]string(nil), pipeline.RequiredColumns...),
		rows: [][]bigquery.Value{
			// WB In, check In, check In Time, check Out, check Out Time, RC ID, SAC ID, Driver Name, Lorry Number, BTM, Accepted Weight
			{"WB01", date, civil.Time{Hour: 8}, date, civil.Time{Hour: 8, Minute: 30}, "RC1", "SAC1", "Ali", "A", int64(1000), 500.0},
			{"WB01", date, civil.Time{Hour: 9}, date, nil, "RC2", "SAC2", "Ali", "A", int64(3000), 500.0},
		},
	}
	ref := TableRef{ProjectID: "p", Dataset: "weighbridge", Table: "transactions"}

	tbl, err := LoadWeighbridgeLog(context.Background(), reader, ref)
	if err != nil {
		t.Fatalf("LoadWeighbridgeLog failed: %v", err)
	}
	if reader.gotRef != ref {
		t.Errorf("reader got ref %v, want %v", reader.gotRef, ref)
	}

	txs, err := pipeline.Normalize(tbl, pipeline.DefaultOptions())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	want := time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)
	if txs[0].CheckIn == nil || !txs[0].CheckIn.Equal(want) {
		t.Errorf("CheckIn = %v, want %v", txs[0].CheckIn, want)
	}
	if txs[1].CheckOut != nil {
		t.Error("NULL check-out time should yield an undefined timestamp")
	}
	if txs[1].AcceptedWeight == nil || *txs[1].AcceptedWeight != 500 {
		t.Errorf("AcceptedWeight = %v, want 500", txs[1].AcceptedWeight)
	}
}

func TestLoadWeighbridgeLog_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := LoadWeighbridgeLog(context.Background(), &fakeRowReader{err: boom}, TableRef{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped reader error, got %v", err)
	}
}

func TestTableRef_Validate(t *testing.T) {
	if err := (TableRef{ProjectID: "p", Dataset: "d"}).Validate(); err == nil {
		t.Error("expected an error for a missing table")
	}
	if err := (TableRef{ProjectID: "p", Dataset: "d", Table: "t"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadWeighbridgeLog_LogsThroughContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))
	reader := &fakeRowReader{
		header: []string{"WB In", "RC ID"},
		rows:   [][]bigquery.Value{{"WB01", "RC1"}},
	}
	ref := TableRef{ProjectID: "p", Dataset: "weighbridge", Table: "transactions"}

	if _, err := LoadWeighbridgeLog(ctx, reader, ref); err != nil {
		t.Fatalf("LoadWeighbridgeLog failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"table":"p.weighbridge.transactions"`) || !strings.Contains(out, `"rows":1`) {
		t.Errorf("expected table and row count in log, got: %s", out)
	}
}
