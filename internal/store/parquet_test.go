package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mcsim/internal/domain"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.barPath(domain.SourceBinance, "1h", "btcusdt", 2024)
	want := filepath.Join("/data", "binance", "1h", "BTCUSDT", "2024.parquet")
	if got != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "AAPL", Interval: "1d", Timestamp: day(2023, 12, 29), Open: 193, High: 194, Low: 191, Close: 192.5, Volume: 4.2e7},
		{Symbol: "AAPL", Interval: "1d", Timestamp: day(2024, 1, 2), Open: 185, High: 186.5, Low: 184, Close: 185.5, Volume: 5e7},
		{Symbol: "AAPL", Interval: "1d", Timestamp: day(2024, 1, 3), Open: 185.5, High: 187, Low: 185, Close: 186, Volume: 4.5e7},
	}
	if err := ps.WriteBars(ctx, domain.SourceAlpaca, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, domain.SourceAlpaca, "AAPL", "1d", day(2023, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadBars returned %d bars, want 3", len(got))
	}
	for i := range bars {
		if got[i] != bars[i] {
			t.Errorf("bar %d = %+v, want %+v", i, got[i], bars[i])
		}
	}

	got, err = ps.ReadBars(ctx, domain.SourceAlpaca, "AAPL", "1d", day(2024, 1, 2), day(2024, 1, 2))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || got[0].Close != 185.5 {
		t.Errorf("single-day ReadBars = %+v, want the 2024-01-02 bar", got)
	}
}

func TestParquetStoreMergesByTimestamp(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: day(2024, 3, 1), Close: 1},
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: day(2024, 3, 2), Close: 2},
	}
	second := []domain.Bar{
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: day(2024, 3, 2), Close: 20},
		{Symbol: "BTCUSDT", Interval: "1h", Timestamp: day(2024, 3, 3), Close: 3},
	}
	if err := ps.WriteBars(ctx, domain.SourceBinance, first); err != nil {
		t.Fatalf("WriteBars(first): %v", err)
	}
	if err := ps.WriteBars(ctx, domain.SourceBinance, second); err != nil {
		t.Fatalf("WriteBars(second): %v", err)
	}

	got, err := ps.ReadBars(ctx, domain.SourceBinance, "BTCUSDT", "1h", day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	closes := domain.Closes(got)
	want := []float64{1, 20, 3}
	if len(closes) != len(want) {
		t.Fatalf("closes = %v, want %v", closes, want)
	}
	for i := range want {
		if closes[i] != want[i] {
			t.Errorf("closes[%d] = %v, want %v", i, closes[i], want[i])
		}
	}
}

func TestParquetStoreMissingData(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	got, err := ps.ReadBars(ctx, domain.SourceBinance, "ETHUSDT", "1d", day(2020, 1, 1), day(2021, 1, 1))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars returned %d bars for missing data, want 0", len(got))
	}

	syms, err := ps.ListSymbols(ctx, domain.SourceBinance, "1d")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 0 {
		t.Errorf("ListSymbols = %v, want empty", syms)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "ethusdt", Interval: "4h", Timestamp: day(2024, 5, 1), Close: 3000},
		{Symbol: "BTCUSDT", Interval: "4h", Timestamp: day(2024, 5, 1), Close: 60000},
	}
	if err := ps.WriteBars(ctx, domain.SourceBinance, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	syms, err := ps.ListSymbols(ctx, domain.SourceBinance, "4h")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 2 || syms[0] != "BTCUSDT" || syms[1] != "ETHUSDT" {
		t.Errorf("ListSymbols = %v, want [BTCUSDT ETHUSDT]", syms)
	}
}

func TestParquetStoreRejectsUnlabelledBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	err := ps.WriteBars(context.Background(), domain.SourceCSV, []domain.Bar{{Timestamp: day(2024, 1, 1), Close: 1}})
	if err == nil {
		t.Error("WriteBars accepted a bar without symbol and interval")
	}
}
