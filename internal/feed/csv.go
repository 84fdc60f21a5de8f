package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
)

// LoadTicksCSV parses tick data in "time,price,volume" form for one symbol.
// Times are RFC 3339. A header row is skipped when present.
func LoadTicksCSV(r io.Reader, symbol string) ([]domain.BaseData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3

	var out []domain.BaseData
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read tick csv line %d: %w", line, err)
		}

		at, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("feed: tick csv line %d: bad time %q: %w", line, record[0], err)
		}

		price, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("feed: tick csv line %d: bad price %q: %w", line, record[1], err)
		}
		volume, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("feed: tick csv line %d: bad volume %q: %w", line, record[2], err)
		}

		out = append(out, domain.Tick{
			Symbol: symbol,
			At:     at.UTC(),
			Last:   price,
			Size:   volume,
		})
	}
	return out, nil
}

// LoadCandlesCSV parses bar data in "time,open,high,low,close,volume" form
// for one symbol. Times are RFC 3339 open times. A header row is skipped.
func LoadCandlesCSV(r io.Reader, symbol string, resolution domain.Resolution) ([]domain.BaseData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 6

	interval := resolution.Interval()

	var out []domain.BaseData
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: read candle csv line %d: %w", line, err)
		}

		openTime, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("feed: candle csv line %d: bad time %q: %w", line, record[0], err)
		}

		vals := make([]float64, 5)
		for i := 1; i < 6; i++ {
			vals[i-1], err = strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("feed: candle csv line %d: bad field %q: %w", line, record[i], err)
			}
		}

		out = append(out, domain.Candle{
			Symbol:    symbol,
			OpenTime:  openTime.UTC(),
			CloseTime: openTime.UTC().Add(interval),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Vol:       vals[4],
		})
	}
	return out, nil
}

// LoadTicksFile reads a tick CSV from disk.
func LoadTicksFile(path, symbol string) ([]domain.BaseData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadTicksCSV(f, symbol)
}

// LoadCandlesFile reads a candle CSV from disk.
func LoadCandlesFile(path, symbol string, resolution domain.Resolution) ([]domain.BaseData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadCandlesCSV(f, symbol, resolution)
}
