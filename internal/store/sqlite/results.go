package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// WriteResults stores confirmed results in one transaction. Live previews
// are skipped. A result for an existing (name, series, ts) replaces it.
func (s *Store) WriteResults(ctx context.Context, results []model.IndicatorResult) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO indicator_results (name, series, ts, phase, vals)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range results {
			if r.Live {
				continue
			}
			vals, err := json.Marshal(r.Values)
			if err != nil {
				return fmt.Errorf("marshal %s values: %w", r.Name, err)
			}
			if _, err := stmt.ExecContext(ctx, r.Name, r.Series, r.TS.UnixMilli(), r.Phase, string(vals)); err != nil {
				return fmt.Errorf("sqlite insert result %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// ReadResults returns the stored results of one indicator on one series,
// oldest first. A limit of zero or less returns all of them.
func (s *Store) ReadResults(ctx context.Context, name, series string, limit int) ([]model.IndicatorResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, phase, vals FROM (
			SELECT ts, phase, vals FROM indicator_results
			WHERE name = ? AND series = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, name, series, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query results: %w", err)
	}
	defer rows.Close()

	var out []model.IndicatorResult
	for rows.Next() {
		var (
			ts    int64
			phase string
			vals  string
		)
		if err := rows.Scan(&ts, &phase, &vals); err != nil {
			return nil, fmt.Errorf("sqlite scan result: %w", err)
		}
		r := model.IndicatorResult{
			Name:   name,
			Series: series,
			TS:     time.UnixMilli(ts).UTC(),
			Phase:  phase,
			Ready:  phase == "steady",
		}
		if err := json.Unmarshal([]byte(vals), &r.Values); err != nil {
			return nil, fmt.Errorf("decode %s values: %w", name, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertBars archives bars for later replay.
func (s *Store) InsertBars(ctx context.Context, bars []model.Bar) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO bars (series, ts, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			it := b.Item
			_, err := stmt.ExecContext(ctx, b.Series, b.TS.UnixMilli(),
				it.Open().String(), it.High().String(), it.Low().String(), it.Close().String(), it.Volume().String())
			if err != nil {
				return fmt.Errorf("sqlite insert bar %s@%s: %w", b.Series, b.TS.Format(time.RFC3339), err)
			}
		}
		return nil
	})
}

// ReadBars returns archived bars after the given time in replay order:
// by timestamp, then series. An empty series reads every series.
func (s *Store) ReadBars(ctx context.Context, series string, after time.Time) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT series, ts, open, high, low, close, volume FROM bars
		WHERE (? = '' OR series = ?) AND ts > ?
		ORDER BY ts ASC, series ASC
	`, series, series, after.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		var (
			b      model.Bar
			ts     int64
			fields [5]string
		)
		if err := rows.Scan(&b.Series, &ts, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4]); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		var vals [5]numeric.Value
		for i, f := range fields {
			v, err := numeric.FromString(f)
			if err != nil {
				return nil, fmt.Errorf("bar %s@%d: %w", b.Series, ts, err)
			}
			vals[i] = v
		}
		item, err := model.NewDataItem(vals[0], vals[1], vals[2], vals[3], vals[4])
		if err != nil {
			return nil, fmt.Errorf("bar %s@%d: %w", b.Series, ts, err)
		}
		b.TS = time.UnixMilli(ts).UTC()
		b.Item = item
		out = append(out, b)
	}
	return out, rows.Err()
}
