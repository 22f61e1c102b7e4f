package repository

import (
	"context"
	"time"

	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

// Provide returns the gorm-backed usage store.
func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, records []usagedomain.UsageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	written := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			if err := tx.Exec(
				`INSERT INTO usage_records (
					id, contract_id, date, interval_kind, value, unit,
					dollar_value, offpeak_value, offpeak_dollar_value, uncharged_value,
					recorded_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (contract_id, date, interval_kind) DO UPDATE SET
					value = excluded.value,
					unit = excluded.unit,
					dollar_value = excluded.dollar_value,
					offpeak_value = excluded.offpeak_value,
					offpeak_dollar_value = excluded.offpeak_dollar_value,
					uncharged_value = excluded.uncharged_value,
					recorded_at = excluded.recorded_at`,
				rec.ID,
				rec.ContractID,
				usagedomain.Day(rec.Date),
				rec.IntervalKind,
				rec.Value,
				rec.Unit,
				rec.DollarValue,
				rec.OffpeakValue,
				rec.OffpeakDollarValue,
				rec.UnchargedValue,
				rec.RecordedAt,
			).Error; err != nil {
				return err
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, usagedomain.StorageError(err)
	}
	return written, nil
}

func (r *repo) Query(ctx context.Context, db *gorm.DB, contractID string, kind usagedomain.IntervalKind, from, to time.Time) ([]usagedomain.UsageRecord, error) {
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, contract_id, date, interval_kind, value, unit,
		        dollar_value, offpeak_value, offpeak_dollar_value, uncharged_value,
		        recorded_at
		 FROM usage_records
		 WHERE contract_id = ? AND interval_kind = ? AND date >= ? AND date < ?
		 ORDER BY date ASC`,
		contractID,
		kind,
		from.UTC(),
		to.UTC(),
	).Scan(&records).Error
	if err != nil {
		return nil, usagedomain.StorageError(err)
	}
	return records, nil
}

func (r *repo) FindByDate(ctx context.Context, db *gorm.DB, contractID string, kind usagedomain.IntervalKind, date time.Time) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, contract_id, date, interval_kind, value, unit,
		        dollar_value, offpeak_value, offpeak_dollar_value, uncharged_value,
		        recorded_at
		 FROM usage_records
		 WHERE contract_id = ? AND interval_kind = ? AND date = ?
		 LIMIT 1`,
		contractID,
		kind,
		usagedomain.Day(date),
	).Scan(&record).Error
	if err != nil {
		return nil, usagedomain.StorageError(err)
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) LatestDate(ctx context.Context, db *gorm.DB, contractID string, kind usagedomain.IntervalKind) (*time.Time, error) {
	// Ordered select instead of MAX(date): sqlite loses the column type
	// on aggregate expressions and hands back a bare string.
	var rows []struct {
		Date time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT date
		 FROM usage_records
		 WHERE contract_id = ? AND interval_kind = ?
		 ORDER BY date DESC
		 LIMIT 1`,
		contractID,
		kind,
	).Scan(&rows).Error
	if err != nil {
		return nil, usagedomain.StorageError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	day := usagedomain.Day(rows[0].Date)
	return &day, nil
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB, contractID string) (map[usagedomain.IntervalKind]usagedomain.KindStats, error) {
	stats := make(map[usagedomain.IntervalKind]usagedomain.KindStats, 2)
	for _, kind := range []usagedomain.IntervalKind{usagedomain.IntervalHourly, usagedomain.IntervalMonthly} {
		var count int64
		err := db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM usage_records
			 WHERE contract_id = ? AND interval_kind = ?`,
			contractID,
			kind,
		).Scan(&count).Error
		if err != nil {
			return nil, usagedomain.StorageError(err)
		}
		if count == 0 {
			continue
		}

		oldest, err := r.boundaryDate(ctx, db, contractID, kind, "ASC")
		if err != nil {
			return nil, err
		}
		newest, err := r.boundaryDate(ctx, db, contractID, kind, "DESC")
		if err != nil {
			return nil, err
		}
		stats[kind] = usagedomain.KindStats{
			OldestDate:  oldest,
			NewestDate:  newest,
			RecordCount: count,
		}
	}
	return stats, nil
}

func (r *repo) boundaryDate(ctx context.Context, db *gorm.DB, contractID string, kind usagedomain.IntervalKind, direction string) (*time.Time, error) {
	var rows []struct {
		Date time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT date FROM usage_records
		 WHERE contract_id = ? AND interval_kind = ?
		 ORDER BY date `+direction+`
		 LIMIT 1`,
		contractID,
		kind,
	).Scan(&rows).Error
	if err != nil {
		return nil, usagedomain.StorageError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	day := usagedomain.Day(rows[0].Date)
	return &day, nil
}

func (r *repo) GetCursor(ctx context.Context, db *gorm.DB, contractID string, pipeline usagedomain.Pipeline) (*usagedomain.SyncCursor, error) {
	var cursor usagedomain.SyncCursor
	err := db.WithContext(ctx).Raw(
		`SELECT contract_id, pipeline, cursor_date, consecutive_empty_days,
		        status, last_run_at, last_error
		 FROM sync_cursors
		 WHERE contract_id = ? AND pipeline = ?`,
		contractID,
		pipeline,
	).Scan(&cursor).Error
	if err != nil {
		return nil, usagedomain.StorageError(err)
	}
	if cursor.ContractID == "" {
		return nil, nil
	}
	return &cursor, nil
}

func (r *repo) SaveCursor(ctx context.Context, db *gorm.DB, cursor *usagedomain.SyncCursor) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO sync_cursors (
			contract_id, pipeline, cursor_date, consecutive_empty_days,
			status, last_run_at, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, pipeline) DO UPDATE SET
			cursor_date = excluded.cursor_date,
			consecutive_empty_days = excluded.consecutive_empty_days,
			status = excluded.status,
			last_run_at = excluded.last_run_at,
			last_error = excluded.last_error`,
		cursor.ContractID,
		cursor.Pipeline,
		cursor.CursorDate,
		cursor.ConsecutiveEmptyDays,
		cursor.Status,
		cursor.LastRunAt,
		cursor.LastError,
	).Error
	if err != nil {
		return usagedomain.StorageError(err)
	}
	return nil
}
