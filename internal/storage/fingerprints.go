package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"feedfunnel/internal"
)

type fingerprintRow struct {
	DedupKey    string `db:"dedup_key"`
	FirstSeenAt string `db:"first_seen_at"`
	LastSeenAt  string `db:"last_seen_at"`
	Status      string `db:"status"`
}

func (r fingerprintRow) toDomain() internal.ProductFingerprint {
	first, _ := time.Parse(timeLayout, r.FirstSeenAt)
	last, _ := time.Parse(timeLayout, r.LastSeenAt)
	return internal.ProductFingerprint{
		DedupKey:    r.DedupKey,
		FirstSeenAt: first,
		LastSeenAt:  last,
		Status:      internal.FingerprintStatus(r.Status),
	}
}

func (d *DB) Find(ctx context.Context, key string) (*internal.ProductFingerprint, error) {
	var row fingerprintRow
	err := d.conn.GetContext(ctx, &row, d.conn.Rebind(`
SELECT dedup_key, first_seen_at, last_seen_at, status FROM fingerprints WHERE dedup_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fp := row.toDomain()
	return &fp, nil
}

func (d *DB) Upsert(ctx context.Context, fp internal.ProductFingerprint) error {
	_, err := d.exec(ctx, `
INSERT INTO fingerprints (dedup_key, first_seen_at, last_seen_at, status) VALUES (?, ?, ?, ?)
ON CONFLICT(dedup_key) DO UPDATE SET last_seen_at = excluded.last_seen_at, status = excluded.status
`, fp.DedupKey, stamp(fp.FirstSeenAt), stamp(fp.LastSeenAt), string(fp.Status))
	return err
}

// Register records a sighting of key. It reports true for a first sighting
// and for a sighting that revives an archived fingerprint. Every step is a
// single conditional statement, so concurrent callers on the same key (even
// from different processes) see exactly one true.
func (d *DB) Register(ctx context.Context, key string, seenAt time.Time) (bool, error) {
	ts := stamp(seenAt)

	res, err := d.exec(ctx, `
INSERT INTO fingerprints (dedup_key, first_seen_at, last_seen_at, status) VALUES (?, ?, ?, 'active')
ON CONFLICT(dedup_key) DO NOTHING
`, key, ts, ts)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 1 {
		return true, nil
	}

	res, err = d.exec(ctx, `
UPDATE fingerprints SET status = 'active', last_seen_at = ? WHERE dedup_key = ? AND status = 'archived'
`, ts, key)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 1 {
		return true, nil
	}

	_, err = d.exec(ctx, `UPDATE fingerprints SET last_seen_at = ? WHERE dedup_key = ?`, ts, key)
	return false, err
}

func (d *DB) Archive(ctx context.Context, key string) (bool, error) {
	res, err := d.exec(ctx, `UPDATE fingerprints SET status = 'archived' WHERE dedup_key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ArchiveStale archives every active fingerprint not seen since cutoff and
// returns how many were archived.
func (d *DB) ArchiveStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.exec(ctx, `
UPDATE fingerprints SET status = 'archived' WHERE status = 'active' AND last_seen_at < ?`, stamp(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
