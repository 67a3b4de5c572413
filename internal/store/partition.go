package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/assetsync/internal/cache"
)

var _ cache.Storage = (*Store)(nil)

// Open returns the partition called name, creating it if needed.
func (s *Store) Open(ctx context.Context, name string) (cache.Cache, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO partitions (name) VALUES (?)
		ON CONFLICT(name) DO NOTHING
	`, name)
	if err != nil {
		return nil, fmt.Errorf("open partition %q: %w", name, err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM partitions WHERE name = ?`, name).Scan(&id); err != nil {
		return nil, fmt.Errorf("open partition %q: %w", name, err)
	}
	return &partition{db: s.db, id: id, name: name}, nil
}

// Delete drops the partition and, by cascade, its entries.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM partitions WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete partition %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete partition %q: rows affected: %w", name, err)
	}
	return n > 0, nil
}

// Has reports whether the partition exists.
func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM partitions WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has partition %q: %w", name, err)
	}
	return true, nil
}

// Names lists partitions in creation order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM partitions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list partitions: scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// partition is a handle to one partition row. The handle is bound to the
// partition id, so it goes stale if the partition is deleted.
type partition struct {
	db   *sql.DB
	id   int64
	name string
}

func (p *partition) Match(ctx context.Context, url string) (*cache.Response, bool, error) {
	var (
		status   int
		header   string
		body     []byte
		checksum string
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT status, header, body, checksum FROM entries
		WHERE partition_id = ? AND url = ?
	`, p.id, url).Scan(&status, &header, &body, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match %s: %w", url, err)
	}

	if checksumOf(body) != checksum {
		return nil, false, nil
	}

	h, err := unmarshalHeader(header)
	if err != nil {
		return nil, false, fmt.Errorf("match %s: %w", url, err)
	}
	return cache.NewResponse(status, h, body), true, nil
}

func (p *partition) Put(ctx context.Context, url string, resp *cache.Response) error {
	header, err := marshalHeader(resp.Header)
	if err != nil {
		return fmt.Errorf("put %s: %w", url, err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %s: begin tx: %w", url, err)
	}
	defer tx.Rollback() // No-op if committed

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM partitions WHERE id = ?`, p.id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("put %s into %q: %w", url, p.name, cache.ErrCacheDeleted)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", url, err)
	}

	// Delete then insert so the entry takes a fresh seq.
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE partition_id = ? AND url = ?`, p.id, url); err != nil {
		return fmt.Errorf("put %s: delete previous: %w", url, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (partition_id, url, status, header, body, checksum)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.id, url, resp.Status, header, body, checksumOf(body))
	if err != nil {
		return fmt.Errorf("put %s: insert: %w", url, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %s: commit: %w", url, err)
	}
	return nil
}

func (p *partition) Delete(ctx context.Context, url string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM entries WHERE partition_id = ? AND url = ?`, p.id, url)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", url, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: rows affected: %w", url, err)
	}
	return n > 0, nil
}

func (p *partition) Keys(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT url FROM entries
		WHERE partition_id = ?
		ORDER BY seq ASC
	`, p.id)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", p.name, err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("keys %q: scan: %w", p.name, err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}
