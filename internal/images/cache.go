package images

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// copyCache remembers which destination files were copied from which
// source content, keyed by (size, mtime) so unchanged sources are not
// rehashed or recopied on forced re-runs.
type copyCache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS copies (
	dest TEXT PRIMARY KEY,
	src_size INTEGER NOT NULL,
	src_mtime INTEGER NOT NULL,
	digest TEXT NOT NULL
);
`

func openCache(destDir string) (*copyCache, error) {
	dir := filepath.Join(destDir, ".cs2star")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "copies.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &copyCache{db: db}, nil
}

func (c *copyCache) Close() error {
	return c.db.Close()
}

// unchanged reports whether dest was previously copied from a source
// with the given stat, meaning the copy can be skipped.
func (c *copyCache) unchanged(dest string, srcInfo os.FileInfo) bool {
	var size, mtime int64
	err := c.db.QueryRow(
		"SELECT src_size, src_mtime FROM copies WHERE dest = ?",
		dest,
	).Scan(&size, &mtime)
	if err != nil {
		return false
	}
	return size == srcInfo.Size() && mtime == srcInfo.ModTime().UnixNano()
}

func (c *copyCache) record(dest string, srcInfo os.FileInfo, digest string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO copies (dest, src_size, src_mtime, digest)
		 VALUES (?, ?, ?, ?)`,
		dest, srcInfo.Size(), srcInfo.ModTime().UnixNano(), digest,
	)
	return err
}
