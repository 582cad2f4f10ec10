package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_journal (
  id            VARCHAR(64)  NOT NULL PRIMARY KEY,
  session_id    VARCHAR(64)  NOT NULL DEFAULT '-',
  seq           BIGINT UNSIGNED NOT NULL DEFAULT 0,
  mode          VARCHAR(64)  NOT NULL,
  image_sha256  CHAR(64)     NOT NULL,
  image_bytes   INT          NOT NULL DEFAULT 0,
  content_type  VARCHAR(128) NOT NULL DEFAULT '-',
  status        VARCHAR(16)  NOT NULL,
  is_fake       TINYINT(1)   NOT NULL DEFAULT 0,
  confidence    DOUBLE       NOT NULL DEFAULT 0,
  error_message TEXT         NOT NULL,
  duration_ms   BIGINT       NOT NULL DEFAULT 0,
  artifact_url  VARCHAR(512) NOT NULL DEFAULT '',
  created_at    DATETIME(3)  NOT NULL,
  INDEX idx_scan_journal_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
