package db

import (
	"database/sql"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// pragmas are applied to every pooled connection through the DSN, so foreign
// keys are enforced no matter which connection serves a statement.
var pragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// Open opens a SQLite database. path may be a file path or ":memory:".
func Open(path string) (*sql.DB, error) {
	memory := path == ":memory:"

	db, err := sql.Open("sqlite", dsn(path, memory))
	if err != nil {
		return nil, eris.Wrap(err, "db: open")
	}

	// Every connection to :memory: is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "db: ping %s", path)
	}

	return db, nil
}

func dsn(path string, memory bool) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	if !memory {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	// Writers take the lock at BEGIN instead of on first write.
	q.Set("_txlock", "immediate")

	name := path
	if !strings.HasPrefix(name, "file:") {
		name = "file:" + name
	}
	return name + "?" + q.Encode()
}
