package db_client

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(host, port, user, pass, database string) (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, pass, host, port, database,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Writes only happen at duel boundaries and from the mirror jobs, so
	// a modest pool is plenty.
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(time.Minute)
	return db, db.Ping()
}
