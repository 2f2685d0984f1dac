package postgres

import (
	"database/sql"
	"time"
)

type teamTableModel struct {
	ID                  string          `db:"id"`
	School              string          `db:"school"`
	SchoolKey           string          `db:"school_key"`
	Conference          string          `db:"conference"`
	Classification      string          `db:"classification"`
	Talent              sql.NullFloat64 `db:"talent"`
	ReturningProduction sql.NullFloat64 `db:"returning_production"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

type teamInsertModel struct {
	ID                  string          `db:"id"`
	School              string          `db:"school"`
	SchoolKey           string          `db:"school_key"`
	Conference          string          `db:"conference"`
	Classification      string          `db:"classification"`
	Talent              sql.NullFloat64 `db:"talent"`
	ReturningProduction sql.NullFloat64 `db:"returning_production"`
}
