package sqladapter

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// mysqlConstraintCodes are MySQL error numbers raised by constraint violations.
var mysqlConstraintCodes = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1169: true, // unique index violation
	1216: true, // foreign key constraint fails (child)
	1217: true, // foreign key constraint fails (parent)
	1451: true, // cannot delete or update a parent row
	1452: true, // cannot add or update a child row
	3819: true, // check constraint violated
}

// IsConstraint reports whether err is a constraint violation from any of
// the supported drivers (MySQL, PostgreSQL, SQLite). Backend errors are
// otherwise propagated unmodified; this helper only classifies, it never
// wraps or alters.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlConstraintCodes[mysqlErr.Number]
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// SQLSTATE class 23 is "integrity constraint violation".
		return pqErr.Code.Class() == "23"
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	return false
}
