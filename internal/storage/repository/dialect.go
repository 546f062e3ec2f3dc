package repository

import (
	"errors"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Dialect различия SQL между PostgreSQL и SQLite
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Rebind переводит плейсхолдеры $N в ?N для SQLite
func (d Dialect) Rebind(query string) string {
	if d == SQLite {
		return placeholderRe.ReplaceAllString(query, "?$1")
	}
	return query
}

// ForUpdate блокировка строки внутри транзакции; SQLite сериализует запись сам
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// isUniqueViolation нарушение уникального индекса в любом из диалектов
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
