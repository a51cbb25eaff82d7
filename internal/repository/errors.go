package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/eventinator/internal/model"
)

var (
	// ErrNotFound は対象の行が存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約に違反した場合のエラー。
	ErrDuplicate = errors.New("duplicate record")
)

// PostgreSQLのエラーコード
const (
	pgForeignKeyViolation pq.ErrorCode = "23503"
	pgUniqueViolation     pq.ErrorCode = "23505"
	pgStringTooLong       pq.ErrorCode = "22001"
)

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func isUniqueViolation(err error) bool {
	return hasPQCode(err, pgUniqueViolation)
}

func isForeignKeyViolation(err error) bool {
	return hasPQCode(err, pgForeignKeyViolation)
}

// valueTooLong は列幅を超えた入力を入力エラーとして返す。
func valueTooLong(err error) error {
	if !hasPQCode(err, pgStringTooLong) {
		return nil
	}
	return model.NewValidationError("value too long")
}

// nullString はNULL許容カラムを*stringに変換する。
func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
