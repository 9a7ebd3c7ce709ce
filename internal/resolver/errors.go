package resolver

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"entitygraph/internal/planner"
)

// MySQL error numbers for rejected privileges.
const (
	mysqlErrDBAccessDenied     = 1044
	mysqlErrTableAccessDenied  = 1142
	mysqlErrColumnAccessDenied = 1143
)

// normalizeQueryError maps driver failures to the error types reported in
// GraphQL responses. Validation errors pass through; everything else,
// context cancellation included, becomes an ExecutionError.
func normalizeQueryError(err error) error {
	if err == nil {
		return nil
	}
	if planner.IsValidation(err) {
		return err
	}
	var authErr *planner.AuthorizationError
	var execErr *planner.ExecutionError
	if errors.As(err, &authErr) || errors.As(err, &execErr) {
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
			return &planner.AuthorizationError{
				Message: fmt.Sprintf("access denied: %s", mysqlErr.Message),
				Cause:   err,
			}
		}
		return &planner.ExecutionError{Cause: err, Code: mysqlErr.Number}
	}

	return &planner.ExecutionError{Cause: err}
}
