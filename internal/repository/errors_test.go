package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestMySQLErrorClassification(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	deadlock := fmt.Errorf("update: %w", &mysql.MySQLError{Number: 1213})
	timeout := &mysql.MySQLError{Number: 1205}

	if !IsDuplicate(dup) || IsDuplicate(deadlock) {
		t.Fatal("IsDuplicate misclassified")
	}
	if !IsTransient(deadlock) || !IsTransient(timeout) || IsTransient(dup) || IsTransient(errors.New("x")) {
		t.Fatal("IsTransient misclassified")
	}
}
