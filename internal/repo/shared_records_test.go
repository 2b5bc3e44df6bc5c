package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMissingProcedureError(t *testing.T) {
	missing := &mysqlDriver.MySQLError{Number: 1305, Message: "PROCEDURE medvault.get_shared_medical_records does not exist"}
	assert.True(t, isMissingProcedureError(missing))
	assert.True(t, isMissingProcedureError(fmt.Errorf("call: %w", missing)))
	assert.False(t, isMissingProcedureError(&mysqlDriver.MySQLError{Number: 1146}))
	assert.False(t, isMissingProcedureError(errors.New("does not exist")))
}

func TestIsUnknownDatabaseError(t *testing.T) {
	assert.True(t, isUnknownDatabaseError(&mysqlDriver.MySQLError{Number: 1049}))
	assert.True(t, isUnknownDatabaseError(errors.New("Error 1049: Unknown database 'medvault'")))
	assert.False(t, isUnknownDatabaseError(&mysqlDriver.MySQLError{Number: 1045}))
}

func TestQuoteMySQLIdentifier(t *testing.T) {
	assert.Equal(t, "`med``vault`", quoteMySQLIdentifier("med`vault"))
}

func TestProcedureRecordReader_NonMySQLErrorPassesThrough(t *testing.T) {
	reader := NewProcedureRecordReader(newTestDB(t))

	_, err := reader.SharedRecords(context.Background(), "token")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProcedureMissing))
}
