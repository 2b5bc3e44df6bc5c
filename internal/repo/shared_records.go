package repo

import (
	"MedVault/model"
	"context"
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrProcedureMissing means the shared records procedure is not installed.
var ErrProcedureMissing = errors.New("shared records procedure is not installed")

// mysql ER_SP_DOES_NOT_EXIST
const errNoSuchProcedure = 1305

// ProcedureRecordReader reads a link owner's records through the stored procedure,
// which is the only path that reads rows of an owner other than the caller.
type ProcedureRecordReader struct {
	db *gorm.DB
}

func NewProcedureRecordReader(db *gorm.DB) *ProcedureRecordReader {
	return &ProcedureRecordReader{db: db}
}

// SharedRecords returns the token owner's records ordered by record date, newest first.
func (r *ProcedureRecordReader) SharedRecords(ctx context.Context, token string) ([]model.MedicalRecord, error) {
	var records []model.MedicalRecord
	err := r.db.WithContext(ctx).
		Raw("CALL "+SharedRecordsProcedure+"(?)", token).
		Scan(&records).Error
	if err != nil {
		if isMissingProcedureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrProcedureMissing, err)
		}
		return nil, err
	}
	return records, nil
}

func isMissingProcedureError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == errNoSuchProcedure
	}
	return false
}
