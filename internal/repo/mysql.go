package repo

import (
	"MedVault/config"
	"MedVault/model"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SharedRecordsProcedure is the server-side function anonymous share views read through.
const SharedRecordsProcedure = "get_shared_medical_records"

const dropSharedRecordsProcedure = "DROP PROCEDURE IF EXISTS " + SharedRecordsProcedure

// The procedure joins on the link owner and only checks expiry. The use cap was
// already enforced and consumed by validation before this read happens.
const createSharedRecordsProcedure = `CREATE PROCEDURE ` + SharedRecordsProcedure + `(IN share_token VARCHAR(64))
BEGIN
	SELECT r.*
	FROM medical_records r
	INNER JOIN share_links s ON s.user_id = r.user_id
	WHERE s.token = share_token AND s.expires_at > UTC_TIMESTAMP()
	ORDER BY r.record_date DESC, r.id DESC;
END`

// AutoMigrate migrates all database models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.MedicalRecord{},
		&model.ShareLink{},
		&model.AccessLog{},
	)
}

// InstallShareProcedure replaces the shared records procedure.
func InstallShareProcedure(db *gorm.DB) error {
	if err := db.Exec(dropSharedRecordsProcedure).Error; err != nil {
		return fmt.Errorf("drop procedure %s: %w", SharedRecordsProcedure, err)
	}
	if err := db.Exec(createSharedRecordsProcedure).Error; err != nil {
		return fmt.Errorf("create procedure %s: %w", SharedRecordsProcedure, err)
	}
	return nil
}

func mysqlDSN(cfg *config.Config, dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser,
		cfg.DBPass,
		cfg.DBHost,
		cfg.DBPort,
		dbName,
	)
}

// InitMysql opens the MySQL connection, creating the database when missing, and migrates the schema.
func InitMysql(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	dsn := mysqlDSN(cfg, cfg.DBName)
	gormCfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	db, err := gorm.Open(gormMysql.Open(dsn), gormCfg)
	if err != nil && isUnknownDatabaseError(err) {
		if createErr := ensureMySQLDatabase(cfg, cfg.DBName); createErr != nil {
			return nil, fmt.Errorf("create mysql database: %w", createErr)
		}
		db, err = gorm.Open(gormMysql.Open(dsn), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("init mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if cfg.InstallShareProcedure {
		if err := InstallShareProcedure(db); err != nil {
			// Share views fail with an access configuration error until this is fixed.
			log.WithError(err).Error("install shared records procedure failed")
		} else {
			log.WithField("procedure", SharedRecordsProcedure).Info("shared records procedure installed")
		}
	}

	log.WithFields(logrus.Fields{
		"host": cfg.DBHost,
		"db":   cfg.DBName,
	}).Info("init mysql success")
	return db, nil
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1049
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func ensureMySQLDatabase(cfg *config.Config, dbName string) error {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return errors.New("empty database name")
	}

	serverDB, err := sql.Open("mysql", mysqlDSN(cfg, ""))
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}

	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
