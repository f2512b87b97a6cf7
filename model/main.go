package model

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/relaygate/relaygate/common"
	"github.com/relaygate/relaygate/common/config"
	"github.com/relaygate/relaygate/common/logger"
)

var DB *gorm.DB

// SeedAccountsFromEnv creates the CodeWhisperer/Gemini accounts described by
// AMAZONQ_*/GEMINI_* env vars when the Account Store is otherwise empty, so
// the gateway is usable without first calling the admin API (SPEC_FULL.md §2).
func SeedAccountsFromEnv() error {
	var count int64
	if err := DB.Model(&Account{}).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count existing accounts")
	}
	if count > 0 {
		return nil
	}

	if config.AmazonQRefreshToken != "" {
		account := &Account{
			Label:        "amazonq-env",
			Type:         AccountTypeCodeWhisperer,
			Enabled:      true,
			ClientId:     config.AmazonQClientID,
			ClientSecret: config.AmazonQClientSecret,
			RefreshToken: config.AmazonQRefreshToken,
			ProfileArn:   config.AmazonQProfileArn,
		}
		if err := CreateAccount(account); err != nil {
			return errors.Wrap(err, "seed amazonq account from env")
		}
		logger.Logger.Info("seeded CodeWhisperer account from environment")
	}

	if config.GeminiRefreshToken != "" {
		account := &Account{
			Label:        "gemini-env",
			Type:         AccountTypeGemini,
			Enabled:      true,
			ClientId:     config.GeminiClientID,
			ClientSecret: config.GeminiClientSecret,
			RefreshToken: config.GeminiRefreshToken,
		}
		if config.GeminiProjectID != "" {
			if err := account.saveOther(OtherBag{ProjectID: config.GeminiProjectID}); err != nil {
				return errors.Wrap(err, "prepare gemini account other bag")
			}
		}
		if err := CreateAccount(account); err != nil {
			return errors.Wrap(err, "seed gemini account from env")
		}
		logger.Logger.Info("seeded Gemini account from environment")
	}

	return nil
}

func chooseDB(dsn string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"):
		return openPostgreSQL(dsn)
	case dsn != "":
		return openMySQL(dsn)
	default:
		return openSQLite()
	}
}

func openPostgreSQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using PostgreSQL as database")
	common.UsingPostgreSQL.Store(true)
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		PrepareStmt: true,
	})
}

func openMySQL(dsn string) (*gorm.DB, error) {
	logger.Logger.Info("using MySQL as database")
	common.UsingMySQL.Store(true)
	normalized, err := common.NormalizeMySQLDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "normalize MySQL DSN")
	}
	return gorm.Open(mysql.Open(normalized), &gorm.Config{
		PrepareStmt: true,
	})
}

func openSQLite() (*gorm.DB, error) {
	logger.Logger.Info("SQL_DSN not set, using SQLite as database")
	common.UsingSQLite.Store(true)
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", common.SQLitePath, common.SQLiteBusyTimeout)
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt: true,
	})
}

// InitDB opens the configured database, migrates the schema and seeds
// accounts from the environment when the store is empty.
func InitDB() error {
	var err error
	DB, err = chooseDB(config.SQLDSN)
	if err != nil {
		return errors.Wrap(err, "open database")
	}

	if config.DebugEnabled {
		DB = DB.Debug()
	}

	setDBConns(DB)

	logger.Logger.Info("database migration started")
	if err = DB.AutoMigrate(&Account{}); err != nil {
		return errors.Wrap(err, "migrate Account")
	}
	if err = migrateAccountTypeColumn(DB); err != nil {
		return errors.Wrap(err, "migrate accounts.type column")
	}
	logger.Logger.Info("database migration completed")

	if err = SeedAccountsFromEnv(); err != nil {
		return errors.Wrap(err, "seed accounts from environment")
	}
	return nil
}

func setDBConns(db *gorm.DB) *sql.DB {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Logger.Fatal("failed to connect database", zap.Error(err))
		return nil
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB
}

func CloseDB() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Close())
}
