package db

import (
	"database/sql"
	"fmt"

	"shadowpool/internal/config"
	"shadowpool/internal/models"

	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB opens the Postgres connection and migrates the schema. The pq
// driver handle is opened first so connection-pool settings apply below
// gorm, and so repositories can inspect pq error codes.
func InitDB() {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		log.Fatal("Database DSN is required")
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	DB, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	log.Info("Database connected successfully")

	if err := Migrate(DB); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	log.Info("Database schema migrated successfully")
}

// Migrate creates or updates all shielded-pool tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Pool{},
		&models.CommitmentRecord{},
		&models.NullifierRecord{},
		&models.RootRecord{},
		&models.DepositEvent{},
		&models.WithdrawEvent{},
		&models.StuckPayout{},
		&models.CustodyAccount{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
