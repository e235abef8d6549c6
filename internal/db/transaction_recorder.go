// Package db persists liquidation outcomes and periodic stats snapshots,
// adapted from the teacher's MySQLRecorder (gorm + mysql driver,
// AutoMigrate-on-connect, one record-per-event write path) from
// CurrentAssetSnapshot/StrategyPhase rows to LiquidationResult/Stats rows.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/venusbot/liquidator/pkg/types"
)

// LiquidationRecord is the database model for one Engine LiquidationResult.
type LiquidationRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp    time.Time `gorm:"index;not null"`
	Borrower     string    `gorm:"index;type:varchar(42);not null"`
	Mode         int       `gorm:"not null;comment:LiquidationMode as integer"`
	Success      bool      `gorm:"not null"`
	DryRun       bool      `gorm:"not null"`
	NetProfitUsd float64   `gorm:"not null"`
	GasCostUsd   float64   `gorm:"not null"`
	RealizedUsd  float64   `gorm:"not null"`
	ErrorMessage string    `gorm:"type:varchar(512)"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (LiquidationRecord) TableName() string { return "liquidation_records" }

// TransactionLegRecord is one on-chain call within a LiquidationResult
// (approve/liquidateBorrow/exactInputSingle), keyed by its parent
// liquidation record.
type TransactionLegRecord struct {
	ID                  uint      `gorm:"primaryKey;autoIncrement"`
	LiquidationRecordID uint      `gorm:"index;not null"`
	TxHash              string    `gorm:"type:varchar(66);not null"`
	GasUsed             uint64    `gorm:"not null"`
	GasPrice            string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	GasCost             string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	Operation           string    `gorm:"type:varchar(64);not null"`
	Timestamp           time.Time `gorm:"not null"`
}

func (TransactionLegRecord) TableName() string { return "liquidation_transactions" }

// StatsSnapshotRecord is a periodic dump of pkg/types.Stats, the
// liquidation-domain analogue of the teacher's AssetSnapshotRecord.
type StatsSnapshotRecord struct {
	ID                      uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp               time.Time `gorm:"index;not null"`
	SwapsAttempted          uint64    `gorm:"not null"`
	SwapsSucceeded          uint64    `gorm:"not null"`
	SwapsFailed             uint64    `gorm:"not null"`
	TotalUsdSwapped         float64   `gorm:"not null"`
	LiquidationSuccessCount uint64    `gorm:"not null"`
	LiquidationFailureCount uint64    `gorm:"not null"`
	TotalProfitUsd          float64   `gorm:"not null"`
	TotalGasCostUsd         float64   `gorm:"not null"`
	RealizedUsd             float64   `gorm:"not null"`
	DryRunAttempts          uint64    `gorm:"not null"`
	DailyLossUsd            float64   `gorm:"not null"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
}

func (StatsSnapshotRecord) TableName() string { return "stats_snapshots" }

// MySQLRecorder persists liquidation and stats records via GORM/MySQL.
type MySQLRecorder struct {
	db *gorm.DB
}

// NewMySQLRecorder connects with dsn ("user:password@tcp(host:port)/
// dbname?charset=utf8mb4&parseTime=True&loc=Local") and migrates the
// schema.
func NewMySQLRecorder(dsn string) (*MySQLRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewMySQLRecorderWithDB(db)
}

// NewMySQLRecorderWithDB wraps an existing GORM DB handle and migrates
// the schema.
func NewMySQLRecorderWithDB(db *gorm.DB) (*MySQLRecorder, error) {
	if err := db.AutoMigrate(&LiquidationRecord{}, &TransactionLegRecord{}, &StatsSnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &MySQLRecorder{db: db}, nil
}

// RecordLiquidation persists one Engine LiquidationResult and its
// transaction legs in a single transaction.
func (r *MySQLRecorder) RecordLiquidation(result types.LiquidationResult) error {
	record := LiquidationRecord{
		Timestamp:    result.Timestamp,
		Borrower:     result.Borrower.String(),
		Mode:         int(result.Mode),
		Success:      result.Success,
		DryRun:       result.DryRun,
		NetProfitUsd: result.NetProfitUsd,
		GasCostUsd:   result.GasCostUsd,
		RealizedUsd:  result.RealizedUsd,
		ErrorMessage: result.ErrorMessage,
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record liquidation: %w", err)
		}
		for _, leg := range result.Transactions {
			legRecord := TransactionLegRecord{
				LiquidationRecordID: record.ID,
				TxHash:              leg.TxHash.Hex(),
				GasUsed:             leg.GasUsed,
				GasPrice:            bigIntToString(leg.GasPrice),
				GasCost:             bigIntToString(leg.GasCost),
				Operation:           leg.Operation,
				Timestamp:           leg.Timestamp,
			}
			if err := tx.Create(&legRecord).Error; err != nil {
				return fmt.Errorf("failed to record transaction leg: %w", err)
			}
		}
		return nil
	})
}

// RecordStatsSnapshot persists one point-in-time Stats snapshot.
func (r *MySQLRecorder) RecordStatsSnapshot(snap types.Snapshot) error {
	record := StatsSnapshotRecord{
		Timestamp:               time.Now(),
		SwapsAttempted:          snap.SwapsAttempted,
		SwapsSucceeded:          snap.SwapsSucceeded,
		SwapsFailed:             snap.SwapsFailed,
		TotalUsdSwapped:         snap.TotalUsdSwapped,
		LiquidationSuccessCount: snap.LiquidationSuccessCount,
		LiquidationFailureCount: snap.LiquidationFailureCount,
		TotalProfitUsd:          snap.TotalProfitUsd,
		TotalGasCostUsd:         snap.TotalGasCostUsd,
		RealizedUsd:             snap.RealizedUsd,
		DryRunAttempts:          snap.DryRunAttempts,
		DailyLossUsd:            snap.DailyLossUsd,
	}
	if err := r.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record stats snapshot: %w", err)
	}
	return nil
}

// GetLatestLiquidation retrieves the most recently recorded liquidation.
func (r *MySQLRecorder) GetLatestLiquidation() (*LiquidationRecord, error) {
	var record LiquidationRecord
	if err := r.db.Order("timestamp DESC").First(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to get latest liquidation: %w", err)
	}
	return &record, nil
}

// GetLiquidationsByTimeRange retrieves liquidation records within [start, end].
func (r *MySQLRecorder) GetLiquidationsByTimeRange(start, end time.Time) ([]LiquidationRecord, error) {
	var records []LiquidationRecord
	if err := r.db.Where("timestamp BETWEEN ? AND ?", start, end).
		Order("timestamp ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get liquidations by time range: %w", err)
	}
	return records, nil
}

// CountLiquidations returns the total number of recorded liquidation
// attempts.
func (r *MySQLRecorder) CountLiquidations() (int64, error) {
	var count int64
	if err := r.db.Model(&LiquidationRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count liquidations: %w", err)
	}
	return count, nil
}

// GetDB returns the underlying GORM handle for advanced queries.
func (r *MySQLRecorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the underlying database connection.
func (r *MySQLRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
