// Package database persists trades and daily balance snapshots behind gorm,
// on SQLite by default or PostgreSQL when given a postgres:// DSN.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a trade or balance row does not exist.
var ErrNotFound = errors.New("not found")

// DayFormat is the calendar-date layout used for DailyBalance.Day. Text form
// keeps lexical ordering equal to chronological ordering.
const DayFormat = "2006-01-02"

type Database struct {
	db *gorm.DB
}

// Models

// Trade is one executed position. Rows are immutable once created, except
// for deletion.
type Trade struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	Day       time.Time       // creation time, set on insert
	Currency  string          `gorm:"not null"`
	Lots      decimal.Decimal `gorm:"type:decimal(20,8)"`
	Direction string          // "long" or "short"
	Entries   DecimalSlice    `gorm:"type:text"`
	Targets   DecimalSlice    `gorm:"type:text"`
	StopLoss  decimal.Decimal `gorm:"type:decimal(20,8)"`
	LegPnls   DecimalSlice    `gorm:"type:text"` // signed, one per entry/target pair
	GainPcts  DecimalSlice    `gorm:"type:text"` // positive legs only
	LossPcts  DecimalSlice    `gorm:"type:text"` // negative legs only
	CreatedAt time.Time
}

// DailyBalance is one calendar day's snapshot for one owner. The balance is
// mutated in place as trades complete; TradeIDs lists the day's trades. The
// row itself is never deleted, even when its last trade is.
type DailyBalance struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	OwnerID   int64           `gorm:"index"`
	Day       string          `gorm:"index"` // YYYY-MM-DD
	Balance   decimal.Decimal `gorm:"type:decimal(20,8)"`
	TradeIDs  Int64Slice      `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MenuMessage remembers the last menu message sent to a chat so the bot can
// keep a single active menu.
type MenuMessage struct {
	ChatID    int64 `gorm:"primaryKey"`
	MessageID int
	UpdatedAt time.Time
}

func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&Trade{}, &DailyBalance{}, &MenuMessage{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// Daily balance operations

// CreateDailyBalance opens a day's snapshot with the given opening balance
// and returns its id. One row per (owner, day) is enforced by the entry flow,
// not by a constraint.
func (d *Database) CreateDailyBalance(ownerID int64, day string, opening decimal.Decimal) (int64, error) {
	bal := DailyBalance{OwnerID: ownerID, Day: day, Balance: opening}
	if err := d.db.Create(&bal).Error; err != nil {
		return 0, err
	}
	return bal.ID, nil
}

func (d *Database) GetDailyBalance(ownerID int64, day string) (*DailyBalance, error) {
	var bal DailyBalance
	err := d.db.Where("owner_id = ? AND day = ?", ownerID, day).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (d *Database) GetDailyBalanceByID(id int64) (*DailyBalance, error) {
	var bal DailyBalance
	err := d.db.First(&bal, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (d *Database) GetDailyBalances(ids []int64) ([]DailyBalance, error) {
	var bals []DailyBalance
	if len(ids) == 0 {
		return bals, nil
	}
	err := d.db.Where("id IN ?", ids).Order("day ASC").Find(&bals).Error
	return bals, err
}

// UpdateBalance overwrites a day's balance.
func (d *Database) UpdateBalance(id int64, balance decimal.Decimal) error {
	res := d.db.Model(&DailyBalance{}).Where("id = ?", id).Update("balance", balance)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkTrade appends a trade id to the day's link list.
func (d *Database) LinkTrade(balanceID, tradeID int64) error {
	bal, err := d.GetDailyBalanceByID(balanceID)
	if err != nil {
		return err
	}
	bal.TradeIDs = append(bal.TradeIDs, tradeID)
	return d.db.Model(&DailyBalance{}).Where("id = ?", balanceID).
		Update("trade_ids", bal.TradeIDs).Error
}

// UnlinkTrade removes a trade id from the day's link list. Removing the last
// id leaves an empty-linked row with its balance intact.
func (d *Database) UnlinkTrade(balanceID, tradeID int64) error {
	bal, err := d.GetDailyBalanceByID(balanceID)
	if err != nil {
		return err
	}
	kept := make(Int64Slice, 0, len(bal.TradeIDs))
	for _, id := range bal.TradeIDs {
		if id != tradeID {
			kept = append(kept, id)
		}
	}
	return d.db.Model(&DailyBalance{}).Where("id = ?", balanceID).
		Update("trade_ids", kept).Error
}

func (d *Database) ListBalancesByOwner(ownerID int64) ([]DailyBalance, error) {
	var bals []DailyBalance
	err := d.db.Where("owner_id = ?", ownerID).Order("id ASC").Find(&bals).Error
	return bals, err
}

// ListBalancesByOwnerAndMonth scopes by the YYYY-MM- prefix of the day text,
// which works identically on SQLite and PostgreSQL.
func (d *Database) ListBalancesByOwnerAndMonth(ownerID int64, year int, month time.Month) ([]DailyBalance, error) {
	prefix := fmt.Sprintf("%04d-%02d-%%", year, int(month))
	var bals []DailyBalance
	err := d.db.Where("owner_id = ? AND day LIKE ?", ownerID, prefix).
		Order("day ASC").Find(&bals).Error
	return bals, err
}

// Trade operations

func (d *Database) CreateTrade(trade *Trade) error {
	if trade.Day.IsZero() {
		trade.Day = time.Now()
	}
	return d.db.Create(trade).Error
}

func (d *Database) GetTradesByIDs(ids []int64) ([]Trade, error) {
	var trades []Trade
	if len(ids) == 0 {
		return trades, nil
	}
	err := d.db.Where("id IN ?", ids).Order("id ASC").Find(&trades).Error
	return trades, err
}

func (d *Database) DeleteTrade(id int64) error {
	res := d.db.Delete(&Trade{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveTradeEverywhere deletes a trade and unlinks it from every balance row
// of the owner that references it.
func (d *Database) RemoveTradeEverywhere(ownerID, tradeID int64) error {
	if err := d.DeleteTrade(tradeID); err != nil {
		return err
	}
	bals, err := d.ListBalancesByOwner(ownerID)
	if err != nil {
		return err
	}
	for _, bal := range bals {
		linked := false
		for _, id := range bal.TradeIDs {
			if id == tradeID {
				linked = true
				break
			}
		}
		if !linked {
			continue
		}
		if err := d.UnlinkTrade(bal.ID, tradeID); err != nil {
			return err
		}
	}
	return nil
}

// Menu message operations

func (d *Database) GetMenuMessage(chatID int64) (int, error) {
	var row MenuMessage
	err := d.db.First(&row, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return row.MessageID, nil
}

func (d *Database) SaveMenuMessage(chatID int64, messageID int) error {
	return d.db.Save(&MenuMessage{ChatID: chatID, MessageID: messageID}).Error
}
