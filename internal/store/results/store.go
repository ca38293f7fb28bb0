// Package results persists finished backtest runs, their trades and
// equity curves in a single sqlite database.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"kairos/internal/backtest"
	"kairos/internal/signal/ai"
)

type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("results database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newStore(db)
}

func NewStoreFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newStore(db)
}

func newStore(db *gorm.DB) (*Store, error) {
	models := []interface{}{
		&RunModel{},
		&TradeModel{},
		&EquityPointModel{},
		&ModelCallModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun records a newly accepted run in pending/running state.
func (s *Store) InsertRun(ctx context.Context, run backtest.Run) error {
	now := time.Now().UnixMilli()
	m := RunModel{
		ID:             run.ID,
		Symbol:         run.Symbol,
		Timeframe:      run.Timeframe,
		Source:         run.Source,
		Status:         run.Status,
		Message:        run.Message,
		StartTS:        run.StartTS,
		EndTS:          run.EndTS,
		InitialCapital: run.Config.InitialCapital,
		CreatedAtUnix:  now,
		UpdatedAtUnix:  now,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *Store) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	return s.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"message":    message,
		"updated_at": time.Now().UnixMilli(),
	}).Error
}

// SaveReport writes the report summary onto the run row and replaces the
// run's trades and equity curve in one transaction.
func (s *Store) SaveReport(ctx context.Context, id string, rep *backtest.Report) error {
	if rep == nil {
		return fmt.Errorf("nil report")
	}
	blob, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"final_capital":  rep.FinalCapital,
			"total_pnl":      rep.TotalPnL,
			"return_pct":     rep.ReturnPct,
			"buy_hold_pct":   rep.BuyHoldPct,
			"total_trades":   rep.TotalTrades,
			"winning_trades": rep.WinningTrades,
			"losing_trades":  rep.LosingTrades,
			"open_trades":    rep.OpenTrades,
			"win_rate":       rep.WinRate,
			"max_drawdown":   rep.MaxDrawdown,
			"sharpe_ratio":   rep.SharpeRatio,
			"profit_factor":  sqlSafe(rep.ProfitFactor),
			"calmar_ratio":   sqlSafe(rep.CalmarRatio),
			"report_json":    blob,
			"updated_at":     time.Now().UnixMilli(),
		}
		if err := tx.Model(&RunModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&TradeModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&EquityPointModel{}).Error; err != nil {
			return err
		}
		for i, t := range rep.Trades {
			m := TradeModel{
				RunID:      id,
				Seq:        i + 1,
				Symbol:     t.Symbol,
				Action:     string(t.Action),
				EntryTime:  t.EntryTime,
				ExitTime:   t.ExitTime,
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				Quantity:   t.Quantity,
				StopLoss:   t.StopLoss,
				TakeProfit: t.TakeProfit,
				PnL:        t.PnL,
				Confidence: t.Confidence,
				Status:     string(t.Status),
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		for _, p := range rep.Equity {
			m := EquityPointModel{RunID: id, TS: p.TS, Capital: p.Capital}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetRun(ctx context.Context, id string) (RunModel, error) {
	var m RunModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	return m, err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []RunModel
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) TradesForRun(ctx context.Context, runID string) ([]TradeModel, error) {
	var out []TradeModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq ASC").Find(&out).Error
	return out, err
}

func (s *Store) EquityForRun(ctx context.Context, runID string) ([]EquityPointModel, error) {
	var out []EquityPointModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC").Find(&out).Error
	return out, err
}

func (s *Store) CallsForRun(ctx context.Context, runID string) ([]ModelCallModel, error) {
	var out []ModelCallModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("candle_ts ASC").Find(&out).Error
	return out, err
}

// sqlite cannot store +Inf in a REAL column through some drivers; clamp
// to a large sentinel for display purposes.
func sqlSafe(v float64) float64 {
	const huge = 1e12
	if v > huge {
		return huge
	}
	if v < -huge {
		return -huge
	}
	return v
}

// CallObserver adapts the store to the AI engine's observer hook. One
// instance serves every run; the record carries the run ID stamped from
// the evaluation context. RunID is a fallback for run-scoped observers.
type CallObserver struct {
	Store *Store
	RunID string
}

func (o *CallObserver) Observe(rec ai.CallRecord) {
	if o == nil || o.Store == nil {
		return
	}
	runID := rec.RunID
	if runID == "" {
		runID = o.RunID
	}
	m := ModelCallModel{
		RunID:      runID,
		ProviderID: rec.ProviderID,
		Symbol:     rec.Symbol,
		CandleTS:   rec.CandleTS,
		Prompt:     rec.Prompt,
		Raw:        rec.Raw,
		Err:        rec.Err,
		LatencyMs:  rec.LatencyMs,
		CreatedAt:  time.Now().UnixMilli(),
	}
	_ = o.Store.db.Create(&m).Error
}
