package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

// MaxDecisionsPerKind 每种条目最多持久化的审计记录数
const MaxDecisionsPerKind = 100

// ErrNotFound 任务结果不存在
var ErrNotFound = errors.New("storage: result not found")

// Store 结果持久化边界
type Store interface {
	SaveResult(ctx context.Context, jobID string, report *model.Report) error
	LoadResult(ctx context.Context, jobID string) (*model.Report, error)
	Close() error
}

// Storage 基于 database/sql，支持 postgres 与 sqlite
type Storage struct {
	db     *sql.DB
	driver string
}

// Ensure Storage implements Store
var _ Store = (*Storage)(nil)

// NewStorage 打开数据库并初始化表结构
func NewStorage(ctx context.Context, cfg config.DBConfig) (*Storage, error) {
	var driver, dsn string
	switch cfg.Driver {
	case "sqlite":
		driver, dsn = "sqlite", cfg.Path
	default:
		driver = "postgres"
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if driver == "sqlite" {
		// 单文件数据库，避免并发写入时 SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	s := &Storage{db: db, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS pain_results (
		job_id TEXT PRIMARY KEY,
		hypothesis TEXT NOT NULL,
		strategy TEXT,
		quality_level TEXT,
		signal_count INTEGER,
		report TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// SaveResult 同一 job 重复保存时覆盖
func (s *Storage) SaveResult(ctx context.Context, jobID string, report *model.Report) error {
	stored := *report
	stored.Decisions = TruncateDecisions(report.Decisions, MaxDecisionsPerKind)

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal report failed: %w", err)
	}

	query := s.rebind(`INSERT INTO pain_results (job_id, hypothesis, strategy, quality_level, signal_count, report)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			hypothesis = excluded.hypothesis,
			strategy = excluded.strategy,
			quality_level = excluded.quality_level,
			signal_count = excluded.signal_count,
			report = excluded.report`)
	_, err = s.db.ExecContext(ctx, query,
		jobID,
		removeNullBytes(report.Hypothesis.Text),
		report.Metrics.Strategy,
		string(report.Metrics.QualityLevel),
		len(report.Signals),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save result %s failed: %w", jobID, err)
	}
	return nil
}

// LoadResult 读取已保存的结果
func (s *Storage) LoadResult(ctx context.Context, jobID string) (*model.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT report FROM pain_results WHERE job_id = ?`), jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load result %s failed: %w", jobID, err)
	}
	var r model.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("unmarshal result %s failed: %w", jobID, err)
	}
	return &r, nil
}

// TruncateDecisions 每种条目保留前 n 条，保持原有顺序
func TruncateDecisions(in []model.RelevanceDecision, n int) []model.RelevanceDecision {
	counts := map[model.ItemKind]int{}
	out := make([]model.RelevanceDecision, 0, min(len(in), 3*n))
	for _, d := range in {
		if counts[d.Kind] >= n {
			continue
		}
		counts[d.Kind]++
		out = append(out, d)
	}
	return out
}

// rebind postgres 使用 $n 占位符
func (s *Storage) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// removeNullBytes PostgreSQL 文本字段不支持 NULL 字节
func removeNullBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
