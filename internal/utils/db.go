// 包 utils：外部依赖（PostgreSQL、Redis）的连接构建与文件写入工具，统一环境变量读取
package utils

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"world-helipads/internal/logger"

	_ "github.com/lib/pq"
)

// PostgresEnv 入库工具的连接参数
type PostgresEnv struct {
	DSN        string
	MaxOpen    int
	MaxIdle    int
	Retries    int
	RetryDelay time.Duration
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n >= 0 {
		return n
	}
	return def
}

// 文档注释：从环境变量拼接 PostgreSQL DSN
// 约束：PG_DSN 优先；其余项未设置时使用本地开发默认值；用户名与密码经 URL 转义，密码为空时不写入。
func BuildPostgresDSNFromEnv() string {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   envOr("PG_HOST", "localhost") + ":" + envOr("PG_PORT", "5432"),
		Path:   "/" + envOr("PG_DB", "helipads"),
	}
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		u.User = url.UserPassword(envOr("PG_USER", "postgres"), pass)
	} else {
		u.User = url.User(envOr("PG_USER", "postgres"))
	}
	u.RawQuery = "sslmode=" + envOr("PG_SSLMODE", "disable")
	return u.String()
}

// PostgresFromEnv 读取连接参数；入库为单批次顺序写入，连接池默认 4/2
func PostgresFromEnv() PostgresEnv {
	return PostgresEnv{
		DSN:        BuildPostgresDSNFromEnv(),
		MaxOpen:    envIntOr("PG_MAX_OPEN_CONNS", 4),
		MaxIdle:    envIntOr("PG_MAX_IDLE_CONNS", 2),
		Retries:    envIntOr("PG_CONNECT_RETRIES", 10),
		RetryDelay: 2 * time.Second,
	}
}

// 文档注释：打开连接池并等待数据库就绪
// 背景：入库工具常与数据库容器同时启动，首次 Ping 可能失败；按 RetryDelay 间隔重试 Retries 次。
func OpenPostgres(ctx context.Context, env PostgresEnv) (*sql.DB, error) {
	db, err := sql.Open("postgres", env.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(env.MaxOpen)
	db.SetMaxIdleConns(env.MaxIdle)
	for attempt := 0; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt >= env.Retries {
			break
		}
		logger.L().Warn("db_wait", "attempt", attempt+1, "retries", env.Retries, "err", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(env.RetryDelay):
		}
	}
	db.Close()
	return nil, fmt.Errorf("postgres not ready after %d attempts: %w", env.Retries+1, err)
}

// OpenPostgresFromEnv 按环境变量打开并确认连接可用
func OpenPostgresFromEnv(ctx context.Context) (*sql.DB, error) {
	return OpenPostgres(ctx, PostgresFromEnv())
}
