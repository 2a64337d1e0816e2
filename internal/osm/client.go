package osm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

// 文档注释：瓦片响应缓存
// 背景：同一瓦片在多次重跑之间内容基本不变，缓存命中时跳过外部请求；缓存不可用时直接回源。
type TileCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
}

// RedisCache 基于 Redis 的瓦片缓存
type RedisCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.RDB.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte) error {
	return c.RDB.Set(ctx, key, val, c.TTL).Err()
}

// StatusError 非 200 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("overpass: status %d: %s", e.Code, e.Body)
}

// 429 与 5xx 视为可重试
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Client Overpass API 客户端
type Client struct {
	URL     string
	HTTP    *http.Client
	Limiter *MinuteLimiter
	Cache   TileCache
	Retries int
	Backoff time.Duration
}

// NewClient 创建客户端；timeout 为单次请求超时
func NewClient(endpoint string, perMin int, timeout time.Duration) *Client {
	return &Client{
		URL:     endpoint,
		HTTP:    &http.Client{Timeout: timeout},
		Limiter: NewMinuteLimiter(perMin),
		Retries: 3,
		Backoff: 2 * time.Second,
	}
}

func cacheKey(body string) string {
	sum := sha256.Sum256([]byte(body))
	return "overpass:" + hex.EncodeToString(sum[:])
}

// 文档注释：查询单个瓦片
// 参数：tmpl 为含 $bbox$ 的查询模板；tile 为查询范围。
// 返回：原始 JSON 响应体。
// 约束：先查缓存；请求前经过限流；可重试错误按 attempt*Backoff 线性退避；响应体必须为合法 JSON 且不含运行时错误说明。
func (c *Client) Query(ctx context.Context, tmpl string, tile orb.Bound) ([]byte, error) {
	query := RenderQuery(tmpl, tile)
	key := cacheKey(query)
	if c.Cache != nil {
		if b, ok, err := c.Cache.Get(ctx, key); err != nil {
			logger.L().Warn("overpass_cache_get_error", "err", err)
		} else if ok {
			metrics.OverpassCacheHitsTotal.Inc()
			return b, nil
		}
	}
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.Backoff
			logger.L().Warn("overpass_retry", "tile", BBox(tile), "attempt", attempt, "wait_ms", wait.Milliseconds(), "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		b, err := c.do(ctx, query)
		if err == nil {
			if c.Cache != nil {
				if err := c.Cache.Set(ctx, key, b); err != nil {
					logger.L().Warn("overpass_cache_set_error", "err", err)
				}
			}
			return b, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, query string) ([]byte, error) {
	form := url.Values{}
	form.Set("data", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 180 * time.Second}
	}
	t0 := time.Now()
	metrics.OverpassRequestsTotal.Inc()
	resp, err := hc.Do(req)
	if err != nil {
		metrics.OverpassFailTotal.Inc()
		logger.L().Error("overpass_http_error", "err", err)
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	dur := time.Since(t0).Milliseconds()
	metrics.OverpassDurationMs.Observe(float64(dur))
	if err != nil {
		metrics.OverpassFailTotal.Inc()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		metrics.OverpassFailTotal.Inc()
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	var head struct {
		Remark string `json:"remark"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		metrics.OverpassFailTotal.Inc()
		return nil, fmt.Errorf("overpass: decode: %w", err)
	}
	if strings.Contains(head.Remark, "runtime error") {
		metrics.OverpassFailTotal.Inc()
		return nil, &StatusError{Code: http.StatusGatewayTimeout, Body: head.Remark}
	}
	logger.L().Debug("overpass_resp", "bytes", len(body), "duration_ms", dur)
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
