package osm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"

	"world-helipads/internal/logger"
	"world-helipads/internal/utils"

	"github.com/paulmach/orb"
)

// Querier 瓦片查询接口，*Client 实现
type Querier interface {
	Query(ctx context.Context, tmpl string, tile orb.Bound) ([]byte, error)
}

// DownloadStats 一次下载的计数
type DownloadStats struct {
	Tiles      int
	Skipped    int
	Downloaded int
	Failed     int
}

// 文档注释：按瓦片下载查询结果到目录
// 背景：全球瓦片数量多、单块耗时长，作业常被中断后重跑；已存在的瓦片文件直接跳过。
// 流程：任务通道派发瓦片 → workers 个协程查询 → 原子写入 TileFileName(tile)。
// 约束：单个瓦片失败不影响其它瓦片，结束后若有失败返回错误，重跑时只补缺失的瓦片；ctx 取消时停止派发。
func Download(ctx context.Context, q Querier, tiles []orb.Bound, tmpl, dir string, workers int) (DownloadStats, error) {
	st := DownloadStats{Tiles: len(tiles)}
	if workers < 1 {
		workers = 1
	}
	var downloaded, failed atomic.Int64
	jobs := make(chan orb.Bound, workers*4)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tile := range jobs {
				b, err := q.Query(ctx, tmpl, tile)
				if err != nil {
					failed.Add(1)
					logger.L().Error("osm_tile_error", "tile", BBox(tile), "err", err)
					continue
				}
				path := filepath.Join(dir, TileFileName(tile))
				if err := utils.WriteAtomic(path, func(w io.Writer) error {
					_, err := io.Copy(w, bytes.NewReader(b))
					return err
				}); err != nil {
					failed.Add(1)
					logger.L().Error("osm_tile_write_error", "path", path, "err", err)
					continue
				}
				n := downloaded.Add(1)
				if n%50 == 0 {
					logger.L().Info("osm_download_progress", "dir", dir, "downloaded", n, "tiles", len(tiles))
				}
			}
		}()
	}
	var ctxErr error
dispatch:
	for _, tile := range tiles {
		if utils.FileExists(filepath.Join(dir, TileFileName(tile))) {
			st.Skipped++
			continue
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case jobs <- tile:
		}
	}
	close(jobs)
	wg.Wait()
	st.Downloaded = int(downloaded.Load())
	st.Failed = int(failed.Load())
	logger.L().Info("osm_download_done", "dir", dir, "tiles", st.Tiles, "skipped", st.Skipped, "downloaded", st.Downloaded, "failed", st.Failed)
	if ctxErr != nil {
		return st, ctxErr
	}
	if st.Failed > 0 {
		return st, fmt.Errorf("osm: %d of %d tiles failed in %s", st.Failed, st.Tiles, dir)
	}
	return st, nil
}
