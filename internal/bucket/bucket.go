// 包 bucket：公开对象存储桶的列举与镜像下载（S3 兼容接口，匿名访问）
package bucket

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"
)

// ObjectStore 对象列举与读取
type ObjectStore interface {
	List(ctx context.Context, suffix string) ([]string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3Store 基于 S3 协议的只读存储桶
type S3Store struct {
	Client *s3.Client
	Bucket string
}

// 文档注释：创建匿名访问的存储桶客户端
// 背景：数据集发布在公开存储桶中，通过 S3 兼容端点访问；不读取本地凭据，避免误用个人账号。
// 约束：endpoint 为空时使用 AWS 默认端点；使用路径风格寻址以兼容非 AWS 实现。
func NewS3Store(ctx context.Context, endpoint, bucketName string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("bucket: load config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})
	return &S3Store{Client: client, Bucket: bucketName}, nil
}

// List 列举以 suffix 结尾的对象键
func (s *S3Store) List(ctx context.Context, suffix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{Bucket: aws.String(s.Bucket)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("bucket: list %s: %w", s.Bucket, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if strings.HasSuffix(k, suffix) {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// Open 读取对象内容
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.Bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("bucket: get %s: %w", key, err)
	}
	return out.Body, nil
}

// MirrorOptions 镜像下载参数
type MirrorOptions struct {
	Workers int
	Retries int
	Backoff time.Duration
}

// DefaultMirrorOptions 默认 4 并发、3 次重试
func DefaultMirrorOptions() MirrorOptions {
	return MirrorOptions{Workers: 4, Retries: 3, Backoff: time.Second}
}

// MirrorStats 一次镜像的计数
type MirrorStats struct {
	Objects    int
	Skipped    int
	Downloaded int
	Failed     int
}

// 文档注释：把以 suffix 结尾的对象镜像到本地目录
// 背景：本地已存在的文件视为已完成，重跑时只补缺失对象；下载按 attempt*Backoff 线性退避重试。
// 约束：对象键含 ".." 时拒绝写入；单个对象失败不影响其它对象，结束后若有失败返回错误。
func Mirror(ctx context.Context, store ObjectStore, suffix, dir string, opts MirrorOptions) (MirrorStats, error) {
	keys, err := store.List(ctx, suffix)
	if err != nil {
		return MirrorStats{}, err
	}
	st := MirrorStats{Objects: len(keys)}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	var downloaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for _, key := range keys {
		if strings.Contains(key, "..") {
			failed.Add(1)
			metrics.BucketDownloadsTotal.WithLabelValues("error").Inc()
			logger.L().Error("bucket_key_rejected", "key", key)
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(key))
		if utils.FileExists(path) {
			st.Skipped++
			metrics.BucketDownloadsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fetch(gctx, store, key, path, opts); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				metrics.BucketDownloadsTotal.WithLabelValues("error").Inc()
				logger.L().Error("bucket_download_error", "key", key, "err", err)
				return nil
			}
			metrics.BucketDownloadsTotal.WithLabelValues("ok").Inc()
			if n := downloaded.Add(1); n%50 == 0 {
				logger.L().Info("bucket_download_progress", "downloaded", n, "objects", len(keys))
			}
			return nil
		})
	}
	werr := g.Wait()
	st.Downloaded = int(downloaded.Load())
	st.Failed = int(failed.Load())
	logger.L().Info("bucket_mirror_done", "dir", dir, "objects", st.Objects, "skipped", st.Skipped, "downloaded", st.Downloaded, "failed", st.Failed)
	if werr != nil {
		return st, werr
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}
	if st.Failed > 0 {
		return st, fmt.Errorf("bucket: %d of %d objects failed", st.Failed, st.Objects)
	}
	return st, nil
}

func fetch(ctx context.Context, store ObjectStore, key, path string, opts MirrorOptions) error {
	var err error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * opts.Backoff):
			}
			logger.L().Warn("bucket_retry", "key", key, "attempt", attempt, "err", err)
		}
		err = utils.WriteAtomic(path, func(w io.Writer) error {
			rc, err := store.Open(ctx, key)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(w, rc)
			return err
		})
		if err == nil {
			return nil
		}
	}
	return err
}
