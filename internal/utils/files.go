package utils

import (
	"io"
	"os"
	"path/filepath"
)

// 文档注释：原子写文件
// 背景：下载与过滤阶段会被中断后重跑，并以“文件已存在”判断是否跳过；半写文件会被误认为已完成。
// 约束：内容写入同目录临时文件，关闭成功后重命名；失败时删除临时文件。
func WriteAtomic(path string, fill func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := fill(f); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// FileExists 路径存在且为普通文件
func FileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
