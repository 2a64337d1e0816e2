// 包 table：点集的落盘表示（列式文件 + 带表头的 CSV 成对写出）
// 背景：每个流水线阶段都把输出写成同名的 .parquet 与 .csv，两者行与顺序一致；列固定为 lat, lon, source, info_json。
package table

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"world-helipads/internal/logger"
	"world-helipads/internal/point"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// Columns 表头（顺序固定）
var Columns = []string{"lat", "lon", "source", "info_json"}

const rowGroupSize = 64 * 1024

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "lat", Type: arrow.PrimitiveTypes.Float64},
	{Name: "lon", Type: arrow.PrimitiveTypes.Float64},
	{Name: "source", Type: arrow.BinaryTypes.String},
	{Name: "info_json", Type: arrow.BinaryTypes.String},
}, nil)

// 文档注释：成对写出 <base>.parquet 与 <base>.csv
// 背景：下游工具分别消费列式文件与文本文件；中断的写入不得留下半个文件。
// 约束：两份内容先写入同目录临时文件，全部成功后才依次重命名；旧 .parquet 先移到备份名，
// .csv 替换失败时恢复旧 .parquet（无旧文件时删除新文件），两者不会一新一旧。
func WritePair(base string, set point.Set) error {
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".parquet"), ".csv")
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return err
	}
	pqPath, csvPath := base+".parquet", base+".csv"
	pqTmp, err := writeTemp(pqPath, func(w io.Writer) error { return writeParquet(w, set) })
	if err != nil {
		return err
	}
	csvTmp, err := writeTemp(csvPath, func(w io.Writer) error { return writeCSV(w, set) })
	if err != nil {
		_ = os.Remove(pqTmp)
		return err
	}
	cleanup := func() {
		_ = os.Remove(pqTmp)
		_ = os.Remove(csvTmp)
	}
	backup := ""
	if _, err := os.Lstat(pqPath); err == nil {
		backup = pqTmp + ".prev"
		if err := os.Rename(pqPath, backup); err != nil {
			cleanup()
			return err
		}
	}
	restore := func() {
		if backup != "" {
			_ = os.Rename(backup, pqPath)
		} else {
			_ = os.Remove(pqPath)
		}
	}
	if err := os.Rename(pqTmp, pqPath); err != nil {
		restore()
		cleanup()
		return err
	}
	if err := os.Rename(csvTmp, csvPath); err != nil {
		restore()
		cleanup()
		return fmt.Errorf("table: replace %s: %w", csvPath, err)
	}
	if backup != "" {
		_ = os.Remove(backup)
	}
	logger.L().Info("table_written", "base", base, "rows", len(set))
	return nil
}

func writeTemp(final string, fill func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(final), filepath.Base(final)+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := fill(f); err != nil {
		f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("table: write %s: %w", final, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func writeParquet(w io.Writer, set point.Set) error {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	lat := b.Field(0).(*array.Float64Builder)
	lon := b.Field(1).(*array.Float64Builder)
	src := b.Field(2).(*array.StringBuilder)
	info := b.Field(3).(*array.StringBuilder)
	for _, r := range set {
		lat.Append(r.Lat)
		lon.Append(r.Lon)
		src.Append(string(r.Source))
		info.Append(r.Info)
	}
	rec := b.NewRecord()
	defer rec.Release()
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	return pqarrow.WriteTable(tbl, w, rowGroupSize, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
}

func writeCSV(w io.Writer, set point.Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range set {
		row := []string{
			strconv.FormatFloat(r.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Lon, 'f', -1, 64),
			string(r.Source),
			r.Info,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read 按扩展名读取 .parquet 或 .csv
func Read(ctx context.Context, path string) (point.Set, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return ReadParquet(ctx, path)
	case ".csv":
		return ReadCSV(path)
	}
	return nil, fmt.Errorf("table: unsupported file %s", path)
}

// 文档注释：读取列式文件
// 约束：按列名定位，缺少任一列返回错误；行顺序与写入一致。
func ReadParquet(ctx context.Context, path string) (point.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("table: read %s: %w", path, err)
	}
	defer tbl.Release()
	var cols [4]int
	for i, name := range Columns {
		idx := tbl.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("table: %s missing column %q", path, name)
		}
		cols[i] = idx[0]
	}
	out := make(point.Set, 0, tbl.NumRows())
	tr := array.NewTableReader(tbl, rowGroupSize)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		lat, ok1 := rec.Column(cols[0]).(*array.Float64)
		lon, ok2 := rec.Column(cols[1]).(*array.Float64)
		src, ok3 := rec.Column(cols[2]).(*array.String)
		info, ok4 := rec.Column(cols[3]).(*array.String)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, fmt.Errorf("table: %s has unexpected column types", path)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			r := point.Record{Lat: nullableFloat(lat, i), Lon: nullableFloat(lon, i)}
			if src.IsValid(i) {
				r.Source = point.Source(src.Value(i))
			}
			if info.IsValid(i) {
				r.Info = info.Value(i)
			}
			out = append(out, r)
		}
	}
	return out, tr.Err()
}

// 空值读作 NaN，由分类器按非法坐标处理
func nullableFloat(a *array.Float64, i int) float64 {
	if a.IsNull(i) {
		return math.NaN()
	}
	return a.Value(i)
}

// 文档注释：读取 CSV
// 约束：首行为表头，按列名定位且允许额外列；坐标为空读作 NaN，不可解析时返回带行号的错误。
func ReadCSV(path string) (point.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("table: read header %s: %w", path, err)
	}
	pos := map[string]int{}
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	var cols [4]int
	for i, name := range Columns {
		p, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("table: %s missing column %q", path, name)
		}
		cols[i] = p
	}
	var out point.Set
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("table: %s line %d: %w", path, line, err)
		}
		get := func(i int) string {
			if cols[i] < len(row) {
				return row[cols[i]]
			}
			return ""
		}
		lat, err := parseCoord(get(0))
		if err != nil {
			return nil, fmt.Errorf("table: %s line %d lat: %w", path, line, err)
		}
		lon, err := parseCoord(get(1))
		if err != nil {
			return nil, fmt.Errorf("table: %s line %d lon: %w", path, line, err)
		}
		out = append(out, point.Record{Lat: lat, Lon: lon, Source: point.Source(get(2)), Info: get(3)})
	}
	return out, nil
}

func parseCoord(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
