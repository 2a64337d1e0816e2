// 包 openaip：航空点位数据（按国家拆分的 *_apt.json）的过滤与转换
package openaip

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/point"
	"world-helipads/internal/utils"
)

// 机场类型编码：7 民用直升机场，4 军用直升机场
const (
	TypeHeliportMilitary = 4
	TypeHeliportCivil    = 7
)

// entry 单个机场条目中用到的字段
type entry struct {
	Type     int    `json:"type"`
	Name     string `json:"name"`
	ICAOCode string `json:"icaoCode"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Elevation *struct {
		Value json.Number `json:"value"`
	} `json:"elevation"`
}

func isHeliport(t int) bool { return t == TypeHeliportCivil || t == TypeHeliportMilitary }

func jsonFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// 文档注释：过滤直升机场条目
// 背景：原始文件包含所有机场类型；逐文件保留 type 为 7 或 4 的条目，输出文件与输入同名，条目内容原样保留。
// 约束：非 .json 文件忽略；任一文件解析失败返回错误；输出原子写入。
func FilterFiles(src, dst string) (int, error) {
	files, err := jsonFiles(src)
	if err != nil {
		return 0, err
	}
	kept := 0
	for i, name := range files {
		b, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			return kept, err
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return kept, fmt.Errorf("openaip: parse %s: %w", name, err)
		}
		out := make([]json.RawMessage, 0)
		for _, r := range raw {
			var t struct {
				Type int `json:"type"`
			}
			if err := json.Unmarshal(r, &t); err != nil {
				return kept, fmt.Errorf("openaip: parse %s: %w", name, err)
			}
			if isHeliport(t.Type) {
				out = append(out, r)
			}
		}
		kept += len(out)
		err = utils.WriteAtomic(filepath.Join(dst, name), func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetEscapeHTML(false)
			return enc.Encode(out)
		})
		if err != nil {
			return kept, err
		}
		if (i+1)%50 == 0 {
			logger.L().Info("openaip_filter_progress", "files", i+1, "total", len(files))
		}
	}
	logger.L().Info("openaip_filter_done", "files", len(files), "kept", kept)
	return kept, nil
}

// 文档注释：转换为统一点集
// 背景：坐标取 geometry.coordinates（经度在前）；属性包固定为 icaoCode、name、operator（Civil/Military）、elevation（米，原始数值）。
// 约束：缺少坐标的条目跳过并计数；文件按名称顺序处理，输出顺序稳定。
func TransformDir(dir string) (point.Set, error) {
	files, err := jsonFiles(dir)
	if err != nil {
		return nil, err
	}
	var out point.Set
	skipped := 0
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var ents []entry
		if err := json.Unmarshal(b, &ents); err != nil {
			return nil, fmt.Errorf("openaip: parse %s: %w", name, err)
		}
		for _, e := range ents {
			if len(e.Geometry.Coordinates) < 2 {
				skipped++
				continue
			}
			out = append(out, point.Record{
				Lat:    e.Geometry.Coordinates[1],
				Lon:    e.Geometry.Coordinates[0],
				Source: point.SourceOpenAIP,
				Info:   infoFor(e).Encode(),
			})
		}
	}
	metrics.PointsLoadedTotal.WithLabelValues(string(point.SourceOpenAIP)).Add(float64(len(out)))
	metrics.PointsSkippedTotal.WithLabelValues(string(point.SourceOpenAIP)).Add(float64(skipped))
	logger.L().Info("openaip_transform_done", "files", len(files), "points", len(out), "skipped", skipped)
	return out, nil
}

func infoFor(e entry) point.Info {
	op := "Military"
	if e.Type == TypeHeliportCivil {
		op = "Civil"
	}
	elev := point.String("elevation", "")
	if e.Elevation != nil {
		elev = point.Number("elevation", e.Elevation.Value)
	}
	return point.Info{
		point.String("icaoCode", e.ICAOCode),
		point.String("name", e.Name),
		point.String("operator", op),
		elev,
	}
}
