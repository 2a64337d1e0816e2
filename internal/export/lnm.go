// 包 export：合并结果导出为导航软件（LittleNavMap 用户点）可导入的 CSV，按经度分区拆分文件
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"world-helipads/internal/config"
	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/point"
	"world-helipads/internal/utils"
)

// Columns 用户点导入格式的列
var Columns = []string{
	"Type", "Name", "Ident", "Latitude", "Longitude", "Elevation", "Magnetic Declination",
	"Tags", "Description", "Region", "Visible From", "Last Edit", "Import Filename",
}

const (
	pointType = "Helipad"
	pointTags = "WorldHelipads"
	feetPerM  = 3.28084
)

// RegionAssignmentError 经度不属于任何分区；属于配置错误，不做恢复
type RegionAssignmentError struct {
	Longitude float64
}

func (e *RegionAssignmentError) Error() string {
	return fmt.Sprintf("export: could not assign region to longitude %v", e.Longitude)
}

// Row 导出行
type Row struct {
	Name        string
	Ident       string
	Latitude    float64
	Longitude   float64
	Elevation   string
	Description string
	Region      string
}

func (r Row) record() []string {
	return []string{
		pointType, r.Name, r.Ident, pyFloat(r.Latitude), pyFloat(r.Longitude), r.Elevation, "",
		pointTags, r.Description, r.Region, "", "", "",
	}
}

// AssignRegion 按分区列表顺序返回第一个包含该经度的分区名
func AssignRegion(lon float64, bands []config.RegionBand) (string, error) {
	for _, b := range bands {
		if b.Contains(lon) {
			return b.Name, nil
		}
	}
	return "", &RegionAssignmentError{Longitude: lon}
}

// 文档注释：单条记录转换为导出行
// 约束：Name/Ident 取属性包 name/icaoCode；属性包无法解析或经度无分区时返回错误。
func ToRow(r point.Record, bands []config.RegionBand) (Row, error) {
	info, err := point.ParseInfo(r.Info)
	if err != nil {
		return Row{}, fmt.Errorf("export: %w", err)
	}
	region, err := AssignRegion(r.Lon, bands)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Name:        info.Get("name"),
		Ident:       info.Get("icaoCode"),
		Latitude:    r.Lat,
		Longitude:   r.Lon,
		Elevation:   ElevationFeet(info),
		Description: Description(string(r.Source), info),
		Region:      region,
	}, nil
}

// 文档注释：海拔（米）转英尺
// 背景：来源中的海拔常带单位或空格（如 "12 m"），只保留数字、小数点、逗号与负号后解析；逗号视为小数点。
// 返回：英尺文本；缺失或无法解析时为空串（后者记录告警）。
func ElevationFeet(info point.Info) string {
	v := info.Get("elevation")
	if v == "" {
		return ""
	}
	var b strings.Builder
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9', c == '.', c == '-':
			b.WriteRune(c)
		case c == ',':
			b.WriteByte('.')
		}
	}
	m, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		logger.L().Warn("export_elevation_unparsable", "value", v)
		return ""
	}
	return pyFloat(m * feetPerM)
}

// 文档注释：生成描述文本
// 背景：name 与 icaoCode 已在独立列中，其余非空字段按属性包顺序逐行输出 "Key: value"；海拔输出为 "Elevation: <v>m MSL"。
// 约束：最后一行固定为 "Source: <source>"。
func Description(source string, info point.Info) string {
	var b strings.Builder
	for _, f := range info {
		if f.Key == "name" || f.Key == "icaoCode" {
			continue
		}
		v := f.Value()
		if v == "" {
			continue
		}
		if f.Key == "elevation" {
			b.WriteString("Elevation: " + v + "m MSL\n")
			continue
		}
		b.WriteString(capitalize(f.Key) + ": " + v + "\n")
	}
	b.WriteString("Source: " + source)
	return b.String()
}

// 首字母大写，其余小写
func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[n:])
}

// 浮点文本：整数值保留 ".0" 后缀，其余取最短可还原表示
func pyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}

// FileName 分区导出文件名
func FileName(region string) string {
	return "export_lnm_" + region + ".csv"
}

// 文档注释：按分区写出导出文件
// 背景：导航软件对单个导入文件的大小敏感，按经度分区拆分；分区文件顺序与行顺序均跟随输入顺序。
// 返回：分区名到行数的映射。
// 约束：全部记录先完成转换，任一记录失败（含 RegionAssignmentError）时不写出任何文件；每个文件原子写入。
func Write(set point.Set, bands []config.RegionBand, dir string) (map[string]int, error) {
	var order []string
	byRegion := map[string][]Row{}
	for i, r := range set {
		row, err := ToRow(r, bands)
		if err != nil {
			return nil, fmt.Errorf("export: record %d: %w", i, err)
		}
		if _, ok := byRegion[row.Region]; !ok {
			order = append(order, row.Region)
		}
		byRegion[row.Region] = append(byRegion[row.Region], row)
	}
	counts := make(map[string]int, len(order))
	for _, region := range order {
		rows := byRegion[region]
		path := filepath.Join(dir, FileName(region))
		err := utils.WriteAtomic(path, func(w io.Writer) error {
			cw := csv.NewWriter(w)
			if err := cw.Write(Columns); err != nil {
				return err
			}
			for _, row := range rows {
				if err := cw.Write(row.record()); err != nil {
					return err
				}
			}
			cw.Flush()
			return cw.Error()
		})
		if err != nil {
			return counts, err
		}
		counts[region] = len(rows)
		metrics.ExportRowsTotal.WithLabelValues(region).Add(float64(len(rows)))
		logger.L().Info("export_region_written", "region", region, "rows", len(rows), "path", path)
	}
	return counts, nil
}
