// 包 point：点记录与点集的最小数据结构
// 背景：两类数据源（航空点位、众包地图）统一为 lat/lon/source/info_json 四列；属性包对合并引擎不透明，只做透传。
// 约束：记录创建后不可修改；各阶段输出均为新点集。
package point

import (
	"math"

	"github.com/paulmach/orb"
)

// Source 来源标签，与表格 source 列一致
type Source string

const (
	// SourceOpenAIP 航空点位数据（主来源，合并时始终保留）
	SourceOpenAIP Source = "OpenAIP"
	// SourceOSM 众包地图数据（次来源，仅保留未匹配项）
	SourceOSM Source = "OSM"
)

// Record 单个点记录；Info 为序列化后的属性包（info_json 列）
type Record struct {
	Lat    float64
	Lon    float64
	Source Source
	Info   string
}

// Point 转为 orb 坐标（经度在前）
func (r Record) Point() orb.Point { return orb.Point{r.Lon, r.Lat} }

// Valid 坐标为有限值且位于经纬度取值范围内
func (r Record) Valid() bool {
	if math.IsNaN(r.Lat) || math.IsNaN(r.Lon) || math.IsInf(r.Lat, 0) || math.IsInf(r.Lon, 0) {
		return false
	}
	return r.Lat >= -90 && r.Lat <= 90 && r.Lon >= -180 && r.Lon <= 180
}

// Set 有序点集，创建时不要求唯一
type Set []Record

// Points 按顺序导出 orb 坐标
func (s Set) Points() []orb.Point {
	out := make([]orb.Point, len(s))
	for i, r := range s {
		out[i] = r.Point()
	}
	return out
}

// Clone 浅拷贝点集（记录为值类型）
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	return append(Set(nil), s...)
}
