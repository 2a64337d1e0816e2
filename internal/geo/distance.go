// 包 geo：球面距离计算（Haversine），供空间索引与去重共享同一度量
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusM 球体半径（米），与上游数据处理保持一致，非 WGS84 长半轴
const EarthRadiusM = 6371000.0

// Radians 角度转弧度
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// 文档注释：两点间的圆心角（弧度），输入为弧度
// 背景：索引在构建时一次性完成角度转换，查询期只做三角运算；Distance 复用同一实现，保证边界点判定一致。
// 约束：不校验取值范围，越界输入得到无意义结果。
func AngleRad(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	a := sLat*sLat + math.Cos(lat1)*math.Cos(lat2)*sLon*sLon
	if a > 1 {
		a = 1
	}
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// 文档注释：球面距离（米），半径固定为 EarthRadiusM
func Distance(a, b orb.Point) float64 {
	return DistanceOn(EarthRadiusM, a, b)
}

// DistanceOn 指定球体半径的球面距离（米）
func DistanceOn(radiusM float64, a, b orb.Point) float64 {
	return radiusM * AngleRad(Radians(a.Lat()), Radians(a.Lon()), Radians(b.Lat()), Radians(b.Lon()))
}
