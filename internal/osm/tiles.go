// 包 osm：众包地图数据的分块下载（Overpass API）与转换
package osm

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// 文档注释：全球等分瓦片
// 背景：Overpass 对单次查询的范围与耗时有限制，按纬度 latDiv、经度 lonDiv 等分全球后逐块查询。
// 返回：按纬度带优先、经度次之的顺序排列；边界由 -90/-180 起算的浮点累加得到，与历史下载文件名保持一致。
func WorldTiles(latDiv, lonDiv int) []orb.Bound {
	if latDiv <= 0 || lonDiv <= 0 {
		return nil
	}
	latStep := 180 / float64(latDiv)
	lonStep := 360 / float64(lonDiv)
	out := make([]orb.Bound, 0, latDiv*lonDiv)
	for i := 0; i < latDiv; i++ {
		latMin := -90 + float64(i)*latStep
		latMax := -90 + float64(i+1)*latStep
		for j := 0; j < lonDiv; j++ {
			lonMin := -180 + float64(j)*lonStep
			lonMax := -180 + float64(j+1)*lonStep
			out = append(out, orb.Bound{Min: orb.Point{lonMin, latMin}, Max: orb.Point{lonMax, latMax}})
		}
	}
	return out
}

// 浮点文本：整数值保留 ".0" 后缀，其余取最短可还原表示
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// BBox Overpass 查询的范围文本：南, 西, 北, 东
func BBox(b orb.Bound) string {
	return formatCoord(b.Min.Lat()) + ", " + formatCoord(b.Min.Lon()) + ", " + formatCoord(b.Max.Lat()) + ", " + formatCoord(b.Max.Lon())
}

// TileFileName 瓦片文件名，形如 "(-90.0, -180.0, -80.0, -170.0).json"
func TileFileName(b orb.Bound) string {
	return "(" + BBox(b) + ").json"
}

// RenderQuery 将查询模板中的 $bbox$ 替换为瓦片范围
func RenderQuery(tmpl string, b orb.Bound) string {
	return strings.ReplaceAll(tmpl, "$bbox$", BBox(b))
}
