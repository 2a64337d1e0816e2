package osm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"world-helipads/internal/logger"
	"world-helipads/internal/metrics"
	"world-helipads/internal/point"
)

// Kind 查询类别，同时是下载子目录名
type Kind string

const (
	KindHelipad  Kind = "heli"
	KindHospital Kind = "hospital"
	KindOffshore Kind = "offshore"
)

// element Overpass 输出中的单个要素；way/relation 仅带 center
type element struct {
	Type   string   `json:"type"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

// coords 要素坐标；缺失时 ok 为假
func (e element) coords() (lat, lon float64, ok bool) {
	switch e.Type {
	case "node":
		if e.Lat != nil && e.Lon != nil {
			return *e.Lat, *e.Lon, true
		}
	case "way", "relation":
		if e.Center != nil {
			return e.Center.Lat, e.Center.Lon, true
		}
	}
	return 0, 0, false
}

// 直升机坪属性包：输出键与来源标签的对应关系，顺序即输出顺序
var helipadTags = []struct{ key, tag string }{
	{"name", "name"},
	{"icaoCode", "icao"},
	{"surface", "surface"},
	{"operator", "operator:type"},
	{"description", "description"},
	{"elevation", "ele"},
}

func infoFor(kind Kind, tags map[string]string) point.Info {
	if kind != KindHelipad {
		return point.Info{point.String("name", tags["name"]), point.String("site", string(kind))}
	}
	out := make(point.Info, 0, len(helipadTags))
	for _, m := range helipadTags {
		out = append(out, point.String(m.key, tags[m.tag]))
	}
	return out
}

// 文档注释：转换目录内全部瓦片文件
// 背景：瓦片文件为 Overpass 原始 JSON（elements 数组）；节点取自身坐标，way/relation 取 center。
// 约束：无坐标要素跳过并计数；内容为 null 的历史失败文件记录告警后跳过；文件按名称顺序处理。
func TransformDir(dir string, kind Kind) (point.Set, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out point.Set
	skipped, files := 0, 0
	for _, de := range ents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		files++
		b, err := os.ReadFile(filepath.Join(dir, de.Name()))
		if err != nil {
			return nil, err
		}
		if t := bytes.TrimSpace(b); len(t) == 0 || string(t) == "null" {
			logger.L().Warn("osm_tile_empty", "file", de.Name())
			continue
		}
		var doc struct {
			Elements []element `json:"elements"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("osm: parse %s: %w", de.Name(), err)
		}
		for _, e := range doc.Elements {
			lat, lon, ok := e.coords()
			if !ok {
				skipped++
				continue
			}
			out = append(out, point.Record{Lat: lat, Lon: lon, Source: point.SourceOSM, Info: infoFor(kind, e.Tags).Encode()})
		}
	}
	if kind == KindHelipad {
		metrics.PointsLoadedTotal.WithLabelValues(string(point.SourceOSM)).Add(float64(len(out)))
		metrics.PointsSkippedTotal.WithLabelValues(string(point.SourceOSM)).Add(float64(skipped))
	}
	logger.L().Info("osm_transform_done", "kind", string(kind), "files", files, "points", len(out), "skipped", skipped)
	return out, nil
}
