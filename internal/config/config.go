// 包 config：批次作业配置（目录、数据源、合并半径、导出分区），显式传入各组件
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid 配置取值非法
var ErrInvalid = errors.New("invalid config")

// Overpass 查询模板，$bbox$ 在请求时替换为瓦片范围
const (
	HeliQuery     = `[out:json];(node[aeroway~"helipad|heliport"]($bbox$);way[aeroway~"helipad|heliport"]($bbox$);relation[aeroway~"helipad|heliport"]($bbox$););out center;`
	HospitalQuery = `[out:json];(node[amenity=hospital]($bbox$);way[amenity=hospital]($bbox$);relation[amenity=hospital]($bbox$););out center;`
	OffshoreQuery = `[out:json];(node[man_made~"offshore_platform|floating_storage"]($bbox$);way[man_made~"offshore_platform|floating_storage"]($bbox$);relation[man_made~"offshore_platform|floating_storage"]($bbox$);node["seamark:type"="platform"]($bbox$);way["seamark:type"="platform"]($bbox$);relation["seamark:type"="platform"]($bbox$););out center;`
)

// 文档注释：经度分区
// 背景：导出按经度把全球切为若干区域文件；区间为 [West, East)，IncludeEast 为真时东边界也属于该区。
type RegionBand struct {
	Name        string  `yaml:"name"`
	West        float64 `yaml:"west"`
	East        float64 `yaml:"east"`
	IncludeEast bool    `yaml:"include_east"`
}

// Contains 经度是否落在分区内
func (b RegionBand) Contains(lon float64) bool {
	if lon >= b.West && lon < b.East {
		return true
	}
	return b.IncludeEast && lon == b.East
}

// Config 一次批次作业的全部参数
type Config struct {
	RawDir          string `yaml:"raw_dir"`
	OpenAIPDir      string `yaml:"openaip_dir"`
	OSMDir          string `yaml:"osm_dir"`
	IntermediateDir string `yaml:"intermediate_dir"`
	ExportDir       string `yaml:"export_dir"`

	Bucket         string `yaml:"bucket"`
	BucketSuffix   string `yaml:"bucket_suffix"`
	BucketEndpoint string `yaml:"bucket_endpoint"`
	BucketWorkers  int    `yaml:"bucket_workers"`

	OverpassURL        string `yaml:"overpass_url"`
	LatDivisions       int    `yaml:"lat_divisions"`
	LonDivisions       int    `yaml:"lon_divisions"`
	OverpassRatePerMin int    `yaml:"overpass_rate_per_min"`
	OverpassWorkers    int    `yaml:"overpass_workers"`
	OverpassTimeoutSec int    `yaml:"overpass_timeout_sec"`
	OverpassRetries    int    `yaml:"overpass_retries"`
	HeliQuery          string `yaml:"heli_query"`
	HospitalQuery      string `yaml:"hospital_query"`
	OffshoreQuery      string `yaml:"offshore_query"`

	DuplicateRadiusM float64 `yaml:"duplicate_radius_m"`
	HospitalRadiusM  float64 `yaml:"hospital_radius_m"`
	OffshoreRadiusM  float64 `yaml:"offshore_radius_m"`
	EarthRadiusM     float64 `yaml:"earth_radius_m"`
	IndexBackend     string  `yaml:"index_backend"`
	Workers          int     `yaml:"workers"`

	Regions []RegionBand `yaml:"regions"`

	RedisCache     bool   `yaml:"redis_cache"`
	MetricsAddr    string `yaml:"metrics_addr"`
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// DefaultRegions 三个经度分区：美洲与大西洋、欧非、其余地区
func DefaultRegions() []RegionBand {
	return []RegionBand{
		{Name: "Region 1", West: -180, East: -20},
		{Name: "Region 2", West: -20, East: 60},
		{Name: "Region 3", West: 60, East: 180, IncludeEast: true},
	}
}

// Default 默认配置
func Default() Config {
	raw := filepath.Join("data", "raw")
	return Config{
		RawDir:             raw,
		OpenAIPDir:         filepath.Join(raw, "openaip"),
		OSMDir:             filepath.Join(raw, "osm"),
		IntermediateDir:    filepath.Join("data", "intermediate"),
		ExportDir:          filepath.Join("data", "export"),
		Bucket:             "29f98e10-a489-4c82-ae5e-489dbcd4912f",
		BucketSuffix:       "_apt.json",
		BucketEndpoint:     "https://storage.googleapis.com",
		BucketWorkers:      4,
		OverpassURL:        "https://overpass-api.de/api/interpreter",
		LatDivisions:       18,
		LonDivisions:       36,
		OverpassRatePerMin: 120,
		OverpassWorkers:    2,
		OverpassTimeoutSec: 180,
		OverpassRetries:    3,
		HeliQuery:          HeliQuery,
		HospitalQuery:      HospitalQuery,
		OffshoreQuery:      OffshoreQuery,
		DuplicateRadiusM:   50,
		HospitalRadiusM:    500,
		OffshoreRadiusM:    250,
		EarthRadiusM:       6371000,
		IndexBackend:       "kdtree",
		Workers:            1,
		Regions:            DefaultRegions(),
	}
}

// 文档注释：从环境变量构建配置
// 背景：与 .env 配合使用；未设置的项保留默认值；HELIPADS_CONFIG 指向的 YAML 作业文件最后覆盖。
// 约束：数值解析失败返回错误，不静默回退；返回前执行 Validate。
func FromEnv() (Config, error) {
	c := Default()
	if v := os.Getenv("HELIPADS_DATA_DIR"); v != "" {
		c.RawDir = filepath.Join(v, "raw")
		c.OpenAIPDir = filepath.Join(c.RawDir, "openaip")
		c.OSMDir = filepath.Join(c.RawDir, "osm")
		c.IntermediateDir = filepath.Join(v, "intermediate")
		c.ExportDir = filepath.Join(v, "export")
	}
	envString("OPENAIP_BUCKET", &c.Bucket)
	envString("OPENAIP_BUCKET_SUFFIX", &c.BucketSuffix)
	envString("OPENAIP_BUCKET_ENDPOINT", &c.BucketEndpoint)
	envString("OVERPASS_URL", &c.OverpassURL)
	envString("INDEX_BACKEND", &c.IndexBackend)
	envString("METRICS_ADDR", &c.MetricsAddr)
	envString("PUSHGATEWAY_URL", &c.PushgatewayURL)
	c.RedisCache = strings.ToLower(os.Getenv("REDIS_ENABLE")) == "true"

	ints := []struct {
		key string
		dst *int
	}{
		{"OPENAIP_BUCKET_WORKERS", &c.BucketWorkers},
		{"OVERPASS_LAT_DIVISIONS", &c.LatDivisions},
		{"OVERPASS_LON_DIVISIONS", &c.LonDivisions},
		{"OVERPASS_RATE_LIMIT_PER_MIN", &c.OverpassRatePerMin},
		{"OVERPASS_WORKERS", &c.OverpassWorkers},
		{"OVERPASS_TIMEOUT_SEC", &c.OverpassTimeoutSec},
		{"OVERPASS_RETRIES", &c.OverpassRetries},
		{"MERGE_WORKERS", &c.Workers},
	}
	for _, it := range ints {
		if err := envInt(it.key, it.dst); err != nil {
			return c, err
		}
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"RADIUS_DUPLICATE_M", &c.DuplicateRadiusM},
		{"RADIUS_HOSPITAL_M", &c.HospitalRadiusM},
		{"RADIUS_OFFSHORE_M", &c.OffshoreRadiusM},
		{"EARTH_RADIUS_M", &c.EarthRadiusM},
	}
	for _, it := range floats {
		if err := envFloat(it.key, it.dst); err != nil {
			return c, err
		}
	}
	if p := os.Getenv("HELIPADS_CONFIG"); p != "" {
		if err := LoadFile(p, &c); err != nil {
			return c, err
		}
	}
	return c, c.Validate()
}

// 文档注释：YAML 作业文件覆盖
// 背景：同一二进制可按作业文件执行不同阈值/分区的合并；文件中出现的键覆盖 c 中的值，regions 整体替换。
func LoadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = f
	return nil
}

// 文档注释：校验配置
// 约束：半径为非负有限值；地球半径为正；瓦片划分为正；分区按西边界排序后首尾覆盖 [-180, 180] 且相邻分区既不重叠也不留空隙。
func (c Config) Validate() error {
	radii := map[string]float64{
		"duplicate_radius_m": c.DuplicateRadiusM,
		"hospital_radius_m":  c.HospitalRadiusM,
		"offshore_radius_m":  c.OffshoreRadiusM,
	}
	for k, v := range radii {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalid, k, v)
		}
	}
	if !(c.EarthRadiusM > 0) || math.IsInf(c.EarthRadiusM, 0) {
		return fmt.Errorf("%w: earth_radius_m=%v", ErrInvalid, c.EarthRadiusM)
	}
	if c.LatDivisions <= 0 || c.LonDivisions <= 0 {
		return fmt.Errorf("%w: tile divisions %dx%d", ErrInvalid, c.LatDivisions, c.LonDivisions)
	}
	return validateRegions(c.Regions)
}

func validateRegions(in []RegionBand) error {
	if len(in) == 0 {
		return fmt.Errorf("%w: no region bands", ErrInvalid)
	}
	bands := append([]RegionBand(nil), in...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].West < bands[j].West })
	if bands[0].West != -180 {
		return fmt.Errorf("%w: regions start at %v, want -180", ErrInvalid, bands[0].West)
	}
	last := bands[len(bands)-1]
	if last.East != 180 || !last.IncludeEast {
		return fmt.Errorf("%w: regions must end at 180 inclusive", ErrInvalid)
	}
	for i, b := range bands {
		if b.Name == "" || !(b.West < b.East) {
			return fmt.Errorf("%w: region %q [%v, %v]", ErrInvalid, b.Name, b.West, b.East)
		}
		if i == len(bands)-1 {
			continue
		}
		next := bands[i+1]
		if b.East != next.West {
			return fmt.Errorf("%w: regions %q and %q overlap or leave a gap", ErrInvalid, b.Name, next.Name)
		}
		if b.IncludeEast {
			return fmt.Errorf("%w: regions %q and %q overlap at %v", ErrInvalid, b.Name, next.Name, b.East)
		}
	}
	return nil
}
