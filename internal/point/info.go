package point

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Field 属性包中的单个键值；Raw 保留原始 JSON 值以便原样回写
type Field struct {
	Key string
	Raw json.RawMessage
}

// Info 有序属性包（info_json），键顺序决定导出描述中的行顺序
type Info []Field

// String 构造字符串字段
func String(key, v string) Field {
	b, _ := json.Marshal(v)
	return Field{Key: key, Raw: b}
}

// Number 构造数值字段，保留数据源的原始数值文本
func Number(key string, n json.Number) Field {
	if n == "" {
		return String(key, "")
	}
	return Field{Key: key, Raw: json.RawMessage(n)}
}

// Value 字段的展示文本：字符串去引号，null 视为空，其它类型保留原文
func (f Field) Value() string {
	raw := bytes.TrimSpace(f.Raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// 文档注释：解析 info_json 为有序字段
// 背景：标准库 map 解码会丢失键顺序，逐 token 读取顶层对象保持数据源写入时的顺序。
// 约束：仅接受顶层为对象；空串视为空属性包。
func ParseInfo(s string) (Info, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("info_json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("info_json: not an object")
	}
	var out Info
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("info_json: %w", err)
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("info_json: %w", err)
		}
		out = append(out, Field{Key: key, Raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("info_json: %w", err)
	}
	return out, nil
}

// Get 按键取展示文本，缺失时为空
func (in Info) Get(key string) string {
	for _, f := range in {
		if f.Key == key {
			return f.Value()
		}
	}
	return ""
}

// Has 是否包含键
func (in Info) Has(key string) bool {
	for _, f := range in {
		if f.Key == key {
			return true
		}
	}
	return false
}

// With 返回替换或追加字段后的新属性包，原属性包不变
func (in Info) With(f Field) Info {
	out := make(Info, 0, len(in)+1)
	replaced := false
	for _, x := range in {
		if x.Key == f.Key {
			out = append(out, f)
			replaced = true
			continue
		}
		out = append(out, x)
	}
	if !replaced {
		out = append(out, f)
	}
	return out
}

// Encode 序列化为紧凑 JSON 对象，键顺序不变
func (in Info) Encode() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range in {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(f.Key)
		b.Write(k)
		b.WriteByte(':')
		raw := bytes.TrimSpace(f.Raw)
		if len(raw) == 0 {
			raw = []byte("null")
		}
		b.Write(raw)
	}
	b.WriteByte('}')
	return b.String()
}
