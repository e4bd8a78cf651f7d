// Package fieldmap 根据列名推断语义字段所在的列。
//
// 不同版本微信数据库的列名差异很大（StrContent / message_content / content ...），
// 所有对 RawRow 的按字段访问都必须经过 Mapping，不允许直接按列名下标取值。
package fieldmap

import (
	"strings"
)

// Rule 是一个语义类别及其按优先级排列的列名片段
type Rule struct {
	Category string
	Patterns []string
}

// Rules 有序规则表
type Rules []Rule

// Mapping 类别 -> 列下标，未匹配的类别不存在于 Mapping 中
type Mapping map[string]int

// Map 对每个类别依次尝试 pattern，第一个（忽略大小写）包含该 pattern 的列胜出
func Map(columns []string, rules Rules) Mapping {
	lower := make([]string, len(columns))
	for i, c := range columns {
		lower[i] = strings.ToLower(c)
	}

	m := make(Mapping, len(rules))
	for _, rule := range rules {
		if _, ok := m[rule.Category]; ok {
			continue
		}
	patterns:
		for _, p := range rule.Patterns {
			p = strings.ToLower(p)
			if p == "" {
				continue
			}
			for i, c := range lower {
				if strings.Contains(c, p) {
					m[rule.Category] = i
					break patterns
				}
			}
		}
	}
	return m
}

// Index 返回类别对应的列下标
func (m Mapping) Index(category string) (int, bool) {
	i, ok := m[category]
	return i, ok
}

// Value 从 row 中取出类别对应的值，列缺失或越界时返回 nil, false
func (m Mapping) Value(row []any, category string) (any, bool) {
	i, ok := m[category]
	if !ok || i < 0 || i >= len(row) {
		return nil, false
	}
	return row[i], true
}

// Column 返回类别所映射的列名
func (m Mapping) Column(columns []string, category string) (string, bool) {
	i, ok := m[category]
	if !ok || i < 0 || i >= len(columns) {
		return "", false
	}
	return columns[i], true
}
