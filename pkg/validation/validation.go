// Package validation 收集实体字段级别的校验错误
package validation

import (
	"regexp"
	"sort"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Errors key 为字段名，value 为错误描述
type Errors map[string]string

// Add 同一字段只保留第一条错误
func (e Errors) Add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

// Required 空白字符串视为缺失
func (e Errors) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, "This field is required.")
	}
}

func (e Errors) Slug(field, value string) {
	if value == "" {
		e.Add(field, "This field is required.")
		return
	}
	if len(value) > 255 || !slugPattern.MatchString(value) {
		e.Add(field, "Enter a valid slug consisting of lowercase letters, numbers or hyphens.")
	}
}

// Err 没有错误时返回 nil
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}
