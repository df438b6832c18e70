package traffic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotJSON 正文不是合法 JSON
var ErrNotJSON = errors.New("body is not valid json")

// IsJSON 判断正文是否为 JSON
func IsJSON(body string) bool {
	return strings.TrimSpace(body) != "" && gjson.Valid(body)
}

// JSONField 读取 JSON 正文中指定路径的值
func JSONField(body, path string) (string, bool) {
	if !IsJSON(body) {
		return "", false
	}
	r := gjson.Get(body, path)
	return r.String(), r.Exists()
}

// SetJSONField 修改 JSON 正文中指定路径的值，空正文视为空对象
func SetJSONField(body, path string, value any) (string, error) {
	if strings.TrimSpace(body) != "" && !gjson.Valid(body) {
		return "", ErrNotJSON
	}
	out, err := sjson.Set(body, path, value)
	if err != nil {
		return "", fmt.Errorf("set %s: %w", path, err)
	}
	return out, nil
}

// DeleteJSONField 删除 JSON 正文中指定路径
func DeleteJSONField(body, path string) (string, error) {
	if !IsJSON(body) {
		return "", ErrNotJSON
	}
	out, err := sjson.Delete(body, path)
	if err != nil {
		return "", fmt.Errorf("delete %s: %w", path, err)
	}
	return out, nil
}

// PrettyJSON 格式化 JSON 正文，非 JSON 原样返回
func PrettyJSON(body string) string {
	if !IsJSON(body) {
		return body
	}
	return gjson.Get(body, "@pretty").String()
}

// SetJSONField 修改请求正文中的 JSON 字段
func (r *Request) SetJSONField(path string, value any) error {
	body, err := SetJSONField(r.Body, path, value)
	if err != nil {
		return err
	}
	r.Body = body
	return nil
}

// SetJSONField 修改响应正文中的 JSON 字段
func (r *Response) SetJSONField(path string, value any) error {
	body, err := SetJSONField(r.Body, path, value)
	if err != nil {
		return err
	}
	r.Body = body
	return nil
}
