package admin

import "time"

// parseTimeNullable 解析可为空的时间查询参数，空字符串返回 nil
func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
