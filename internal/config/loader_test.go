package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
CacheRoot = "./data"
CacheTTL = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90")); err != nil || d.DurationValue().Seconds() != 90 {
		t.Fatalf("纯数字应按秒解析: %v %s", err, d.DurationValue())
	}
	if err := d.UnmarshalText([]byte("1m30s")); err != nil || d.DurationValue().Seconds() != 90 {
		t.Fatalf("Go duration 应被解析: %v %s", err, d.DurationValue())
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("非法值应报错")
	}
}
