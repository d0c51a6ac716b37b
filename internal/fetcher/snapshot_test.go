package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.json")
	if err := os.WriteFile(path, []byte(sampleChart), 0o644); err != nil {
		t.Fatal(err)
	}

	chart, err := NewSnapshot(path, "ethereum", noopLogger()).FetchMarketChart(context.Background())
	if err != nil {
		t.Fatalf("读取快照不应报错: %v", err)
	}
	if len(chart.Prices) != 2 || len(chart.Volumes) != 2 {
		t.Fatalf("点数错误: prices=%d volumes=%d", len(chart.Prices), len(chart.Volumes))
	}
}

func TestSnapshotMissingFile(t *testing.T) {
	if _, err := NewSnapshot("", "ethereum", noopLogger()).FetchMarketChart(context.Background()); err == nil {
		t.Fatal("未配置路径应报错")
	}
	missing := filepath.Join(t.TempDir(), "missing.json")
	if _, err := NewSnapshot(missing, "ethereum", noopLogger()).FetchMarketChart(context.Background()); err == nil {
		t.Fatal("文件不存在应报错")
	}
}

func TestSnapshotInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.json")
	if err := os.WriteFile(path, []byte(`{"prices": "nope"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSnapshot(path, "ethereum", noopLogger()).FetchMarketChart(context.Background()); err == nil {
		t.Fatal("非法 JSON 应报错")
	}
}
