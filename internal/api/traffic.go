package api

import "fmt"

// FormatTraffic 將字節數轉換為可讀的流量格式（1024 進位，兩位小數）
func FormatTraffic(bytes int64) string {
	value := float64(bytes)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.2f PB", value)
}
