package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"time"

	"market-anomaly-alerts/internal/anomaly"
)

// TimestampLayout is used for every textual instant in exports.
const TimestampLayout = time.RFC3339Nano

var alertHeader = []string{"timestamp", "price", "volume", "rule"}

// WriteAlertsCSV writes the alert feed with a header row, creating parent
// directories as needed.
func WriteAlertsCSV(path string, alerts []anomaly.Alert) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := EncodeAlertsCSV(file, alerts); err != nil {
		return err
	}
	return file.Close()
}

// EncodeAlertsCSV writes the alert feed to w.
func EncodeAlertsCSV(w io.Writer, alerts []anomaly.Alert) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(alertHeader); err != nil {
		return err
	}

	for _, alert := range alerts {
		record := []string{
			alert.Timestamp.UTC().Format(TimestampLayout),
			alert.Price.String(),
			alert.Volume.String(),
			alert.Rule.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
