package export

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"market-anomaly-alerts/internal/anomaly"
)

// WriteAlertTable prints the alert feed as an aligned table.
func WriteAlertTable(w io.Writer, alerts []anomaly.Alert) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(w, "no alerts detected")
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tVolume\tRule")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			alert.Timestamp.UTC().Format(time.RFC3339),
			alert.Price.StringFixed(2),
			alert.Volume.StringFixed(0),
			alert.Rule,
		)
	}

	return writer.Flush()
}
