package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"peerctl/internal/model"
)

// WriteCSV writes events to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.Event) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"timestamp",
		"kind",
		"peer",
		"address",
		"outcome",
		"duration_ms",
		"detail",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, ev := range items {
		record := []string{
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			ev.Kind,
			ev.Peer,
			ev.Address,
			ev.Outcome,
			strconv.FormatFloat(float64(ev.Duration)/float64(time.Millisecond), 'f', 3, 64),
			ev.Detail,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
