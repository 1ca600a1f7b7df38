package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

var csvHeader = []string{"Occurred At", "Order", "Entity", "Entity ID", "Actor", "Change", "Field", "Old", "New", "Description"}

// WriteCSV menyusun baris timeline menjadi CSV.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.At.UTC().Format(time.RFC3339),
			optionalID(row.OrderID),
			row.Entity,
			strconv.FormatInt(row.EntityID, 10),
			optionalID(row.ActorID),
			row.Action,
			row.Field,
			row.OldValue,
			row.NewValue,
			row.Description,
		}); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optionalID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
