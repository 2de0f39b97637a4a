package control

import (
	"bytes"
	"encoding/csv"
	"io"
)

// parseCSVRows reads an uploaded exposure file into header-keyed rows. No
// ecosystem CSV library appears anywhere in the retrieved corpus, so this
// stays on encoding/csv rather than adopting a third-party dependency with
// no grounding.
func parseCSVRows(data []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
