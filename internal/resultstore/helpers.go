package resultstore

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

func itoa(n int) string { return strconv.Itoa(n) }

// decodeProcessedData parses a CallbackEvent's processed_data into a
// field-level map so individual arrays can be stripped or reassembled
// without disturbing the rest of the tree.
func decodeProcessedData(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	return m, nil
}

// extractArrays pulls out the batchable arrays present in processedData,
// skipping any field that is absent or not a JSON array.
func extractArrays(processedData map[string]json.RawMessage) map[string][]json.RawMessage {
	out := map[string][]json.RawMessage{}
	for _, field := range arrayFields {
		raw, ok := processedData[field]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			continue
		}
		out[field] = items
	}
	return out
}

// buildMasterPayload re-encodes event with processedData (arrays already
// stripped) as its processed_data field.
func buildMasterPayload(event enrichment.CallbackEvent, processedData map[string]json.RawMessage) (json.RawMessage, error) {
	strippedData, err := json.Marshal(processedData)
	if err != nil {
		return nil, err
	}
	event.ProcessedData = strippedData
	return json.Marshal(event)
}

func chunkCount(n, size int) int {
	if n == 0 {
		return 0
	}
	return (n + size - 1) / size
}

func chunkJSON(items []json.RawMessage, size int) [][]json.RawMessage {
	var out [][]json.RawMessage
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func sortByBatchIndex(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		ii, jj := 0, 0
		if rows[i].BatchInfo != nil {
			ii = rows[i].BatchInfo.BatchIndex
		}
		if rows[j].BatchInfo != nil {
			jj = rows[j].BatchInfo.BatchIndex
		}
		return ii < jj
	})
}

func concatChildItems(rows []Row) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, r := range rows {
		var items []json.RawMessage
		if err := json.Unmarshal(r.CallbackPayload, &items); err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}
