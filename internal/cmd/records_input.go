package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// recordsDocument is the wrapped form of a records file: {records: [...]}.
type recordsDocument struct {
	Records []core.DeletableRecord `json:"records" yaml:"records"`
}

// billsDocument is the wrapped form of a bills file: {bills: [...]}.
type billsDocument struct {
	Bills []json.RawMessage `json:"bills"`
}

func readInput(path string) ([]byte, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck
		reader = file
	}
	return io.ReadAll(reader)
}

func isJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{')
}

// readRecordsFile loads deletion records from a YAML or JSON file ("-" reads
// stdin). Both a bare list and a {records: [...]} document are accepted.
// Records are normalized but not validated.
func readRecordsFile(path string) ([]core.DeletableRecord, error) {
	data, err := readInput(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	records, err := parseRecords(data)
	if err != nil {
		return nil, fmt.Errorf("parse records file %s: %w", path, err)
	}
	return records, nil
}

func parseRecords(data []byte) ([]core.DeletableRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("no records found")
	}

	var records []core.DeletableRecord
	if isJSON(data) {
		if bytes.TrimSpace(data)[0] == '{' {
			var doc recordsDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, err
			}
			records = doc.Records
		} else if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	} else {
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
			var doc recordsDocument
			if err := node.Decode(&doc); err != nil {
				return nil, err
			}
			records = doc.Records
		} else if err := node.Decode(&records); err != nil {
			return nil, err
		}
	}

	for i := range records {
		records[i] = records[i].Normalized()
	}
	return records, nil
}

// readBillsFile loads raw Bill payloads. JSON payloads are kept byte for
// byte; YAML payloads are converted to JSON objects.
func readBillsFile(path string) ([]json.RawMessage, error) {
	data, err := readInput(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	bills, err := parseBills(data)
	if err != nil {
		return nil, fmt.Errorf("parse bills file %s: %w", path, err)
	}
	if len(bills) == 0 {
		return nil, fmt.Errorf("no bills found in %s", path)
	}
	return bills, nil
}

func parseBills(data []byte) ([]json.RawMessage, error) {
	if isJSON(data) {
		trimmed := bytes.TrimSpace(data)
		if trimmed[0] == '{' {
			var doc billsDocument
			if err := json.Unmarshal(trimmed, &doc); err != nil {
				return nil, err
			}
			if doc.Bills == nil {
				// A single Bill object.
				return []json.RawMessage{json.RawMessage(trimmed)}, nil
			}
			return doc.Bills, nil
		}
		var bills []json.RawMessage
		if err := json.Unmarshal(trimmed, &bills); err != nil {
			return nil, err
		}
		return bills, nil
	}

	var decoded any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	var items []any
	switch value := decoded.(type) {
	case []any:
		items = value
	case map[string]any:
		if list, ok := value["bills"].([]any); ok {
			items = list
		} else {
			items = []any{value}
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected a list of bill objects")
	}

	bills := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return nil, fmt.Errorf("bill %d is not an object", i+1)
		}
		encoded, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("bill %d: %w", i+1, err)
		}
		bills = append(bills, encoded)
	}
	return bills, nil
}

// resolveIDRecords builds id-list records from --bill-ids / --bill-payment-ids.
func resolveIDRecords(billIDs, paymentIDs []string) (core.EntityKind, []core.DeletableRecord, error) {
	switch {
	case len(billIDs) > 0 && len(paymentIDs) > 0:
		return "", nil, fmt.Errorf("--bill-ids and --bill-payment-ids are mutually exclusive; use --records for paired deletes")
	case len(billIDs) > 0:
		return core.EntityBill, core.RecordsFromIDs(core.EntityBill, billIDs), nil
	case len(paymentIDs) > 0:
		return core.EntityBillPayment, core.RecordsFromIDs(core.EntityBillPayment, paymentIDs), nil
	default:
		return "", nil, nil
	}
}
