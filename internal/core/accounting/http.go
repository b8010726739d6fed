package accounting

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

func retryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}

	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(value + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(value); err == nil {
		return time.Until(parsed)
	}
	return 0
}

// faultMessage extracts the service's error text from a Fault body.
func faultMessage(body []byte) string {
	var payload struct {
		Fault struct {
			Error []struct {
				Message string `json:"Message"`
				Detail  string `json:"Detail"`
				Code    string `json:"code"`
			} `json:"Error"`
		} `json:"Fault"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Fault.Error) == 0 {
		return ""
	}

	first := payload.Fault.Error[0]
	message := strings.TrimSpace(first.Message)
	detail := strings.TrimSpace(first.Detail)
	switch {
	case message == "":
		return detail
	case detail == "" || detail == message:
		return message
	default:
		return message + ": " + detail
	}
}

type entityDocument struct {
	ID        string `json:"Id"`
	SyncToken string `json:"SyncToken"`
}

// decodeEntity reads the id and sync token from either a direct entity
// response ({"Bill":{...}}) or a query response
// ({"QueryResponse":{"Bill":[{...}]}}).
func decodeEntity(kind core.EntityKind, id string, body []byte) (*core.Entity, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", kind, id, err)
	}

	var doc entityDocument
	if raw, ok := envelope[string(kind)]; ok {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
	} else if raw, ok := envelope["QueryResponse"]; ok {
		var query map[string][]entityDocument
		if err := json.Unmarshal(raw, &query); err != nil {
			return nil, fmt.Errorf("decode %s %s query response: %w", kind, id, err)
		}
		if docs := query[string(kind)]; len(docs) > 0 {
			doc = docs[0]
		}
	}

	if strings.TrimSpace(doc.SyncToken) == "" {
		return nil, fmt.Errorf("%s %s response has no SyncToken", kind, id)
	}
	if doc.ID == "" {
		doc.ID = id
	}

	return &core.Entity{Kind: kind, ID: doc.ID, SyncToken: doc.SyncToken, Raw: body}, nil
}

func logPayload(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	encoded, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return encoded
}
