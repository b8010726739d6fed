package output

import (
	"encoding/json"

	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
)

// JSONFormatter renders reports as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatDelete renders a deletion report as JSON.
func (f *JSONFormatter) FormatDelete(report *sweep.Report) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatCreate renders a creation report as JSON.
func (f *JSONFormatter) FormatCreate(report *sweep.CreateReport) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// FormatValidation renders a validation report as JSON.
func (f *JSONFormatter) FormatValidation(report *validate.Report) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
