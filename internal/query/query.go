// Package query holds the declarative widget query model shared by the
// orchestrator, the chart transformer and the analytics client.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
)

// OrderTimeField is the time column the global date range filters on.
const OrderTimeField = "order_time"

// DateLayout is the wire format of date range bounds.
const DateLayout = "2006-01-02"

type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpIn      Operator = "in"
	OpNotIn   Operator = "notin"
	OpGt      Operator = "gt"
	OpLt      Operator = "lt"
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
	OpBetween Operator = "between"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpEq, OpNeq, OpIn, OpNotIn, OpGt, OpLt, OpGte, OpLte, OpBetween:
		return true
	}
	return false
}

// Filter narrows a query on one field. Value is a scalar, or a two element
// list for between and a list for in/notin.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// IDList is an ordered list of catalog identifiers. It also accepts a bare
// string or null on the wire.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		if strings.TrimSpace(single) == "" {
			*l = nil
			return nil
		}
		*l = IDList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return fmt.Errorf("expected identifier or list of identifiers: %w", err)
	}
	*l = IDList(many)
	return nil
}

// Description is what a widget asks the analytics service for.
type Description struct {
	Metrics    IDList   `json:"metrics"`
	Dimensions IDList   `json:"dimensions"`
	Filters    []Filter `json:"filters"`
}

// Executable reports whether the description names at least one metric and
// one dimension. Anything less is an incomplete widget, not an error.
func (d Description) Executable() bool {
	return len(d.Metrics) > 0 && len(d.Dimensions) > 0
}

// Validate rejects malformed filters at ingestion.
func (d Description) Validate() error {
	details := map[string]string{}
	for i, f := range d.Filters {
		key := fmt.Sprintf("filters[%d]", i)
		switch {
		case strings.TrimSpace(f.Field) == "":
			details[key] = "field is required"
		case !f.Operator.IsValid():
			details[key] = fmt.Sprintf("unsupported operator %q", f.Operator)
		case f.Operator == OpBetween && !isPair(f.Value):
			details[key] = "between expects a [start, end] pair"
		case (f.Operator == OpIn || f.Operator == OpNotIn) && !isList(f.Value):
			details[key] = "in/notin expect a list"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid query filters").WithDetails(details)
	}
	return nil
}

// Clone copies the slices so callers may append without touching the original.
// Nil slices stay nil.
func (d Description) Clone() Description {
	out := Description{}
	if d.Metrics != nil {
		out.Metrics = append(IDList{}, d.Metrics...)
	}
	if d.Dimensions != nil {
		out.Dimensions = append(IDList{}, d.Dimensions...)
	}
	if d.Filters != nil {
		out.Filters = append([]Filter{}, d.Filters...)
	}
	return out
}

// DateRange is the dashboard-wide date filter at a given version.
type DateRange struct {
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	Version uint64     `json:"version"`
}

// Complete reports whether both bounds are set.
func (r DateRange) Complete() bool {
	return r.Start != nil && r.End != nil
}

// Effective returns the description augmented with the date range filter. The
// input is never mutated.
func Effective(d Description, r DateRange) Description {
	out := d.Clone()
	if out.Filters == nil {
		out.Filters = []Filter{}
	}
	if r.Complete() {
		out.Filters = append(out.Filters, Filter{
			Field:    OrderTimeField,
			Operator: OpBetween,
			Value:    []string{r.Start.Format(DateLayout), r.End.Format(DateLayout)},
		})
	}
	return out
}

// Key serialises an effective description so equivalent queries compare equal.
// Nil and empty filter lists produce the same key.
func Key(d Description) string {
	if d.Filters == nil {
		d.Filters = []Filter{}
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%v", d)
	}
	return string(payload)
}

func isPair(v any) bool {
	switch vals := v.(type) {
	case []any:
		return len(vals) == 2
	case []string:
		return len(vals) == 2
	}
	return false
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}
