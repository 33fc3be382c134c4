package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/angelmondragon/analytics-dashboard/internal/query"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// NullCategory stands in for a missing dimension value.
	NullCategory = "—"

	maxLabelRunes = 20
	ellipsis      = "…"
	headroom      = 1.1
)

// Specification is a renderable bar chart.
type Specification struct {
	Categories     []string   `json:"categories"`
	CategoryLabels []string   `json:"category_labels"`
	Series         []Series   `json:"series"`
	AxisLabels     AxisLabels `json:"axis_labels"`
}

type Series struct {
	Name     string    `json:"name"`
	MetricID string    `json:"metric_id"`
	Values   []float64 `json:"values"`
}

// AxisLabels carries the x axis title and the suggested y axis upper bound,
// which is nil when no value is positive.
type AxisLabels struct {
	X         string   `json:"x"`
	YScaleMax *float64 `json:"y_scale_max,omitempty"`
}

// Transform builds a chart from query rows. The first dimension supplies the
// categories and every metric becomes one series; rows keep their order.
// Inputs are never mutated.
func Transform(rows []query.Row, q *query.Description, labels LabelCatalog) (*Specification, error) {
	if q == nil {
		return nil, pkgerrors.New(pkgerrors.CodeTransform, "chart transform requires a query description")
	}

	spec := &Specification{
		Categories:     []string{},
		CategoryLabels: []string{},
		Series:         []Series{},
	}
	if len(q.Dimensions) == 0 || len(q.Metrics) == 0 {
		return spec, nil
	}

	primary := q.Dimensions[0]
	spec.AxisLabels.X = labels.DimensionLabel(primary)

	spec.Categories = make([]string, 0, len(rows))
	spec.CategoryLabels = make([]string, 0, len(rows))
	for _, row := range rows {
		category := CategoryText(row[primary])
		spec.Categories = append(spec.Categories, category)
		spec.CategoryLabels = append(spec.CategoryLabels, TruncateLabel(category))
	}

	maxVal := 0.0
	seen := false
	spec.Series = make([]Series, 0, len(q.Metrics))
	for _, metricID := range q.Metrics {
		values := make([]float64, 0, len(rows))
		for _, row := range rows {
			v := CellValue(row[metricID])
			if !seen || v > maxVal {
				maxVal = v
				seen = true
			}
			values = append(values, v)
		}
		spec.Series = append(spec.Series, Series{
			Name:     labels.MetricLabel(metricID),
			MetricID: metricID,
			Values:   values,
		})
	}

	spec.AxisLabels.YScaleMax = SuggestedMax(maxVal)
	return spec, nil
}

// SuggestedMax leaves 10% headroom above the tallest bar.
func SuggestedMax(maxVal float64) *float64 {
	if maxVal <= 0 {
		return nil
	}
	v := math.Ceil(maxVal * headroom)
	return &v
}

// CategoryText renders a dimension value as a category.
func CategoryText(v any) string {
	switch c := v.(type) {
	case nil:
		return NullCategory
	case string:
		return c
	case json.Number:
		if f, ok := parseNumeric(c.String()); ok {
			return formatNumber(f)
		}
		return c.String()
	case float64:
		return formatFloatCategory(c)
	case float32:
		return formatFloatCategory(float64(c))
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	case decimal.Decimal:
		return c.String()
	case fmt.Stringer:
		return c.String()
	default:
		return fmt.Sprint(c)
	}
}

func formatFloatCategory(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return formatNumber(f)
}

// TruncateLabel shortens labels longer than 20 characters to 20 plus an ellipsis.
func TruncateLabel(label string) string {
	runes := []rune(label)
	if len(runes) <= maxLabelRunes {
		return label
	}
	return string(runes[:maxLabelRunes]) + ellipsis
}
