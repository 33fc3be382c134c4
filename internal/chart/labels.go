package chart

var builtinMetricLabels = map[string]string{
	"total_revenue":   "Receita Total",
	"order_count":     "Total de Pedidos",
	"avg_order_value": "Ticket Médio",
}

var builtinDimensionLabels = map[string]string{
	"channel_name":      "Canal",
	"region":            "Região",
	"product_name":      "Produto",
	"product_category":  "Categoria do Produto",
	"store_name":        "Loja",
	"order_day_of_week": "Dia da Semana",
	"order_hour":        "Hora do Pedido",
}

// LabelCatalog maps metric and dimension ids to display names. Either map may
// be nil.
type LabelCatalog struct {
	Metrics    map[string]string `json:"metrics"`
	Dimensions map[string]string `json:"dimensions"`
}

// MetricLabel resolves a metric name: built-in label, then catalog, then id.
func (c LabelCatalog) MetricLabel(id string) string {
	return resolveLabel(id, builtinMetricLabels, c.Metrics)
}

// DimensionLabel resolves a dimension name with the same precedence as MetricLabel.
func (c LabelCatalog) DimensionLabel(id string) string {
	return resolveLabel(id, builtinDimensionLabels, c.Dimensions)
}

func resolveLabel(id string, builtin, catalog map[string]string) string {
	if name := builtin[id]; name != "" {
		return name
	}
	if name := catalog[id]; name != "" {
		return name
	}
	return id
}
