package symbol

import "strings"

// PolygonConverter maps share-class tickers to Polygon's dotted form (BRK-B -> BRK.B).
type PolygonConverter struct{}

func (PolygonConverter) ToExchange(internal string) string {
	s := strings.ToUpper(strings.TrimSpace(internal))
	return strings.ReplaceAll(s, "-", ".")
}

func (PolygonConverter) FromExchange(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, ".", "-")
}

func (PolygonConverter) Format() Format { return FormatPolygon }

// TiingoConverter uses lower-case, dash separated tickers.
type TiingoConverter struct{}

func (TiingoConverter) ToExchange(internal string) string {
	s := strings.ToLower(strings.TrimSpace(internal))
	return strings.ReplaceAll(s, ".", "-")
}

func (TiingoConverter) FromExchange(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func (TiingoConverter) Format() Format { return FormatTiingo }

var (
	Polygon Converter = PolygonConverter{}
	Tiingo  Converter = TiingoConverter{}
)
