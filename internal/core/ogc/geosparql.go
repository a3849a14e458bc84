package ogc

import (
	"net/url"
	"strings"
)

// Result transports a SPARQL endpoint can be asked for.
const (
	FormatSPARQLJSON = "application/sparql-results+json"
	FormatCSV        = "text/csv"
	FormatTSV        = "text/tab-separated-values"
)

// NormalizeFormat maps short names and media types to one of the supported
// transports, defaulting to SPARQL JSON.
func NormalizeFormat(f string) string {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "csv", FormatCSV:
		return FormatCSV
	case "tsv", FormatTSV:
		return FormatTSV
	default:
		return FormatSPARQLJSON
	}
}

func BuildQueryParams(query string) url.Values {
	return BuildQueryParamsFormat(query, FormatSPARQLJSON)
}

func BuildQueryParamsFormat(query, format string) url.Values {
	params := url.Values{}
	params.Set("query", query)
	params.Set("format", NormalizeFormat(format))
	return params
}
