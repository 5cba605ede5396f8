package sheet

import "strings"

// ExportURL turns a human-facing spreadsheet URL into one that downloads the
// workbook as XLSX.
//
//	.../pubhtml          -> .../pub?output=xlsx
//	.../edit#gid=0       -> .../export?format=xlsx
//
// Any other URL is returned unchanged; a wrong URL surfaces as a fetch error.
func ExportURL(raw string) string {
	if strings.Contains(raw, "/pubhtml") {
		return strings.Replace(raw, "/pubhtml", "/pub?output=xlsx", 1)
	}
	if i := strings.Index(raw, "/edit"); i >= 0 {
		return raw[:i] + "/export?format=xlsx"
	}
	return raw
}
