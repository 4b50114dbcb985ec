package changereq

import (
	"fmt"
	"sort"
	"strings"
)

// Human-readable names for registered tables, per UI language. Unknown
// tables fall back to the raw table name.
var tableDisplayNames = map[string]map[string]string{
	"en": {
		"coupons":                 "coupon",
		"remote_config_templates": "remote config",
		"client_versions":         "client version",
		"service_notices":         "service notice",
	},
	"ko": {
		"coupons":                 "쿠폰",
		"remote_config_templates": "원격 설정",
		"client_versions":         "클라이언트 버전",
		"service_notices":         "서비스 공지",
	},
}

var titleTemplates = map[string]struct {
	single string
	multi  string
	more   string
}{
	"en": {single: "%s (%d)", multi: "%s and %d more", more: "%d changes"},
	"ko": {single: "%s (%d건)", multi: "%s 외 %d건", more: "변경 %d건"},
}

// SummaryTitle builds a human-readable request title from per-table item
// counts, e.g. "coupon (2) and 1 more". Regenerated whenever a request grows
// past a single item.
func SummaryTitle(lang string, countsByTable map[string]int) string {
	names, ok := tableDisplayNames[lang]
	if !ok {
		lang = "en"
		names = tableDisplayNames["en"]
	}
	tmpl := titleTemplates[lang]

	tables := make([]string, 0, len(countsByTable))
	total := 0
	for table, n := range countsByTable {
		tables = append(tables, table)
		total += n
	}
	if total == 0 {
		return ""
	}
	sort.Slice(tables, func(i, j int) bool {
		if countsByTable[tables[i]] != countsByTable[tables[j]] {
			return countsByTable[tables[i]] > countsByTable[tables[j]]
		}
		return tables[i] < tables[j]
	})

	first := tables[0]
	display, ok := names[first]
	if !ok {
		display = strings.ReplaceAll(first, "_", " ")
	}

	if len(tables) == 1 {
		return fmt.Sprintf(tmpl.single, display, countsByTable[first])
	}
	rest := total - countsByTable[first]
	return fmt.Sprintf(tmpl.multi,
		fmt.Sprintf(tmpl.single, display, countsByTable[first]), rest)
}
