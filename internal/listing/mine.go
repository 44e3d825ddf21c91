package listing

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"

	"github.com/nao1215/leadscan/internal/model"
)

// maxSearchDepth bounds the recursive search for a record array inside
// decoded page state.
const maxSearchDepth = 5

// maxInlineArrays caps how many "[{" candidates are decoded per script.
const maxInlineArrays = 50

// Field keys are compared after normalizeKey, so "Document_Number",
// "documentNumber" and "document-number" are the same key.
var (
	docNumberKeys = []string{"documentnumber", "docnumber", "docno", "documentno", "docnum", "instrumentnumber", "instrumentno", "instrument"}
	recordedKeys  = []string{"recordeddate", "recordingdate", "daterecorded", "recorded", "filedate", "filingdate"}
	saleKeys      = []string{"saledate", "auctiondate", "foreclosuresaledate", "sale"}
	addressKeys   = []string{"propertyaddress", "address", "situsaddress", "siteaddress", "fulladdress", "streetaddress"}
	docTypeKeys   = []string{"doctype", "documenttype", "instrumenttype", "type"}
)

// stateGlobals are the variables SPAs commonly assign their initial state to.
var stateGlobals = regexp.MustCompile(`(?:window\.|self\.|var\s+|let\s+|const\s+)?(__INITIAL_STATE__|__PRELOADED_STATE__|__NUXT__|__NEXT_DATA__|__APP_STATE__|__APOLLO_STATE__)\s*=\s*`)

func normalizeKey(k string) string {
	var sb strings.Builder
	for _, r := range k {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
		}
	}
	return sb.String()
}

func hasKey(obj map[string]any, keys []string) bool {
	for k := range obj {
		nk := normalizeKey(k)
		for _, want := range keys {
			if nk == want {
				return true
			}
		}
	}
	return false
}

func lookup(obj map[string]any, keys []string) string {
	norm := make(map[string]any, len(obj))
	for k, v := range obj {
		norm[normalizeKey(k)] = v
	}
	for _, want := range keys {
		if v, ok := norm[want]; ok {
			if s := scalarString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// lookupDate is lookup for date fields. Numbers are treated as epoch
// milliseconds, which some portals use for dates.
func lookupDate(obj map[string]any, keys []string) string {
	for k, v := range obj {
		nk := normalizeKey(k)
		for _, want := range keys {
			if nk == want {
				if ms, ok := v.(float64); ok && ms > 1e11 {
					return time.UnixMilli(int64(ms)).UTC().Format(time.DateOnly)
				}
			}
		}
	}
	return lookup(obj, keys)
}

// scalarString renders a decoded JSON scalar.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// findRecordArray returns the first array of objects carrying a
// document-number-shaped key, searching at most maxSearchDepth levels deep.
// Object keys are visited in sorted order so the result is deterministic.
func findRecordArray(v any, depth int) []map[string]any {
	if depth > maxSearchDepth {
		return nil
	}
	switch t := v.(type) {
	case []any:
		if objs := recordObjects(t); objs != nil {
			return objs
		}
		for _, e := range t {
			if found := findRecordArray(e, depth+1); found != nil {
				return found
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found := findRecordArray(t[k], depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

// recordObjects returns arr as objects when its first element is an object
// with a document-number key.
func recordObjects(arr []any) []map[string]any {
	if len(arr) == 0 {
		return nil
	}
	first, ok := arr[0].(map[string]any)
	if !ok || !hasKey(first, docNumberKeys) {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, e := range arr {
		if obj, ok := e.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func recordsFromObjects(objs []map[string]any) []model.RawListingRecord {
	out := make([]model.RawListingRecord, 0, len(objs))
	for _, obj := range objs {
		rec, ok := newRecord(
			lookup(obj, docNumberKeys),
			lookupDate(obj, recordedKeys),
			lookupDate(obj, saleKeys),
			lookup(obj, addressKeys),
			lookup(obj, docTypeKeys),
		)
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

// decodeLenient decodes strict JSON and falls back to JSON5 for JavaScript
// object literals (unquoted keys, single quotes, trailing commas).
func decodeLenient(src string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(src), &v); err == nil {
		return v, nil
	}
	if err := json5.Unmarshal([]byte(src), &v); err != nil {
		return nil, fmt.Errorf("failed to decode embedded state: %w", err)
	}
	return v, nil
}

// balanced returns the JSON/JS value starting at s[start], which must be
// '{' or '['. Brackets inside string literals are ignored.
func balanced(s string, start int) (string, bool) {
	if start >= len(s) || (s[start] != '{' && s[start] != '[') {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// mineScripts searches inline scripts for embedded record state. It returns
// the records and a short description of where they were found.
func mineScripts(doc *goquery.Document) ([]model.RawListingRecord, string) {
	var (
		records []model.RawListingRecord
		source  string
	)
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		body := s.Text()
		if strings.TrimSpace(body) == "" {
			return true
		}

		// JSON data islands such as <script id="__NEXT_DATA__" type="application/json">.
		if typ, _ := s.Attr("type"); strings.Contains(typ, "json") {
			if v, err := decodeLenient(strings.TrimSpace(body)); err == nil {
				if objs := findRecordArray(v, 0); objs != nil {
					records = recordsFromObjects(objs)
					id, _ := s.Attr("id")
					source = "json-script:" + id
					return len(records) == 0
				}
			}
		}

		for _, m := range stateGlobals.FindAllStringSubmatchIndex(body, -1) {
			start := m[1]
			for start < len(body) && body[start] != '{' && body[start] != '[' {
				start++
			}
			raw, ok := balanced(body, start)
			if !ok {
				continue
			}
			v, err := decodeLenient(raw)
			if err != nil {
				continue
			}
			if objs := findRecordArray(v, 0); objs != nil {
				records = recordsFromObjects(objs)
				source = "global:" + body[m[2]:m[3]]
				if len(records) > 0 {
					return false
				}
			}
		}

		tried := 0
		for idx := strings.Index(body, "[{"); idx >= 0 && tried < maxInlineArrays; tried++ {
			raw, ok := balanced(body, idx)
			if ok {
				if v, err := decodeLenient(raw); err == nil {
					if objs := findRecordArray(v, 0); objs != nil {
						records = recordsFromObjects(objs)
						source = fmt.Sprintf("inline-array:script[%d]", i)
						if len(records) > 0 {
							return false
						}
					}
				}
			}
			next := strings.Index(body[idx+2:], "[{")
			if next < 0 {
				break
			}
			idx += 2 + next
		}
		return true
	})
	return records, source
}
