package resource

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

// defaultETagIgnore lists volatile fields excluded from every etag
// computation. Per-resource ignore lists extend this set.
var defaultETagIgnore = []string{
	models.FieldETag,
	models.FieldLatestVersion,
	models.FieldUpdated,
}

// ETag computes the concurrency token of a document: SHA-1 over the
// canonical serialization with the ignored fields removed. The canonical
// form sorts object keys, renders integral numbers without a decimal
// part, and encodes timestamps as RFC3339Nano UTC, so the digest is
// reproducible bit-for-bit across processes and languages.
func ETag(doc models.Doc, ignore []string) string {
	skip := make(map[string]struct{}, len(defaultETagIgnore)+len(ignore))
	for _, f := range defaultETagIgnore {
		skip[f] = struct{}{}
	}
	for _, f := range ignore {
		skip[f] = struct{}{}
	}

	var b strings.Builder
	writeCanonicalMap(&b, doc, skip)
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON exposes the canonical serialization for golden tests.
func CanonicalJSON(doc models.Doc, ignore []string) string {
	skip := make(map[string]struct{}, len(defaultETagIgnore)+len(ignore))
	for _, f := range defaultETagIgnore {
		skip[f] = struct{}{}
	}
	for _, f := range ignore {
		skip[f] = struct{}{}
	}
	var b strings.Builder
	writeCanonicalMap(&b, doc, skip)
	return b.String()
}

func writeCanonicalMap(b *strings.Builder, m map[string]interface{}, skip map[string]struct{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if skip != nil {
			if _, ignored := skip[k]; ignored {
				continue
			}
		}
		if m[k] == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(b, k)
		b.WriteByte(':')
		writeCanonicalValue(b, m[k])
	}
	b.WriteByte('}')
}

func writeCanonicalValue(b *strings.Builder, v interface{}) {
	switch typed := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if typed {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		writeCanonicalString(b, typed)
	case float64:
		writeCanonicalNumber(b, typed)
	case float32:
		writeCanonicalNumber(b, float64(typed))
	case int:
		b.WriteString(strconv.Itoa(typed))
	case int64:
		b.WriteString(strconv.FormatInt(typed, 10))
	case time.Time:
		writeCanonicalString(b, models.FormatTime(typed))
	case models.Doc:
		writeCanonicalMap(b, typed, nil)
	case map[string]interface{}:
		writeCanonicalMap(b, typed, nil)
	case []interface{}:
		b.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonicalValue(b, item)
		}
		b.WriteByte(']')
	default:
		// Last resort: rely on encoding/json for exotic values.
		raw, err := json.Marshal(typed)
		if err != nil {
			b.WriteString("null")
			return
		}
		b.Write(raw)
	}
}

func writeCanonicalNumber(b *strings.Builder, f float64) {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		b.WriteString(strconv.FormatInt(int64(f), 10))
		return
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeCanonicalString(b *strings.Builder, s string) {
	raw, _ := json.Marshal(s)
	b.Write(raw)
}

// NormalizeETag strips weak markers and quoting from a client-supplied
// etag so comparisons are exact-string over the stored value.
func NormalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}
