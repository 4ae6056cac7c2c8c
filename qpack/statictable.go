package qpack

// The QPACK static table (RFC 9204 Appendix A), grounded on hc/qpacktable.go's
// qpackTableCommon.Lookup/GetStatic (the lookup shape: search by exact
// name+value first, fall back to name-only) and hc/table.go's lookupStatic.
// Content mirrors the vendored golang.org/x/net/internal/http3 qpack static
// table seen in other_examples, restated here as this package's own type.

type staticEntry struct {
	name  string
	value string
}

var staticTable = [...]staticEntry{
	{":authority", ""},
	{":path", "/"},
	{"age", "0"},
	{"content-disposition", ""},
	{"content-length", "0"},
	{"cookie", ""},
	{"date", ""},
	{"etag", ""},
	{"if-modified-since", ""},
	{"if-none-match", ""},
	{"last-modified", ""},
	{"link", ""},
	{"location", ""},
	{"referer", ""},
	{"set-cookie", ""},
	{":method", "CONNECT"},
	{":method", "DELETE"},
	{":method", "GET"},
	{":method", "HEAD"},
	{":method", "OPTIONS"},
	{":method", "POST"},
	{":method", "PUT"},
	{":scheme", "http"},
	{":scheme", "https"},
	{":status", "103"},
	{":status", "200"},
	{":status", "304"},
	{":status", "404"},
	{":status", "503"},
	{"accept", "*/*"},
	{"accept", "application/dns-message"},
	{"accept-encoding", "gzip, deflate, br"},
	{"accept-ranges", "bytes"},
	{"access-control-allow-headers", "cache-control"},
	{"access-control-allow-headers", "content-type"},
	{"access-control-allow-origin", "*"},
	{"cache-control", "max-age=0"},
	{"cache-control", "max-age=2592000"},
	{"cache-control", "max-age=604800"},
	{"cache-control", "no-cache"},
	{"cache-control", "no-store"},
	{"cache-control", "public, max-age=31536000"},
	{"content-encoding", "br"},
	{"content-encoding", "gzip"},
	{"content-type", "application/dns-message"},
	{"content-type", "application/javascript"},
	{"content-type", "application/json"},
	{"content-type", "application/x-www-form-urlencoded"},
	{"content-type", "image/gif"},
	{"content-type", "image/jpeg"},
	{"content-type", "image/png"},
	{"content-type", "text/css"},
	{"content-type", "text/html; charset=utf-8"},
	{"content-type", "text/plain"},
	{"content-type", "text/plain;charset=utf-8"},
	{"range", "bytes=0-"},
	{"strict-transport-security", "max-age=31536000"},
	{"strict-transport-security", "max-age=31536000; includesubdomains"},
	{"strict-transport-security", "max-age=31536000; includesubdomains; preload"},
	{"vary", "accept-encoding"},
	{"vary", "origin"},
	{"x-content-type-options", "nosniff"},
	{"x-xss-protection", "1; mode=block"},
	{":status", "100"},
	{":status", "204"},
	{":status", "206"},
	{":status", "302"},
	{":status", "400"},
	{":status", "403"},
	{":status", "421"},
	{":status", "425"},
	{":status", "500"},
	{"accept-language", ""},
	{"access-control-allow-credentials", "FALSE"},
	{"access-control-allow-credentials", "TRUE"},
	{"access-control-allow-headers", "*"},
	{"access-control-allow-methods", "get"},
	{"access-control-allow-methods", "get, post, options"},
	{"access-control-allow-methods", "options"},
	{"access-control-expose-headers", "content-length"},
	{"access-control-request-headers", "content-type"},
	{"access-control-request-method", "get"},
	{"access-control-request-method", "post"},
	{"alt-svc", "clear"},
	{"authorization", ""},
	{"content-security-policy", "script-src 'none'; object-src 'none'; base-uri 'none'"},
	{"early-data", "1"},
	{"expect-ct", ""},
	{"forwarded", ""},
	{"if-range", ""},
	{"origin", ""},
	{"purpose", "prefetch"},
	{"server", ""},
	{"timing-allow-origin", "*"},
	{"upgrade-insecure-requests", "1"},
	{"user-agent", ""},
	{"x-forwarded-for", ""},
	{"x-frame-options", "deny"},
	{"x-frame-options", "sameorigin"},
}

const staticTableSize = len(staticTable)

type staticIndexEntry struct {
	nameHash    uint64
	nameValHash uint64
	id          int
}

var (
	staticByName    map[uint64][]int // nameHash -> indices, lowest id first
	staticByNameVal map[uint64]int   // nameValHash -> index (first match wins)
)

func init() {
	staticByName = make(map[uint64][]int, staticTableSize)
	staticByNameVal = make(map[uint64]int, staticTableSize)
	for i, e := range staticTable {
		nh := hashName([]byte(e.name))
		nvh := hashNameValue([]byte(e.name), []byte(e.value))
		staticByName[nh] = append(staticByName[nh], i)
		if _, exists := staticByNameVal[nvh]; !exists {
			staticByNameVal[nvh] = i
		}
	}
}

// lookupStaticNameValue returns the static table index of an exact
// name+value match, or -1. Ties are broken by lowest index per spec.md §4.3.
func lookupStaticNameValue(name, value []byte) int {
	nvh := hashNameValue(name, value)
	id, ok := staticByNameVal[nvh]
	if !ok {
		return -1
	}
	e := staticTable[id]
	if e.name != string(name) || e.value != string(value) {
		return -1 // hash collision
	}
	return id
}

// lookupStaticName returns the lowest static table index whose name matches,
// or -1.
func lookupStaticName(name []byte) int {
	nh := hashName(name)
	ids, ok := staticByName[nh]
	if !ok {
		return -1
	}
	for _, id := range ids {
		if staticTable[id].name == string(name) {
			return id
		}
	}
	return -1
}

func staticEntryAt(id int) (name, value string, ok bool) {
	if id < 0 || id >= staticTableSize {
		return "", "", false
	}
	e := staticTable[id]
	return e.name, e.value, true
}
