// Package refdata holds the fixed lookup tables the derivation stage depends
// on: the Spanish automotive brand list, the lead-origin → traffic-source
// mapping, and the set of BDC call-center users.
//
// The tables are embedded JSON rather than inline Go literals so they can be
// reviewed and versioned like data, not logic. They change when the business
// onboards a new portal or agent, never at runtime.
package refdata

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed brands.json
var brandsJSON []byte

//go:embed fuentes.json
var fuentesJSON []byte

//go:embed bdc_users.json
var bdcUsersJSON []byte

var (
	brands   map[string]struct{}
	fuentes  map[string]string
	bdcUsers map[string]struct{}
)

func init() {
	var list []string
	mustUnmarshal(brandsJSON, &list, "brands.json")
	brands = make(map[string]struct{}, len(list))
	for _, b := range list {
		brands[strings.ToLower(b)] = struct{}{}
	}

	mustUnmarshal(fuentesJSON, &fuentes, "fuentes.json")

	list = nil
	mustUnmarshal(bdcUsersJSON, &list, "bdc_users.json")
	bdcUsers = make(map[string]struct{}, len(list))
	for _, u := range list {
		bdcUsers[strings.ToLower(u)] = struct{}{}
	}
}

// mustUnmarshal panics on malformed embedded data. The files ship inside the
// binary, so a failure here is a build defect, not a runtime condition.
func mustUnmarshal(raw []byte, dst any, name string) {
	if err := json.Unmarshal(raw, dst); err != nil {
		panic(fmt.Sprintf("refdata: parse %s: %v", name, err))
	}
}

// IsBrand reports whether name matches a known automotive brand.
// Matching is case-insensitive; leading/trailing space is ignored.
func IsBrand(name string) bool {
	_, ok := brands[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// SourceFor maps a raw lead-origin value to its traffic-source bucket
// (e.g. "Coches.net" → "portal"). The second return is false for origins
// not present in the mapping.
//
// Lookup is exact-match on the origin string as the CRM exports it.
func SourceFor(origin string) (string, bool) {
	s, ok := fuentes[origin]
	return s, ok
}

// IsBDCUser reports whether the creating-user value belongs to the internal
// call-center team. Matching is case-insensitive and trimmed.
func IsBDCUser(user string) bool {
	_, ok := bdcUsers[strings.ToLower(strings.TrimSpace(user))]
	return ok
}
