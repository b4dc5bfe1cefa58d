package util

import (
	"fmt"
	"strings"
)

// EntryKey builds the storage key for one cached scope:
// <namespace>:<kind>:<scope>:v<schema>.
// The schema version lives in the key so that a schema bump orphans old
// entries instead of forcing readers to decode them.
func EntryKey(ns, kind, scope string, schema uint8) string {
	return fmt.Sprintf("%s:%s:%s:v%d", ns, kind, scope, schema)
}

// KindPrefix covers every entry of one resource kind in a namespace.
func KindPrefix(ns, kind string) string {
	return ns + ":" + kind + ":"
}

// ScopePrefix covers every entry of a kind whose scope key starts with
// scopePrefix. Scope keys are composite (e.g. "<orgID>_<year>"), so a bare
// org id prefix matches all of that org's scopes.
func ScopePrefix(ns, kind, scopePrefix string) string {
	return ns + ":" + kind + ":" + scopePrefix
}

// HasPrefix reports whether a storage key falls under prefix.
func HasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}
