package authproxy

import "net/http"

// safeReadMethods is the allowlist the read-only filter enforces. Only
// methods guaranteed not to mutate state pass; everything else, known or
// custom, is treated as a write for safety (P5).
var safeReadMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// IsReadOperation reports whether method is on the safe allowlist.
func IsReadOperation(method string) bool {
	return safeReadMethods[method]
}

// IsWriteOperation is the complement of IsReadOperation.
func IsWriteOperation(method string) bool {
	return !IsReadOperation(method)
}
