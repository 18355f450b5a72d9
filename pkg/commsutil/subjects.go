package commsutil

import (
	"strings"
)

// Default COMMS subjects.
const (
	DefaultSubjectPrefix  = "ops"
	DefaultFailureSubject = "ops.failures"
	// QueueGroup load-balances requests across host replicas.
	QueueGroup = "opshost"
)

// OperationsWildcard is the subscription covering every operation under prefix.
func OperationsWildcard(prefix string) string {
	return strings.TrimSuffix(prefix, ".") + ".>"
}

// BuildOperationSubject maps a route path to a subject under prefix:
// "/Greeter/SayHi" with prefix "ops" becomes "ops.greeter.sayhi".
// Dots inside a segment become underscores.
func BuildOperationSubject(prefix, route string) string {
	parts := []string{strings.TrimSuffix(prefix, ".")}
	for _, seg := range strings.FieldsFunc(strings.ToLower(route), func(r rune) bool { return r == '/' || r == '\\' }) {
		parts = append(parts, strings.ReplaceAll(seg, ".", "_"))
	}
	return strings.Join(parts, ".")
}

// RouteFromSubject is the inverse of BuildOperationSubject. It reports false
// when subject is not under prefix or names no operation.
func RouteFromSubject(prefix, subject string) (string, bool) {
	p := strings.TrimSuffix(prefix, ".") + "."
	if !strings.HasPrefix(subject, p) {
		return "", false
	}
	tail := strings.TrimPrefix(subject, p)
	if tail == "" {
		return "", false
	}
	return "/" + strings.ReplaceAll(tail, ".", "/"), true
}

// BuildFailureSubject builds the subject of a failure event for one source
// ("request" or "task") under the base failure subject.
func BuildFailureSubject(base, source string) string {
	if source == "" {
		return base
	}
	return base + "." + source
}
