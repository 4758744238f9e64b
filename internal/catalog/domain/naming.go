package domain

import (
	"regexp"
	"strconv"
	"strings"
)

const MaxSchemaNameLength = 63

var (
	schemaNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)
	hostPattern       = regexp.MustCompile(`^[a-z0-9.-]+$`)
)

// ValidSchemaName reports whether name can be used verbatim as a namespace identifier.
func ValidSchemaName(name string) bool {
	return schemaNamePattern.MatchString(name)
}

// ValidHost checks the character set and label shape of a tenant host.
func ValidHost(host string) bool {
	if host == "" || len(host) > 253 || !hostPattern.MatchString(host) {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}

// DeriveSchemaName maps a host to its namespace name: lowercase, dots and
// dashes become underscores, at most 63 characters, and a t_ prefix when the
// host starts with a digit.
func DeriveSchemaName(host string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(host))
	name = strings.NewReplacer(".", "_", "-", "_").Replace(name)
	name = truncate(name, MaxSchemaNameLength)
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = truncate("t_"+name, MaxSchemaNameLength)
	}
	if !ValidSchemaName(name) {
		return "", ErrInvalidSchemaName
	}
	return name, nil
}

// SchemaNameWithSuffix returns base with _n appended, shortening base so the
// result stays within the identifier limit.
func SchemaNameWithSuffix(base string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	return truncate(base, MaxSchemaNameLength-len(suffix)) + suffix
}

// HostWithoutPort strips a :port suffix and lowercases a Host header value.
func HostWithoutPort(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
