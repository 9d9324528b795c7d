package testdb

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DatabaseType labels what kind of test suite a database serves. The label
// is informational: it appears in the generated database name and selects
// the seeding profile.
type DatabaseType string

const (
	TypeUnit        DatabaseType = "unit"
	TypeIntegration DatabaseType = "integration"
	TypeE2E         DatabaseType = "e2e"
)

// maxIdentifierLength is PostgreSQL's identifier limit (NAMEDATALEN - 1).
// Names past this length are silently truncated by the server, which would
// break the uniqueness of the generated suffix.
const maxIdentifierLength = 63

// nonAlnumRun matches runs of characters that are not legal in the suite
// portion of a generated database name.
var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeSuiteName lowercases the suite name and replaces every run of
// non-alphanumeric characters with a single underscore.
func sanitizeSuiteName(name string) string {
	s := nonAlnumRun.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "suite"
	}
	return s
}

// GenerateDatabaseName derives a collision-resistant database name of the
// shape test_{type}_{sanitizedSuite}_{unixMilli}_{random}. The timestamp
// plus random suffix keeps names unique across concurrently running test
// processes, where a sequential counter would collide.
func GenerateDatabaseName(suiteName string, dbType DatabaseType) string {
	prefix := fmt.Sprintf("test_%s_", strings.ToLower(string(dbType)))
	suffix := fmt.Sprintf("_%d_%s", time.Now().UnixMilli(), randomSuffix())
	suite := sanitizeSuiteName(suiteName)

	// The server truncates identifiers past 63 bytes; trim the suite portion
	// so the unique suffix always survives intact.
	if max := maxIdentifierLength - len(prefix) - len(suffix); len(suite) > max {
		suite = strings.Trim(suite[:max], "_")
	}

	return prefix + suite + suffix
}

// randomSuffix returns 8 characters of a UUID with the hyphens removed.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NameTimestamp recovers the creation time embedded in a generated database
// name. It reports false for names this package did not generate, which lets
// orphan sweeps skip databases owned by other tooling.
func NameTimestamp(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, "test_") {
		return time.Time{}, false
	}

	// The shape is test_{type}_{suite}_{unixMilli}_{random}; the suite may
	// itself contain underscores, so the stamp is addressed from the end.
	parts := strings.Split(name, "_")
	if len(parts) < 5 {
		return time.Time{}, false
	}

	ms, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// ExtractBaseURL strips the database path, query string, and fragment from
// a connection URL, leaving scheme, credentials, host, and port. The result
// is captured once at manager construction and reused to compose the URL of
// every generated database.
func ExtractBaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: missing scheme or host", ErrInvalidConnectionString)
	}

	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// DatabaseURL joins a base URL (scheme + credentials + host) with a
// database name.
func DatabaseURL(baseURL, dbName string) string {
	return baseURL + "/" + dbName
}

// MaskDSN masks the password in a connection URL for safe logging.
func MaskDSN(dsn string) string {
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return "invalid-url"
	}
	if _, hasPassword := parsedURL.User.Password(); !hasPassword {
		return dsn
	}
	return parsedURL.Redacted()
}
