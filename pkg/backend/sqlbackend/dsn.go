package sqlbackend

import (
	"fmt"
	"net/url"
	"strings"
)

// withCredentials folds user and password into dsn in the form the
// transport expects, unless the DSN already carries them.
func withCredentials(transport, dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}

	switch transport {
	case TransportODBC:
		return odbcCredentials(dsn, user, password), nil
	case TransportVertica:
		return urlCredentials(dsn, user, password)
	case TransportPgx:
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			return urlCredentials(dsn, user, password)
		}
		return keywordCredentials(dsn, user, password), nil
	default:
		return dsn, nil
	}
}

func odbcCredentials(dsn, user, password string) string {
	lower := strings.ToLower(dsn)
	var b strings.Builder
	b.WriteString(dsn)
	if dsn != "" && !strings.HasSuffix(dsn, ";") {
		b.WriteByte(';')
	}
	if user != "" && !strings.Contains(lower, "uid=") {
		fmt.Fprintf(&b, "UID=%s;", odbcValue(user))
	}
	if password != "" && !strings.Contains(lower, "pwd=") {
		fmt.Fprintf(&b, "PWD=%s;", odbcValue(password))
	}
	return b.String()
}

// odbcValue braces values containing connection string delimiters.
func odbcValue(v string) string {
	if strings.ContainsAny(v, ";{}= ") {
		return "{" + strings.ReplaceAll(v, "}", "}}") + "}"
	}
	return v
}

func urlCredentials(dsn, user, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid DSN: %w", err)
	}
	if u.User == nil {
		u.User = url.UserPassword(user, password)
	}
	return u.String(), nil
}

func keywordCredentials(dsn, user, password string) string {
	parts := []string{}
	if dsn != "" {
		parts = append(parts, dsn)
	}
	if user != "" && !strings.Contains(dsn, "user=") {
		parts = append(parts, "user="+keywordValue(user))
	}
	if password != "" && !strings.Contains(dsn, "password=") {
		parts = append(parts, "password="+keywordValue(password))
	}
	return strings.Join(parts, " ")
}

func keywordValue(v string) string {
	if v == "" || strings.ContainsAny(v, " '\\") {
		return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
	}
	return v
}
