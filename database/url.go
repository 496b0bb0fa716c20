package database

import (
	"fmt"
	"net/url"
	"strings"
)

// ConstructDatabaseURL combines a server URL with a database name.
// An empty databaseName returns baseURL unchanged. Otherwise the path is
// replaced with the database name and sslmode=disable is added unless the
// URL already sets sslmode.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" {
		// Not a URL we understand; fall back to plain concatenation
		return fmt.Sprintf("%s/%s?sslmode=disable", strings.TrimRight(baseURL, "/"), databaseName)
	}

	u.Path = "/" + databaseName
	u.RawPath = ""

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()

	return u.String()
}
