package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// dsnTarget describes the configured database without its credentials.
type dsnTarget struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

func describeDSN(dsn string) (dsnTarget, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnTarget{}, fmt.Errorf("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") {
		pathPart := trimmed[len("file:"):]
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnTarget{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}
	if pathPart, _, _ := strings.Cut(lowered, "?"); !strings.Contains(pathPart, "://") &&
		(strings.HasSuffix(pathPart, ".db") || strings.HasSuffix(pathPart, ".sqlite")) {
		path, _, _ := strings.Cut(trimmed, "?")
		return dsnTarget{Type: "sqlite", Path: path}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnTarget{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return dsnTarget{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		username := ""
		passwordSet := false
		if u.User != nil {
			username = strings.TrimSpace(u.User.Username())
			_, passwordSet = u.User.Password()
		}

		sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
		if sslMode == "" {
			sslMode = "disable"
		}

		return dsnTarget{
			Type:        "postgres",
			Host:        strings.TrimSpace(u.Hostname()),
			Port:        port,
			User:        username,
			Name:        strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode:     sslMode,
			PasswordSet: passwordSet,
		}, nil
	default:
		return dsnTarget{}, fmt.Errorf("unsupported dsn scheme")
	}
}
