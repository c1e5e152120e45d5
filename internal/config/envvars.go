// ABOUTME: Environment variable expansion in config string fields
// ABOUTME: Replaces ${VAR} and ${VAR:-default} patterns; unset vars without a default become empty

package config

import (
	"os"
	"regexp"
)

var envVarPattern = regexp.MustCompile(`\$\{(\w+)(?::-([^}]*))?\}`)

// ResolveEnvVars expands ${VAR} patterns in the string fields of s that
// commonly carry secrets or hosts.
func ResolveEnvVars(s *Settings) {
	s.BaseURL = expandEnv(s.BaseURL)
	s.APIKey = expandEnv(s.APIKey)
	s.Provider = expandEnv(s.Provider)
	s.Model = expandEnv(s.Model)
	s.Redis.Addr = expandEnv(s.Redis.Addr)
	s.Redis.Channel = expandEnv(s.Redis.Channel)
	for i, m := range s.Models {
		s.Models[i] = expandEnv(m)
	}
}

// expandEnv replaces ${VAR} with os.Getenv(VAR). ${VAR:-default} yields
// default when VAR is unset or empty.
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
