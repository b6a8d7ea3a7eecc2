package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/tidwall/jsonc"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig describes how to reach one backend.
type ServerConfig struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Dir       string            `json:"cwd,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Disabled  bool              `json:"disabled,omitempty"`
}

// Kind returns the transport kind, inferring http from a URL.
func (c ServerConfig) Kind() string {
	if c.Transport != "" {
		return c.Transport
	}
	if c.URL != "" && c.Command == "" {
		return TransportHTTP
	}
	return TransportStdio
}

// Validate checks that the config names a way to reach the backend.
func (c ServerConfig) Validate() error {
	switch c.Kind() {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio transport needs a command")
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("http transport needs a url")
		}
	default:
		return fmt.Errorf("invalid transport %q, must be: stdio or http", c.Transport)
	}
	return nil
}

// Servers is the parsed content of mcp_config.json, keyed by service name.
type Servers map[string]ServerConfig

// Names returns the enabled server names, sorted.
func (s Servers) Names() []string {
	names := make([]string, 0, len(s))
	for name, cfg := range s {
		if !cfg.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

type serversFile struct {
	MCPServers Servers `json:"mcpServers"`
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} with the value of VAR. Unset variables become "".
func expandEnv(data []byte, lookup func(string) string) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(lookup(string(name)))
	})
}

// ParseServers parses mcp_config.json content. Comments and trailing commas
// are allowed; ${VAR} references are substituted from the environment first.
func ParseServers(data []byte) (Servers, error) {
	data = jsonc.ToJSON(expandEnv(data, os.Getenv))

	var f serversFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing mcp config: %w", err)
	}
	if f.MCPServers == nil {
		f.MCPServers = Servers{}
	}

	for name, cfg := range f.MCPServers {
		if cfg.Disabled {
			continue
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
	}
	return f.MCPServers, nil
}

// LoadServers reads mcp_config.json from path. A missing file yields no servers.
func LoadServers(path string) (Servers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Servers{}, nil
		}
		return nil, fmt.Errorf("reading mcp config: %w", err)
	}
	return ParseServers(data)
}

// mergeEnv appends extra to base as KEY=VALUE pairs in key order.
func mergeEnv(base []string, extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
