package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/thruflo/ralph/internal/config"
)

// ProjectMCPFile is the project-level MCP manifest picked up from the
// working directory.
const ProjectMCPFile = ".mcp.json"

type mcpManifest struct {
	MCPServers map[string]config.MCPServer `json:"mcpServers"`
}

// MergeMCP combines MCP server declarations. Manifests at paths are read in
// order with later files winning, and servers from config.yaml override
// them all. Missing manifests are skipped.
func MergeMCP(servers map[string]config.MCPServer, paths ...string) (map[string]config.MCPServer, error) {
	merged := make(map[string]config.MCPServer)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read MCP manifest %s: %w", path, err)
		}
		var m mcpManifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse MCP manifest %s: %w", path, err)
		}
		for name, srv := range m.MCPServers {
			merged[name] = srv
		}
	}
	for name, srv := range servers {
		merged[name] = srv
	}
	return merged, nil
}

// WriteMCPConfig writes servers as an agent MCP config file.
func WriteMCPConfig(path string, servers map[string]config.MCPServer) error {
	if servers == nil {
		servers = map[string]config.MCPServer{}
	}
	data, err := json.MarshalIndent(mcpManifest{MCPServers: servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal MCP config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write MCP config: %w", err)
	}
	return nil
}
