package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDavinciServer(t *testing.T) {
	s := NewDavinciServer(DavinciServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.runner)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolRegistration(t *testing.T) {
	s := NewDavinciServer(DavinciServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 3)

	for _, name := range []string{"davinci.verify", "davinci.extract", "davinci.history"} {
		assert.NotNil(t, s.mcpServer.GetTool(name), "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		toolName    string
		description string
	}{
		{"davinci.verify", "Verify the properties declared in a component document"},
		{"davinci.extract", "Extract the state machine of one component"},
		{"davinci.history", "List past verification runs, or one property's outcomes"},
	}

	s := NewDavinciServer(DavinciServerDeps{})

	for _, tc := range tests {
		t.Run(tc.toolName, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}

func TestExtractToolRequiresComponent(t *testing.T) {
	tool := extractTool()
	assert.Contains(t, tool.InputSchema.Required, "component")
}
