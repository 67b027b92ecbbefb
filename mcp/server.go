// Package mcp exposes automation control as Model Context Protocol tools so
// agents can start, stop and inspect click sessions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/coordinator"
)

type toolHandler = func(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)

// MCPServer serves the automation tools over streamable HTTP.
type MCPServer struct {
	coord *coordinator.Coordinator

	mu       sync.RWMutex
	handlers map[string]toolHandler

	mcpServer            *server.MCPServer
	streamableHTTPServer *server.StreamableHTTPServer
}

// NewMCPServer registers every tool. endpoint is the path the HTTP handler
// is mounted on.
func NewMCPServer(coord *coordinator.Coordinator, version, endpoint string) *MCPServer {
	s := &MCPServer{
		coord:    coord,
		handlers: make(map[string]toolHandler),
	}

	s.mcpServer = server.NewMCPServer(
		"clickweave",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	s.streamableHTTPServer = server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath(endpoint),
		server.WithStateful(true),
	)
	return s
}

func (s *MCPServer) addTool(tool mcpgo.Tool, h toolHandler) {
	s.mu.Lock()
	s.handlers[tool.Name] = h
	s.mu.Unlock()
	s.mcpServer.AddTool(tool, h)
}

func (s *MCPServer) registerTools() {
	s.addTool(mcpgo.NewTool("list_profiles",
		mcpgo.WithDescription("List saved click profiles with their trigger settings"),
	), s.listProfiles)

	s.addTool(mcpgo.NewTool("start_profile",
		mcpgo.WithDescription("Start a click or macro session for a profile"),
		mcpgo.WithString("profile_id", mcpgo.Required(), mcpgo.Description("ID of the profile to run")),
	), s.startProfile)

	s.addTool(mcpgo.NewTool("stop_automation",
		mcpgo.WithDescription("Stop the running session. Succeeds when already idle"),
	), s.stop)

	s.addTool(mcpgo.NewTool("pause_automation",
		mcpgo.WithDescription("Pause the running session"),
	), s.control("pause", s.coord.Pause))

	s.addTool(mcpgo.NewTool("resume_automation",
		mcpgo.WithDescription("Resume a paused session"),
	), s.control("resume", s.coord.Resume))

	s.addTool(mcpgo.NewTool("emergency_stop",
		mcpgo.WithDescription("Immediately stop all automation, including from the paused state"),
	), s.control("emergency stop", s.coord.EmergencyStop))

	s.addTool(mcpgo.NewTool("automation_status",
		mcpgo.WithDescription("Report session state, counters, pixel watcher and schedules"),
	), s.status)

	s.addTool(mcpgo.NewTool("get_pixel_color",
		mcpgo.WithDescription("Read the color of one screen pixel"),
		mcpgo.WithNumber("x", mcpgo.Required(), mcpgo.Description("Screen x coordinate")),
		mcpgo.WithNumber("y", mcpgo.Required(), mcpgo.Description("Screen y coordinate")),
	), s.pixelColor)

	s.addTool(mcpgo.NewTool("recent_logs",
		mcpgo.WithDescription("List recent execution logs, newest first"),
		mcpgo.WithString("profile_id", mcpgo.Description("Only logs of this profile")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of entries, default 10")),
	), s.recentLogs)
}

// Tools lists the registered tool names.
func (s *MCPServer) Tools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool invokes a tool in-process.
func (s *MCPServer) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcpgo.CallToolResult, error) {
	s.mu.RLock()
	h, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = arguments
	return h(ctx, req)
}

func (s *MCPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger.Debug(r.Context(), "MCP request: Method=%s, Path=%s, RemoteAddr=%s", r.Method, r.URL.Path, r.RemoteAddr)
	s.streamableHTTPServer.ServeHTTP(w, r)
}

func jsonResult(v interface{}) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (s *MCPServer) listProfiles(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return jsonResult(s.coord.Profiles())
}

func (s *MCPServer) startProfile(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := request.RequireString("profile_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	logger.Info(ctx, "MCP start_profile: %s", id)
	if err := s.coord.StartProfile(ctx, id); err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to start profile: %v", err)), nil
	}
	return jsonResult(s.coord.Controller().Status())
}

func (s *MCPServer) control(name string, op func() bool) toolHandler {
	return func(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		logger.Info(ctx, "MCP %s requested", name)
		if !op() {
			return mcpgo.NewToolResultText(fmt.Sprintf("Nothing to %s: automation is %s", name, s.coord.Controller().State())), nil
		}
		return mcpgo.NewToolResultText(fmt.Sprintf("Success: %s, automation is now %s", name, s.coord.Controller().State())), nil
	}
}

func (s *MCPServer) stop(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	logger.Info(ctx, "MCP stop requested")
	s.coord.Stop()
	return mcpgo.NewToolResultText(fmt.Sprintf("Success: stop, automation is now %s", s.coord.Controller().State())), nil
}

func (s *MCPServer) status(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return jsonResult(s.coord.Status())
}

func (s *MCPServer) pixelColor(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	x, errX := request.RequireInt("x")
	y, errY := request.RequireInt("y")
	if errX != nil || errY != nil {
		return mcpgo.NewToolResultError("x and y are required"), nil
	}
	p := models.Point{X: x, Y: y}
	c, err := s.coord.PixelColor(ctx, p)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to read pixel %s: %v", p, err)), nil
	}
	return jsonResult(map[string]interface{}{
		"coordinates": p,
		"color":       c,
		"hex":         c.Hex(),
	})
}

func (s *MCPServer) recentLogs(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	logs, err := s.coord.Logs(request.GetString("profile_id", ""), limit)
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("Failed to read logs: %v", err)), nil
	}
	return jsonResult(logs)
}
