package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/webclip/capture"
)

// RegisterMCP registers the capture tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "capture_page",
		Description: "Open a URL and capture it as cleaned full-page HTML or a viewport screenshot.",
	}, s.mcpCapturePage)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_captures",
		Description: "List the stored captures, newest first.",
	}, s.mcpListCaptures)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_captures",
		Description: "Delete every stored capture.",
	}, s.mcpClearCaptures)
}

type capturePageReq struct {
	URL  string `json:"url" jsonschema:"the page address to capture"`
	Type string `json:"type,omitempty" jsonschema:"capture type: fullpage (default) or screenshot"`
}

type capturePageResp struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Size      int    `json:"size"`
	Timestamp string `json:"timestamp"`
}

func (s *Service) mcpCapturePage(ctx context.Context, req *mcp.CallToolRequest, in capturePageReq) (*mcp.CallToolResult, capturePageResp, error) {
	t := capture.TypeFullPage
	if in.Type != "" {
		t = capture.Type(in.Type)
		if !t.Valid() {
			return nil, capturePageResp{}, fmt.Errorf("unknown capture type %q", in.Type)
		}
	}

	rec, err := s.CaptureURL(ctx, in.URL, t)
	if err != nil {
		return nil, capturePageResp{}, err
	}
	return nil, summarize(*rec), nil
}

func summarize(rec capture.Record) capturePageResp {
	return capturePageResp{
		ID:        rec.ID,
		Type:      string(rec.Type),
		Title:     rec.Title,
		URL:       rec.URL,
		Size:      len(rec.Content),
		Timestamp: rec.Timestamp.Format(time.RFC3339),
	}
}

type listCapturesReq struct{}

type listCapturesResp struct {
	Captures []capturePageResp `json:"captures"`
}

func (s *Service) mcpListCaptures(ctx context.Context, req *mcp.CallToolRequest, in listCapturesReq) (*mcp.CallToolResult, listCapturesResp, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, listCapturesResp{}, err
	}
	resp := listCapturesResp{Captures: make([]capturePageResp, 0, len(list))}
	for _, rec := range list {
		resp.Captures = append(resp.Captures, summarize(rec))
	}
	return nil, resp, nil
}

type clearCapturesReq struct{}

type clearCapturesResp struct {
	Cleared bool `json:"cleared"`
}

func (s *Service) mcpClearCaptures(ctx context.Context, req *mcp.CallToolRequest, in clearCapturesReq) (*mcp.CallToolResult, clearCapturesResp, error) {
	if err := s.Clear(ctx); err != nil {
		return nil, clearCapturesResp{}, err
	}
	return nil, clearCapturesResp{Cleared: true}, nil
}
