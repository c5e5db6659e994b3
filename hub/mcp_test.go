package hub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/webclip/store"
)

var testMCPImpl = &mcp.Implementation{Name: "webclip-test", Version: "0.1.0"}

// shotPage upgrades fakePage to the full capture surface.
type shotPage struct{ *fakePage }

func (p shotPage) CaptureViewport(ctx context.Context) (string, error) {
	return "data:image/png;base64,aGk=", nil
}

func (p shotPage) Close() error { return nil }

type fakeOpener struct{ page shotPage }

func (o fakeOpener) Open(ctx context.Context, url string) (CapturePage, error) {
	return o.page, nil
}

func mcpSession(t *testing.T) (*mcp.ClientSession, *Service) {
	t.Helper()
	page := shotPage{&fakePage{
		url:   "https://example.com",
		title: "Test Page",
		doc:   "<html><head></head><body><p>page body text</p></body></html>",
	}}
	svc := NewService(ServiceConfig{
		Store:  store.New(store.NewMemKV(), store.Options{}),
		Opener: fakeOpener{page},
	})

	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session, svc
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_CapturePage(t *testing.T) {
	session, svc := mcpSession(t)

	text := mcpCallTool(t, session, "capture_page", map[string]any{
		"url": "https://example.com",
	})

	var resp capturePageResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != "fullpage" || resp.ID == "" || resp.Size == 0 {
		t.Errorf("unexpected response: %+v", resp)
	}
	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != resp.ID {
		t.Errorf("capture not persisted: %+v", list)
	}
}

func TestMCP_CapturePage_Screenshot(t *testing.T) {
	session, _ := mcpSession(t)

	text := mcpCallTool(t, session, "capture_page", map[string]any{
		"url":  "https://example.com",
		"type": "screenshot",
	})

	var resp capturePageResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != "screenshot" {
		t.Errorf("type: %+v", resp)
	}
}

func TestMCP_CapturePage_BadType(t *testing.T) {
	session, _ := mcpSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "capture_page",
		Arguments: map[string]any{"url": "https://example.com", "type": "gif"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("unknown type must be a tool error")
	}
}

func TestMCP_ListAndClear(t *testing.T) {
	session, _ := mcpSession(t)

	mcpCallTool(t, session, "capture_page", map[string]any{"url": "https://example.com"})

	text := mcpCallTool(t, session, "list_captures", map[string]any{})
	var listResp listCapturesResp
	if err := json.Unmarshal([]byte(text), &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listResp.Captures) != 1 {
		t.Fatalf("expected 1 capture, got %d", len(listResp.Captures))
	}

	mcpCallTool(t, session, "clear_captures", map[string]any{})

	text = mcpCallTool(t, session, "list_captures", map[string]any{})
	listResp = listCapturesResp{}
	if err := json.Unmarshal([]byte(text), &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listResp.Captures) != 0 {
		t.Errorf("expected empty list after clear, got %+v", listResp.Captures)
	}
}
