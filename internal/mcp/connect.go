package mcp

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// connect starts the transport, performs the initialize handshake and lists tools.
func (b *Bridge) connect(ctx context.Context, srv store.MCPServerData) (*mcpclient.Client, []mcpgo.Tool, error) {
	client, err := createClient(srv.Transport, srv.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("start transport: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    b.clientName,
		Version: b.clientVersion,
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}

	res, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("list tools: %w", err)
	}
	return client, res.Tools, nil
}

func createClient(transportType, url string) (*mcpclient.Client, error) {
	switch transportType {
	case store.MCPTransportSSE:
		return mcpclient.NewSSEMCPClient(url)
	case store.MCPTransportStreamableHTTP:
		return mcpclient.NewStreamableHttpClient(url)
	default:
		return nil, fmt.Errorf("unsupported transport: %q", transportType)
	}
}

// ValidTransport reports whether t names a supported remote transport.
func ValidTransport(t string) bool {
	return t == store.MCPTransportSSE || t == store.MCPTransportStreamableHTTP
}
