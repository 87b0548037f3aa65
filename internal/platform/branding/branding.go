// Package branding centralizes product-facing names so they stay consistent
// across services and transports.
package branding

const (
	// AppName is the human-facing product name.
	AppName = "Portaria"

	// MCPServerName identifies the MCP server to connecting hosts.
	MCPServerName = "portaria-concierge"
)
