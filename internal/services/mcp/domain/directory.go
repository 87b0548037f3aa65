package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thiagoxp95/portaria/internal/services/directory"
	"github.com/Thiagoxp95/portaria/internal/services/directory/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetPhoneByApartmentInput represents the MCP tool input for a directory lookup.
type GetPhoneByApartmentInput struct {
	ApartmentNumber string `json:"apartmentNumber" jsonschema:"apartment number to look up, e.g. 1203"`
}

// GetPhoneByApartmentResult represents the MCP tool output for a directory lookup.
type GetPhoneByApartmentResult struct {
	ApartmentNumber string `json:"apartmentNumber" jsonschema:"apartment number that was looked up"`
	PhoneNumber     string `json:"phoneNumber" jsonschema:"resident WhatsApp phone number in E.164 format"`
	ResidentName    string `json:"residentName,omitempty" jsonschema:"resident display name, if registered"`
	Message         string `json:"message" jsonschema:"human-readable outcome summary"`
}

// GetPhoneByApartmentTool defines the MCP tool schema for the directory lookup.
func GetPhoneByApartmentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_phone_by_apartment",
		Description: "Looks up the WhatsApp phone number registered for an apartment. Fails if no resident is registered or the resident is inactive.",
	}
}

// GetPhoneByApartmentHandler executes a directory lookup request.
func GetPhoneByApartmentHandler(dir *directory.Service) mcp.ToolHandlerFor[GetPhoneByApartmentInput, GetPhoneByApartmentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetPhoneByApartmentInput) (*mcp.CallToolResult, GetPhoneByApartmentResult, error) {
		contact, err := dir.Lookup(ctx, input.ApartmentNumber)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				return nil, GetPhoneByApartmentResult{}, fmt.Errorf("no resident registered for apartment %q", input.ApartmentNumber)
			case errors.Is(err, directory.ErrInactive):
				return nil, GetPhoneByApartmentResult{}, fmt.Errorf("resident for apartment %q is inactive and cannot receive consent requests", input.ApartmentNumber)
			default:
				return nil, GetPhoneByApartmentResult{}, fmt.Errorf("look up apartment: %w", err)
			}
		}

		return nil, GetPhoneByApartmentResult{
			ApartmentNumber: contact.ApartmentNumber,
			PhoneNumber:     contact.PhoneNumber,
			ResidentName:    contact.ResidentName,
			Message:         "Resident information retrieved successfully",
		}, nil
	}
}
