// storesleuth-mcp exposes the extraction API as MCP tools over stdio, so
// agent runtimes can pull product data without speaking HTTP themselves.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// extractRequest mirrors the StoreSleuth API request model.
type extractRequest struct {
	URL         string `json:"url"`
	FetchMode   string `json:"fetch_mode,omitempty"`
	Stealth     bool   `json:"stealth,omitempty"`
	CSSSelector string `json:"css_selector,omitempty"`
	MaxAge      int    `json:"max_age,omitempty"`
}

// extractResponse mirrors the StoreSleuth API response model.
type extractResponse struct {
	Success bool            `json:"success"`
	Product json.RawMessage `json:"product"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("SLEUTH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SLEUTH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SLEUTH_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"storesleuth",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_product",
		mcp.WithDescription("Extract structured product data (name, brand, price, identifiers, stock status) from a storefront product page. Renders JavaScript-heavy pages with a headless browser when needed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the product page"),
		),
		mcp.WithString("fetch_mode",
			mcp.Description("Fetching strategy: 'auto' (default, HTTP probe with browser fallback), 'http', or 'browser'"),
			mcp.Enum("auto", "http", "browser"),
		),
		mcp.WithBoolean("stealth",
			mcp.Description("Enable anti-bot-detection evasions in the browser path"),
		),
		mcp.WithString("css_selector",
			mcp.Description("CSS selector narrowing the page content handed to the extraction model"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Maximum acceptable cache age in seconds; -1 forces a fresh extraction"),
		),
	)
	s.AddTool(extractTool, handleExtractProduct(apiURL, apiKey))

	invalidateTool := mcp.NewTool("invalidate_product",
		mcp.WithDescription("Drop the cached extraction result for a product page URL, forcing the next extraction to fetch fresh data."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the product page to invalidate"),
		),
	)
	s.AddTool(invalidateTool, handleInvalidateProduct(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleExtractProduct(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := extractRequest{
			URL:         url,
			FetchMode:   request.GetString("fetch_mode", ""),
			Stealth:     request.GetBool("stealth", false),
			CSSSelector: request.GetString("css_selector", ""),
			MaxAge:      request.GetInt("max_age", 0),
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/extract", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var extractResp extractResponse
		if err := json.Unmarshal(respBody, &extractResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !extractResp.Success {
			errMsg := "extraction failed"
			if extractResp.Error != nil {
				errMsg = fmt.Sprintf("%s: %s", extractResp.Error.Kind, extractResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(string(extractResp.Product)), nil
	}
}

func handleInvalidateProduct(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
			apiURL+"/api/v1/cache?url="+neturl.QueryEscape(url), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		req.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// apiPost sends a POST request to the StoreSleuth API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
