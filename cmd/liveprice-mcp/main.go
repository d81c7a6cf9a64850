package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("LIVEPRICE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3000"
	}
	apiKey := os.Getenv("LIVEPRICE_API_KEY")

	s := server.NewMCPServer(
		"liveprice",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	priceTool := mcp.NewTool("get_live_price",
		mcp.WithDescription("Get the live price currently displayed on the quote page for a stock ticker. Returns the price text exactly as shown, e.g. \"189.84\"."),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Ticker symbol, e.g. AAPL, BRK-B, ^GSPC, EURUSD=X"),
		),
	)
	s.AddTool(priceTool, handleGetLivePrice(strings.TrimRight(apiURL, "/"), apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleGetLivePrice(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ticker, err := request.RequireString("ticker")
		if err != nil || ticker == "" {
			return mcp.NewToolResultError("ticker is required"), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			apiURL+"/price/"+url.PathEscape(ticker), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		if apiKey != "" {
			httpReq.Header.Set("X-API-Key", apiKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		// Success and failure bodies are both bare JSON strings.
		var text string
		if err := json.Unmarshal(respBody, &text); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.StatusCode != http.StatusOK {
			return mcp.NewToolResultError(fmt.Sprintf("[%d] %s", resp.StatusCode, text)), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
