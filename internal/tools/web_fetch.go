package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const (
	defaultFetchMaxChars = 50000
	fetchMaxBodyBytes    = 5 * 1024 * 1024
	fetchMaxRedirects    = 3
	fetchTimeoutSec      = 30
	fetchUserAgent       = "Mozilla/5.0 (compatible; perch/1.0)"
)

// WebFetchTool fetches a URL and extracts readable content.
type WebFetchTool struct {
	maxChars int
	client   *http.Client
}

func NewWebFetchTool(maxChars int) *WebFetchTool {
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}
	return &WebFetchTool{
		maxChars: maxChars,
		client: &http.Client{
			Timeout: fetchTimeoutSec * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= fetchMaxRedirects {
					return fmt.Errorf("stopped after %d redirects", fetchMaxRedirects)
				}
				return nil
			},
		},
	}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch a URL and return its content as markdown or text" }
func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch (http or https)",
			},
			"mode": map[string]any{
				"type":        "string",
				"description": "Extraction mode",
				"enum":        []any{"markdown", "text", "raw"},
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ErrorResult("url must start with http:// or https://")
	}

	mode, _ := args["mode"].(string)
	if mode == "" {
		mode = "markdown"
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrorResult(fmt.Sprintf("fetch failed with status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodyBytes))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read body: %v", err))
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")

	if strings.Contains(contentType, "text/html") && mode != "raw" {
		switch mode {
		case "text":
			content, err = htmlToText(content)
		default:
			content, err = htmlToMarkdown(content)
		}
		if err != nil {
			return ErrorResult(fmt.Sprintf("extract content: %v", err))
		}
	}

	if len(content) > t.maxChars {
		content = content[:t.maxChars] + fmt.Sprintf("\n\n[Content truncated to %d characters]", t.maxChars)
	}

	return SilentResult(content)
}

func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	return converter.ConvertString(html)
}

func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer, header").Remove()
	text := doc.Find("body").Text()
	return strings.Join(strings.Fields(text), " "), nil
}
