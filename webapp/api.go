package webapp

import (
	"encoding/json"
	"strconv"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// GetAPIBaseURL returns the configured API base URL
// It reads from window.pdfviewConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	config := app.Window().Get("pdfviewConfig")
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			return trimTrailingSlash(apiURL.String())
		}
	}

	// Fallback to relative URLs (same origin)
	return ""
}

func trimTrailingSlash(url string) string {
	if len(url) > 0 && url[len(url)-1] == '/' {
		return url[:len(url)-1]
	}
	return url
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/documents/latest") -> "http://backend:8000/api/documents/latest"
// or just "/api/documents/latest" if using relative URLs
func BuildAPIURL(path string) string {
	baseURL := GetAPIBaseURL()
	if baseURL == "" {
		return path // Relative URL
	}
	return baseURL + path
}

// Job is a render, print or sweep pass as /api/jobs reports it
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Session     string          `json:"session,omitempty"`
	Progress    int             `json:"progress"`
	CurrentStep string          `json:"currentStep"`
	Message     string          `json:"message"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	DurationMs  int64           `json:"durationMs,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
	StartedAt   string          `json:"startedAt,omitempty"`
	CompletedAt string          `json:"completedAt,omitempty"`
}

// Document is a stored PDF as the API returns it
type Document struct {
	ULID      string `json:"ULID"`
	Name      string `json:"Name"`
	Hash      string `json:"Hash"`
	Size      int64  `json:"Size"`
	Pages     int    `json:"Pages"`
	Title     string `json:"Title"`
	Author    string `json:"Author"`
	Encrypted bool   `json:"Encrypted"`
	CreatedAt string `json:"CreatedAt"`
}

// apiResponse is called with the status and raw body of a finished request
type apiResponse func(ctx app.Context, status int, body string)

// callAPI runs fetch(url, init) and hands the body text to done on the UI
// goroutine. init is a map or a JS object; a network failure calls fail.
func callAPI(ctx app.Context, url string, init interface{}, done apiResponse, fail func(ctx app.Context)) {
	ctx.Async(func() {
		var res app.Value
		if init == nil {
			res = app.Window().Call("fetch", url)
		} else {
			res = app.Window().Call("fetch", url, init)
		}

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			if len(args) == 0 {
				return nil
			}
			response := args[0]
			status := response.Get("status").Int()

			response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
				body := ""
				if len(args) > 0 {
					body = args[0].String()
				}
				ctx.Dispatch(func(ctx app.Context) {
					done(ctx, status, body)
				})
				return nil
			}))

			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) interface{} {
			if fail != nil {
				ctx.Dispatch(fail)
			}
			return nil
		}))
	})
}

// jsonInit builds fetch options sending body as JSON
func jsonInit(method string, body interface{}) map[string]interface{} {
	init := map[string]interface{}{
		"method":  method,
		"headers": map[string]interface{}{"Content-Type": "application/json"},
	}
	if body != nil {
		b, _ := json.Marshal(body)
		init["body"] = string(b)
	}
	return init
}

// apiError extracts the error field of a JSON error body
func apiError(status int, body string) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	if body != "" {
		return body
	}
	return "request failed with status " + strconv.Itoa(status)
}
