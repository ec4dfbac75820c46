package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slovoapp/slovo/internal/llm"
)

const (
	openapiFetchTimeout = 10 * time.Second
	simplifiedSpecLimit = 4000
	truncationMarker    = "\n... (truncated)"
	defaultAPIName      = "unknown-api"
	defaultAPIVersion   = "1.0.0"
)

var specMethods = []string{"get", "post", "put", "delete", "patch"}

const openapiAnalysisPrompt = `Analyse this OpenAPI specification and describe
the API as a voice-assistant tool.

Specification:
{{spec}}

Respond with a single JSON object:
{"name": "<short-dashed-name>", "version": "<version>",
"description": "<one sentence>", "capabilities": ["<capability>", ...],
"requires_auth": <bool>, "auth_type": "<scheme or empty>"}`

// APIAnalysis is the normalised description of an OpenAPI document
type APIAnalysis struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	RequiresAuth bool     `json:"requires_auth"`
	AuthType     string   `json:"auth_type"`
}

// Discoverer turns OpenAPI documents into tool manifests, with an LLM
// pass when a model is configured and a syntactic fallback otherwise.
type Discoverer struct {
	httpClient *http.Client
	client     llm.Client
}

// NewDiscoverer builds a discoverer; client may be nil
func NewDiscoverer(client llm.Client) *Discoverer {
	return &Discoverer{
		httpClient: &http.Client{Timeout: openapiFetchTimeout},
		client:     client,
	}
}

// AnalyzeOpenAPI fetches, validates, and analyses the document at url
func (d *Discoverer) AnalyzeOpenAPI(ctx context.Context, url string) (*APIAnalysis, error) {
	spec, err := d.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, ok := spec["openapi"]; !ok {
		if _, ok := spec["swagger"]; !ok {
			return nil, fmt.Errorf("document at %s is not an OpenAPI specification", url)
		}
	}

	if d.client != nil {
		if analysis, err := d.analyzeLLM(ctx, spec); err == nil {
			return analysis, nil
		} else {
			slog.WarnContext(ctx, "model analysis failed, using syntactic fallback", "url", url, "error", err)
		}
	}
	return analyzeSyntactic(spec), nil
}

func (d *Discoverer) fetch(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching OpenAPI spec: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching OpenAPI spec: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	spec := map[string]any{}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") || strings.HasSuffix(url, ".json") {
		err = json.Unmarshal(body, &spec)
	} else {
		err = yaml.Unmarshal(body, &spec)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing OpenAPI spec: %w", err)
	}
	return spec, nil
}

func (d *Discoverer) analyzeLLM(ctx context.Context, spec map[string]any) (*APIAnalysis, error) {
	prompt := renderDiscoveryPrompt(openapiAnalysisPrompt, simplifySpec(spec))

	resp, err := d.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.Options{
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSONObject(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var analysis APIAnalysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, err
	}
	if analysis.Name == "" {
		analysis.Name = defaultAPIName
	}
	if analysis.Version == "" {
		analysis.Version = defaultAPIVersion
	}
	return &analysis, nil
}

func renderDiscoveryPrompt(template, spec string) string {
	return strings.ReplaceAll(template, "{{spec}}", spec)
}

// simplifySpec keeps only info and the per-path operations the model
// needs, bounded to a few thousand characters.
func simplifySpec(spec map[string]any) string {
	simplified := map[string]any{}
	if info, ok := spec["info"]; ok {
		simplified["info"] = info
	}

	if paths, ok := spec["paths"].(map[string]any); ok {
		outPaths := map[string]any{}
		for path, raw := range paths {
			ops, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			outOps := map[string]any{}
			for _, method := range specMethods {
				op, ok := ops[method].(map[string]any)
				if !ok {
					continue
				}
				kept := map[string]any{}
				for _, key := range []string{"summary", "description", "operationId", "parameters", "requestBody"} {
					if v, ok := op[key]; ok {
						kept[key] = v
					}
				}
				outOps[method] = kept
			}
			if len(outOps) > 0 {
				outPaths[path] = outOps
			}
		}
		simplified["paths"] = outPaths
	}

	data, err := json.MarshalIndent(simplified, "", "  ")
	if err != nil {
		return ""
	}
	text := string(data)
	if len(text) > simplifiedSpecLimit {
		text = text[:simplifiedSpecLimit] + truncationMarker
	}
	return text
}

// analyzeSyntactic derives a manifest without a model: name from the
// title, one capability per path and method.
func analyzeSyntactic(spec map[string]any) *APIAnalysis {
	analysis := &APIAnalysis{
		Name:    defaultAPIName,
		Version: defaultAPIVersion,
	}

	if info, ok := spec["info"].(map[string]any); ok {
		if title, ok := info["title"].(string); ok && title != "" {
			analysis.Name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "-")
		}
		if version, ok := info["version"].(string); ok && version != "" {
			analysis.Version = version
		}
		if description, ok := info["description"].(string); ok {
			analysis.Description = description
		}
	}
	if analysis.Description == "" {
		analysis.Description = "Imported OpenAPI service"
	}

	if paths, ok := spec["paths"].(map[string]any); ok {
		for path, raw := range paths {
			ops, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			for _, method := range specMethods {
				op, ok := ops[method].(map[string]any)
				if !ok {
					continue
				}
				if opID, ok := op["operationId"].(string); ok && opID != "" {
					analysis.Capabilities = append(analysis.Capabilities, opID)
				} else {
					analysis.Capabilities = append(analysis.Capabilities,
						method+"_"+strings.ReplaceAll(path, "/", "_"))
				}
			}
		}
	}

	schemes := map[string]any{}
	if components, ok := spec["components"].(map[string]any); ok {
		if s, ok := components["securitySchemes"].(map[string]any); ok {
			schemes = s
		}
	}
	if s, ok := spec["securityDefinitions"].(map[string]any); ok && len(schemes) == 0 {
		schemes = s
	}
	if len(schemes) > 0 {
		analysis.RequiresAuth = true
		for _, raw := range schemes {
			if scheme, ok := raw.(map[string]any); ok {
				if t, ok := scheme["type"].(string); ok {
					analysis.AuthType = t
					break
				}
			}
		}
	}
	return analysis
}
