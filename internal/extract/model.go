package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crestline-sec/intelpipe/internal/config"
	"github.com/crestline-sec/intelpipe/internal/model"
	"github.com/crestline-sec/intelpipe/internal/resilience"
	"github.com/crestline-sec/intelpipe/pkg/anthropic"
)

const extractionSystemPrompt = `You are an intelligence extraction assistant. Given a threat report, extract:
- indicators: atomic observables literally present in the text (ip, ipv6, domain, url, hash, email, cve, registry_key, file_path)
- techniques: attack behaviors described, as short names (e.g. "spearphishing attachment", "credential dumping")
- actors: threat actor or group names mentioned

Rules:
- Only output values that appear verbatim in the report. Never infer or invent values.
- Defanged values must be reported in their defanged form exactly as written.
- Respond with a single JSON object and nothing else:
{"indicators":[{"type":"ip","value":"..."}],"techniques":["..."],"actors":["..."]}`

// modelResponse is the JSON shape the extraction prompt asks for.
type modelResponse struct {
	Indicators []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"indicators"`
	Techniques []string `json:"techniques"`
	Actors     []string `json:"actors"`
}

// ModelExtractor asks the model oracle for candidates the regex grammar
// cannot express. Its output is untrusted: the orchestrator re-verifies
// every value against the document before anything is persisted.
type ModelExtractor struct {
	client  anthropic.Client
	cfg     config.ExtractConfig
	model   string
	maxTok  int64
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

func NewModelExtractor(client anthropic.Client, extractCfg config.ExtractConfig, anthCfg config.AnthropicConfig) *ModelExtractor {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	return &ModelExtractor{
		client:  client,
		cfg:     extractCfg,
		model:   anthCfg.Model,
		maxTok:  int64(anthCfg.MaxTokens),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
		retry:   retry,
	}
}

// Extract runs one model pass over the document. Transient API failures are
// retried; a persistently failing oracle opens the breaker and extraction
// degrades to pattern-only upstream.
func (e *ModelExtractor) Extract(ctx context.Context, doc *model.Document) (*Result, error) {
	timeout := time.Duration(e.cfg.ModelTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content := doc.Content
	if e.cfg.MaxContentChars > 0 && len(content) > e.cfg.MaxContentChars {
		content = content[:e.cfg.MaxContentChars]
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTok,
		System:      anthropic.BuildCachedSystemBlocks(extractionSystemPrompt),
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Title: " + doc.Title + "\n\nReport:\n" + content},
		},
	}

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return e.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: model call")
	}

	parsed, err := parseModelResponse(resp.Text())
	if err != nil {
		zap.L().Warn("extract: unparseable model response",
			zap.String("document_id", doc.ID), zap.Error(err))
		return nil, eris.Wrap(err, "extract: parse model response")
	}
	return parsed, nil
}

func parseModelResponse(text string) (*Result, error) {
	var raw modelResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "unmarshal")
	}

	res := &Result{}
	seen := make(map[string]bool)
	for _, ind := range raw.Indicators {
		typ := normalizeIndicatorType(ind.Type)
		value := strings.TrimSpace(ind.Value)
		if value == "" {
			continue
		}
		c := model.Candidate{Type: typ, Value: value, Provenance: model.ProvenanceModel}
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		res.Indicators = append(res.Indicators, c)
	}
	for _, tech := range raw.Techniques {
		if t := strings.TrimSpace(tech); t != "" {
			res.Techniques = append(res.Techniques, TechniqueRef{Ref: t})
		}
	}
	for _, actor := range raw.Actors {
		if a := strings.TrimSpace(actor); a != "" {
			res.Actors = append(res.Actors, a)
		}
	}
	return res, nil
}

// normalizeIndicatorType maps whatever label the model chose onto our
// closed type set; anything unknown lands in generic.
func normalizeIndicatorType(s string) model.IndicatorType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ip", "ipv4", "ip_address":
		return model.IndicatorIP
	case "ipv6":
		return model.IndicatorIPv6
	case "domain", "hostname", "fqdn":
		return model.IndicatorDomain
	case "url", "uri":
		return model.IndicatorURL
	case "hash", "md5", "sha1", "sha256", "file_hash":
		return model.IndicatorHash
	case "email", "email_address":
		return model.IndicatorEmail
	case "cve", "vulnerability":
		return model.IndicatorCVE
	case "registry_key", "registry":
		return model.IndicatorRegistryKey
	case "file_path", "filepath", "path":
		return model.IndicatorFilePath
	default:
		return model.IndicatorGeneric
	}
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
