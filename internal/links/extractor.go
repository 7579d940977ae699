// Package links extracts direct download URLs from analysis responses and
// infers the storage key a download URL points at.
package links

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmespath-community/go-jmespath"
	"go.uber.org/zap"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// Rule describes where the status code and download link live in one task
// type's analysis response. Fields are JMESPath expressions.
type Rule struct {
	Enabled      bool
	CodeField    string
	DataField    string
	TaskIDField  string
	SuccessCodes []int
}

// Config wires the allow-list and the parse account identity.
type Config struct {
	ParseHost   string
	ParseBucket string
	Layout      retrieval.Layout
	Rules       map[string]Rule
}

// Extractor implements link extraction for link-parseable task types.
type Extractor struct {
	rules  map[string]Rule
	host   string
	bucket string
	layout retrieval.Layout
	logger *zap.Logger
}

// New validates every rule expression and builds an Extractor.
func New(cfg Config, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := make(map[string]Rule, len(cfg.Rules))
	for name, rule := range cfg.Rules {
		for _, expr := range []string{rule.CodeField, rule.DataField, rule.TaskIDField} {
			if expr == "" {
				continue
			}
			if _, err := jmespath.Compile(expr); err != nil {
				return nil, fmt.Errorf("rule %s: invalid expression %q: %w", name, expr, err)
			}
		}
		if len(rule.SuccessCodes) == 0 {
			rule.SuccessCodes = []int{200}
		}
		rules[strings.ToLower(name)] = rule
	}
	return &Extractor{
		rules:  rules,
		host:   strings.ToLower(strings.TrimSpace(cfg.ParseHost)),
		bucket: strings.Trim(cfg.ParseBucket, "/"),
		layout: cfg.Layout,
		logger: logger.Named("links"),
	}, nil
}

// Parseable reports whether taskType is on the allow-list and enabled.
func (e *Extractor) Parseable(taskType string) bool {
	_, ok := e.rule(taskType)
	return ok
}

func (e *Extractor) rule(taskType string) (Rule, bool) {
	rule, ok := e.rules[strings.ToLower(taskType)]
	if !ok || !rule.Enabled || rule.CodeField == "" || rule.DataField == "" {
		return Rule{}, false
	}
	return rule, true
}

// Extract returns the download URLs found in rawMetadata and the storage key
// inferred from the first URL that points into the parse account. The error
// explains an empty result and always wraps retrieval.ErrNoLinks.
func (e *Extractor) Extract(taskType, rawMetadata string) (retrieval.ExtractedLinks, error) {
	rule, ok := e.rule(taskType)
	if !ok {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: task type %q is not link-parseable", retrieval.ErrNoLinks, taskType)
	}
	if strings.TrimSpace(rawMetadata) == "" {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: metadata is empty", retrieval.ErrNoLinks)
	}
	var doc any
	if err := json.Unmarshal([]byte(rawMetadata), &doc); err != nil {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: malformed metadata: %v", retrieval.ErrNoLinks, err)
	}

	code, err := jmespath.Search(rule.CodeField, doc)
	if err != nil {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: evaluate %s: %v", retrieval.ErrNoLinks, rule.CodeField, err)
	}
	status, ok := asInt(code)
	if !ok || !contains(rule.SuccessCodes, status) {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: status %v is not a success code", retrieval.ErrNoLinks, code)
	}

	data, err := jmespath.Search(rule.DataField, doc)
	if err != nil {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: evaluate %s: %v", retrieval.ErrNoLinks, rule.DataField, err)
	}
	urls := collectURLs(data)
	if len(urls) == 0 {
		return retrieval.ExtractedLinks{}, fmt.Errorf("%w: field %s holds no URL", retrieval.ErrNoLinks, rule.DataField)
	}

	out := retrieval.ExtractedLinks{URLs: urls}
	for _, u := range urls {
		if p := e.InferPath(u); p != "" {
			out.InferredPath = p
			break
		}
	}
	e.logger.Debug("extracted links",
		zap.String("task_type", taskType),
		zap.Int("urls", len(urls)),
		zap.String("inferred_path", out.InferredPath),
	)
	return out, nil
}

// TaskID returns the task id recorded inside rawMetadata, if the rule names
// one and it is present.
func (e *Extractor) TaskID(taskType, rawMetadata string) string {
	rule, ok := e.rule(taskType)
	if !ok || rule.TaskIDField == "" || rawMetadata == "" {
		return ""
	}
	var doc any
	if err := json.Unmarshal([]byte(rawMetadata), &doc); err != nil {
		return ""
	}
	v, err := jmespath.Search(rule.TaskIDField, doc)
	if err != nil || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// InferPath maps a download URL to the parse account key it names. Only URLs
// on the parse host whose decoded path ends in .json qualify; the leading
// bucket segment is stripped.
func (e *Extractor) InferPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || e.host == "" || strings.ToLower(u.Hostname()) != e.host {
		return ""
	}
	// u.Path is already percent-decoded.
	p := strings.TrimPrefix(u.Path, "/")
	if !strings.HasSuffix(strings.ToLower(p), ".json") {
		return ""
	}
	bucket, key, ok := strings.Cut(p, "/")
	if !ok || bucket == "" || key == "" {
		return ""
	}
	if e.bucket != "" && bucket != e.bucket {
		return ""
	}
	if !e.layout.IsParseKey(key) {
		return ""
	}
	return key
}

func collectURLs(v any) []string {
	var raw []any
	switch t := v.(type) {
	case string:
		raw = []any{t}
	case []any:
		raw = t
	default:
		return nil
	}
	var out []string
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			out = append(out, s)
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), t == float64(int(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
