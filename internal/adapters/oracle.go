package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/ports"
	"github.com/sells-group/company-finder/pkg/anthropic"
)

var (
	_ ports.Classifier      = (*ClaudeOracle)(nil)
	_ ports.EntityExtractor = (*ClaudeOracle)(nil)
)

const classifySystem = `You score how well a web page matches an industry description.
Reply with JSON only: {"score": <number between 0 and 1>}.`

// stopMaxTokens is the stop reason of a reply cut off by the token budget.
const stopMaxTokens = "max_tokens"

const (
	entitiesMaxTokens = 1024
	maxEntities       = 40
)

var entitiesSystem = fmt.Sprintf(`You extract named entities from web page text.
Return organisations (ORG) and locations (LOC) in order of first appearance, at most %d entities.
Reply with JSON only: {"entities": [{"type": "ORG" | "LOC", "text": "<entity>"}]}.`, maxEntities)

// ClaudeOracle implements zero-shot classification and entity extraction
// with the Anthropic Messages API.
type ClaudeOracle struct {
	client anthropic.Client
	model  string
}

// NewClaudeOracle creates an oracle. An empty model uses the client default.
func NewClaudeOracle(client anthropic.Client, model string) *ClaudeOracle {
	if model == "" {
		model = anthropic.DefaultModel
	}
	return &ClaudeOracle{client: client, model: model}
}

// Classify returns a [0,1] score for how well text matches label.
func (o *ClaudeOracle) Classify(ctx context.Context, text, label string) (float64, error) {
	prompt := fmt.Sprintf("Industry: %s\n\nPage text:\n%s", label, text)
	resp, err := o.ask(ctx, classifySystem, prompt, 32, "classify")
	if err != nil {
		return 0, err
	}
	raw := resp.Text()

	var out struct {
		Score *float64 `json:"score"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		return 0, eris.Wrap(err, "adapters: parse classification")
	}
	if out.Score == nil {
		return 0, eris.New("adapters: classification missing score")
	}
	return *out.Score, nil
}

// ExtractEntities returns ORG and LOC entities in order of appearance. A
// reply cut off by the token budget yields the entities that arrived whole.
func (o *ClaudeOracle) ExtractEntities(ctx context.Context, text string) ([]ports.Entity, error) {
	resp, err := o.ask(ctx, entitiesSystem, text, entitiesMaxTokens, "entities")
	if err != nil {
		return nil, err
	}
	raw := resp.Text()

	var out struct {
		Entities []ports.Entity `json:"entities"`
	}
	if err := decodeJSON(raw, &out); err != nil {
		if resp.StopReason != stopMaxTokens {
			return nil, eris.Wrap(err, "adapters: parse entities")
		}
		out.Entities = decodePartialEntities(raw)
		zap.L().Warn("adapters: entity reply truncated",
			zap.Int("recovered", len(out.Entities)),
		)
	}

	ents := make([]ports.Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		e.Type = ports.EntityType(strings.ToUpper(string(e.Type)))
		e.Text = strings.TrimSpace(e.Text)
		if e.Text == "" || (e.Type != ports.EntityOrg && e.Type != ports.EntityLoc) {
			continue
		}
		ents = append(ents, e)
	}
	return ents, nil
}

func (o *ClaudeOracle) ask(ctx context.Context, system, user string, maxTokens int64, task string) (*anthropic.MessageResponse, error) {
	temp := 0.0
	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       o.model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "adapters: %s", task)
	}
	resp.Usage.LogCost(o.model, task)
	return resp, nil
}

// decodeJSON unmarshals the first JSON object in s, tolerating prose or code
// fences around it.
func decodeJSON(s string, v any) error {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return eris.Errorf("no JSON object in %q", truncate(s, 120))
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}

// decodePartialEntities reads the complete elements of the "entities" array
// in a reply that ends mid-array.
func decodePartialEntities(s string) []ports.Entity {
	key := strings.Index(s, `"entities"`)
	if key < 0 {
		return nil
	}
	open := strings.Index(s[key:], "[")
	if open < 0 {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(s[key+open:]))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var ents []ports.Entity
	for dec.More() {
		var e ports.Entity
		if err := dec.Decode(&e); err != nil {
			break
		}
		ents = append(ents, e)
	}
	return ents
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
