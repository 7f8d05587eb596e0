package poem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// DefaultModel is used when no model override is configured.
const DefaultModel = "meta-llama/llama-3.2-3b-instruct:free"

// fallbackModels is the chain tried after the configured model.
var fallbackModels = []string{
	DefaultModel,
	"google/gemini-2.0-flash-exp:free",
	"meta-llama/llama-3.1-70b-instruct",
	"qwen/qwen-2.5-72b-instruct",
}

// ErrAllModelsFailed is returned when no model in the chain produced a poem.
var ErrAllModelsFailed = errors.New("all models failed")

const promptTemplate = `You are a poetic AI that creates beautiful, evocative poems.

Using ONLY the following keywords derived from the Solana blockchain, create a cohesive poem of 20-30 lines.

Keywords: %s

Instructions:
- Use all or most of these keywords naturally in the poem
- Create a coherent narrative or emotional arc
- The poem can be any mood - happy, sad, dark, light, mysterious, etc.
- Let the words guide the tone naturally
- Use vivid imagery and metaphor
- Make it flow well and feel complete
- Do NOT add a title
- Do NOT explain or comment on the poem
- ONLY output the poem itself

Write the poem now:`

// Poem is a generated poem with its provenance.
type Poem struct {
	Content     string
	Model       string
	GeneratedAt time.Time
}

// Generator turns keyword lists into poems, falling back through a chain
// of models until one succeeds.
type Generator struct {
	completer Completer
	models    []string
}

// NewGenerator builds a Generator. When preferred is non-empty it is tried
// before the built-in fallback chain.
func NewGenerator(completer Completer, preferred string) *Generator {
	return &Generator{completer: completer, models: ModelChain(preferred)}
}

// ModelChain returns the model order for generation: the preferred model
// first when set, then the fallbacks, without duplicates.
func ModelChain(preferred string) []string {
	chain := make([]string, 0, len(fallbackModels)+1)
	seen := make(map[string]bool)
	if preferred != "" {
		chain = append(chain, preferred)
		seen[preferred] = true
	}
	for _, m := range fallbackModels {
		if seen[m] {
			continue
		}
		chain = append(chain, m)
		seen[m] = true
	}
	return chain
}

// Prompt renders the generation prompt for the given keywords.
func Prompt(keywords []string) string {
	return fmt.Sprintf(promptTemplate, strings.Join(keywords, ", "))
}

// Generate tries each model in the chain once and returns the first
// successful completion. A failed request, an empty response and an HTTP
// error all count as that model failing; remaining models are not queried
// once one succeeds.
func (g *Generator) Generate(ctx context.Context, keywords []string) (Poem, error) {
	prompt := Prompt(keywords)
	for _, model := range g.models {
		if err := ctx.Err(); err != nil {
			return Poem{}, err
		}
		content, err := g.completer.Complete(ctx, model, prompt)
		if err != nil {
			log.Printf("[poem] model %s failed: %v", model, err)
			continue
		}
		return Poem{Content: content, Model: model, GeneratedAt: time.Now().UTC()}, nil
	}
	return Poem{}, fmt.Errorf("tried %d models: %w", len(g.models), ErrAllModelsFailed)
}
