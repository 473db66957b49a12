package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

const (
	maxSubQueries     = 4
	maxReformulations = 2
)

// Reformulator derives additional search queries from a question. Every
// failure here is soft: a reformulation that cannot be produced means
// searching with the original question only.
type Reformulator struct {
	llm ports.ChatCompleter
	log *slog.Logger
}

func NewReformulator(llm ports.ChatCompleter, log *slog.Logger) *Reformulator {
	if log == nil {
		log = slog.Default()
	}
	return &Reformulator{llm: llm, log: log}
}

// Decompose breaks a complex question into up to 4 sub-queries. A simple
// question, a single-line response, or any LLM failure yields just the
// original question.
func (r *Reformulator) Decompose(ctx context.Context, question, model string) []string {
	prompt := fmt.Sprintf(`Разбей следующий сложный вопрос на 2-4 более простых подвопроса, которые помогут найти ответ.
Если вопрос простой и не требует разбиения, верни только исходный вопрос.

Вопрос: %s

Подвопросы (каждый с новой строки, без нумерации):`, question)

	content, err := r.llm.Complete(ctx, ports.ChatRequest{
		Model: model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "Ты помощник, который разбивает сложные вопросы на подвопросы для более точного поиска информации."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		r.log.Warn("question decomposition failed, using original question", "error", err)
		return []string{question}
	}

	subQueries := nonEmptyLines(content)
	if len(subQueries) <= 1 {
		return []string{question}
	}
	if len(subQueries) > maxSubQueries {
		subQueries = subQueries[:maxSubQueries]
	}
	r.log.Info("question decomposed into sub-queries", "count", len(subQueries))
	return subQueries
}

// Expand produces up to 2 paraphrases of the question plus a hypothetical
// answer used as an extra search query. Failures return nil.
func (r *Reformulator) Expand(ctx context.Context, question, model string) []string {
	reformulationPrompt := fmt.Sprintf(`Переформулируй следующий вопрос 2-3 разными способами, сохраняя смысл.
Вопрос: %s

Переформулировки (каждую с новой строки, без нумерации):`, question)

	content, err := r.llm.Complete(ctx, ports.ChatRequest{
		Model: model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "Ты помощник, который переформулирует вопросы, сохраняя их смысл."},
			{Role: "user", Content: reformulationPrompt},
		},
		Temperature: 0.5,
		MaxTokens:   200,
	})
	if err != nil {
		r.log.Warn("query expansion failed, using original question only", "error", err)
		return nil
	}

	reformulations := nonEmptyLines(content)
	if len(reformulations) > maxReformulations {
		reformulations = reformulations[:maxReformulations]
	}

	hypotheticalPrompt := fmt.Sprintf(`На основе следующего вопроса, сформулируй краткий гипотетический ответ (1-2 предложения).
Этот ответ будет использован для поиска релевантной информации.

Вопрос: %s

Гипотетический ответ:`, question)

	hypothetical, err := r.llm.Complete(ctx, ports.ChatRequest{
		Model: model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "Ты помощник, который создает гипотетические ответы для улучшения поиска."},
			{Role: "user", Content: hypotheticalPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   150,
	})
	if err != nil {
		r.log.Warn("hypothetical answer generation failed", "error", err)
		return reformulations
	}

	expanded := reformulations
	if hypothetical = strings.TrimSpace(hypothetical); hypothetical != "" {
		expanded = append(expanded, hypothetical)
	}
	r.log.Info("query expansion produced additional queries", "count", len(expanded))
	return expanded
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
