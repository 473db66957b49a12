package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

const synthesisMaxTokens = 1000

// Synthesizer generates the final answer from retrieved chunks. Context
// passages are numbered so the model can cite them as [1], [2] and the
// citations stay resolvable against the returned sources.
type Synthesizer struct {
	llm ports.ChatCompleter
}

func NewSynthesizer(llm ports.ChatCompleter) *Synthesizer {
	return &Synthesizer{llm: llm}
}

func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []domain.RerankedResult, model string, temperature float64) (string, error) {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, chunk.Text)
	}

	prompt := fmt.Sprintf(`Используй следующую информацию из транскриптов, чтобы ответить на вопрос.
Если информация не содержит ответа, скажи об этом честно.

ВАЖНО: В ответе обязательно добавляй ссылки на источники в квадратных скобках [1], [2], [3] и т.д.
Каждая ссылка должна соответствовать номеру источника из контекста.
Например: "Согласно информации [1], Distributed Train - это платформа [2] для управления GPU контейнерами."

Контекст:
%s

Вопрос: %s

Ответ (обязательно со ссылками на источники в формате [1], [2], [3]...):`, sb.String(), question)

	answer, err := s.llm.Complete(ctx, ports.ChatRequest{
		Model: model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: "Ты помощник, который отвечает на вопросы на основе предоставленного контекста из транскриптов. ВАЖНО: Всегда добавляй ссылки на источники в квадратных скобках [1], [2], [3] и т.д. в тексте ответа, когда используешь информацию из контекста. Каждая ссылка должна соответствовать номеру источника из контекста."},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   synthesisMaxTokens,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrSynthesisFailed, "synthesize answer", err)
	}
	return answer, nil
}
