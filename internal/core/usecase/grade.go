package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
)

var numberRe = regexp.MustCompile(`0?\.?\d+`)

// Grader scores answer quality on a 0-5 scale. The heuristic grade is a
// pure function of the answer, the chunks and the retrieval settings;
// the advanced grade additionally asks the LLM for groundedness and
// completeness judgments.
type Grader struct {
	llm ports.ChatCompleter
	log *slog.Logger
}

func NewGrader(llm ports.ChatCompleter, log *slog.Logger) *Grader {
	if log == nil {
		log = slog.Default()
	}
	return &Grader{llm: llm, log: log}
}

type gradeInput struct {
	question     string
	answer       string
	chunks       []domain.RerankedResult
	topK         int
	useReranking bool
	useHybrid    bool
}

// Grade computes the heuristic quality score. Answers shorter than 10
// characters score exactly 1.0; everything else starts at 2.0 and is
// adjusted by context overlap, answer length, chunk usage, the retrieval
// settings and chunk relevance, then clamped to [0, 5].
func (g *Grader) Grade(in gradeInput) float64 {
	// Length thresholds are in characters, not bytes; Cyrillic answers
	// are two bytes per rune.
	answerLen := utf8.RuneCountInString(in.answer)
	if answerLen < 10 {
		return 1.0
	}

	score := 2.0
	chunksUsed := len(in.chunks)
	topK := in.topK
	if topK <= 0 {
		topK = 1
	}

	// Overlap between the answer and the first 20 context words.
	var contextWords []string
	{
		var sb strings.Builder
		for i, chunk := range in.chunks {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(chunk.Text)
		}
		contextWords = strings.Fields(strings.ToLower(sb.String()))
		if len(contextWords) > 20 {
			contextWords = contextWords[:20]
		}
	}
	contextSet := make(map[string]struct{}, len(contextWords))
	for _, word := range contextWords {
		contextSet[word] = struct{}{}
	}
	answerSet := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(in.answer)) {
		answerSet[word] = struct{}{}
	}
	common := 0
	for word := range contextSet {
		if _, ok := answerSet[word]; ok {
			common++
		}
	}
	contextOverlap := float64(common) / maxFloat(float64(len(contextSet)), 1)
	if contextOverlap > 0.1 {
		score += 0.8 + minFloat(0.4, contextOverlap*2)
	}

	// Optimal length window widens with the advanced retrieval settings.
	optimalMin := 200.0
	if in.useReranking {
		optimalMin = 100.0
	}
	var baseOptimalMax float64
	switch {
	case in.useReranking && in.useHybrid:
		baseOptimalMax = 1800
	case in.useReranking:
		baseOptimalMax = 1400
	case in.useHybrid:
		baseOptimalMax = 1200
	default:
		baseOptimalMax = 800
	}
	optimalMax := baseOptimalMax
	if chunksUsed > topK {
		chunkRatio := float64(chunksUsed) / float64(topK)
		optimalMax = baseOptimalMax * (1 + minFloat(0.5, (chunkRatio-1)*0.3))
	}

	avgChunkScore := 0.0
	maxChunkScore := 0.0
	minChunkScore := 0.0
	if chunksUsed > 0 {
		sum := 0.0
		maxChunkScore = in.chunks[0].Score
		minChunkScore = in.chunks[0].Score
		for _, chunk := range in.chunks {
			sum += chunk.Score
			if chunk.Score > maxChunkScore {
				maxChunkScore = chunk.Score
			}
			if chunk.Score < minChunkScore {
				minChunkScore = chunk.Score
			}
		}
		avgChunkScore = sum / float64(chunksUsed)
	}

	// Relevant chunks soften the long-answer penalty.
	lengthPenaltyReduction := 0.0
	switch {
	case chunksUsed > topK && avgChunkScore > 0.4:
		relevanceFactor := minFloat(1.0, (avgChunkScore-0.4)/0.3)
		chunkFactor := minFloat(1.0, float64(chunksUsed)/float64(topK)-1)
		lengthPenaltyReduction = minFloat(0.3, relevanceFactor*chunkFactor*0.3)
	case in.useReranking && avgChunkScore > 0.4:
		relevanceFactor := minFloat(1.0, (avgChunkScore-0.4)/0.3)
		chunkFactor := minFloat(1.0, float64(chunksUsed)/float64(topK))
		lengthPenaltyReduction = minFloat(0.3, relevanceFactor*chunkFactor*0.3)
	case in.useHybrid && avgChunkScore > 0.4:
		relevanceFactor := minFloat(1.0, (avgChunkScore-0.4)/0.3)
		chunkFactor := minFloat(1.0, float64(chunksUsed)/float64(topK))
		lengthPenaltyReduction = minFloat(0.25, relevanceFactor*chunkFactor*0.25)
	}

	length := float64(answerLen)
	var lengthAdjustment float64
	switch {
	case length < 50:
		lengthAdjustment = -0.5
	case length < optimalMin:
		lengthAdjustment = 0.3 + (length-50)/(optimalMin-50)*0.3
	case length <= optimalMax:
		rangeSize := optimalMax - optimalMin
		position := 0.5
		if rangeSize > 0 {
			position = (length - optimalMin) / rangeSize
		}
		lengthAdjustment = 0.9 - position*0.2
	case length <= optimalMax+700:
		baseLong := 0.5
		if in.useReranking && in.useHybrid {
			baseLong = 0.8
		} else if in.useReranking || in.useHybrid {
			baseLong = 0.7
		}
		if avgChunkScore > 0.6 {
			baseLong += 0.1
		} else if avgChunkScore > 0.5 {
			baseLong += 0.05
		}
		penalty := (length - optimalMax) / 700 * 0.2
		lengthAdjustment = baseLong - maxFloat(0, penalty-lengthPenaltyReduction)
	default:
		baseVeryLong := 0.2
		if in.useReranking && in.useHybrid {
			baseVeryLong = 0.4
		} else if in.useReranking || in.useHybrid {
			baseVeryLong = 0.3
		}
		if avgChunkScore > 0.6 {
			baseVeryLong += 0.1
		} else if avgChunkScore > 0.5 {
			baseVeryLong += 0.05
		}
		penalty := 0.2 + minFloat(0.2, (length-(optimalMax+700))/2000)
		lengthAdjustment = baseVeryLong - maxFloat(0, penalty-lengthPenaltyReduction)
	}
	score += lengthAdjustment

	if chunksUsed > 1 {
		score += 0.2 + minFloat(0.2, float64(chunksUsed-1)/float64(topK)*0.2)
	}
	if float64(chunksUsed) >= float64(topK)*0.8 {
		score += 0.15
	} else if float64(chunksUsed) < float64(topK)*0.5 && !in.useReranking {
		score -= 0.2
	}

	if in.useReranking {
		if chunksUsed > 1 {
			score += 0.5
		} else {
			score += 0.3
		}
	}
	if in.useHybrid {
		score += 0.35
	}

	if chunksUsed > 0 {
		// Hybrid fusion compresses scores, so its thresholds sit lower.
		highThreshold, mediumThreshold, lowThreshold := 0.75, 0.6, 0.2
		if in.useHybrid {
			highThreshold, mediumThreshold, lowThreshold = 0.6, 0.4, 0.15
		}
		switch {
		case avgChunkScore > highThreshold:
			score += 0.4
		case avgChunkScore > mediumThreshold:
			score += 0.25
		case avgChunkScore > 0.3:
			score += 0.1
		case avgChunkScore < lowThreshold:
			score -= 0.2
		}
		if maxChunkScore-minChunkScore < 0.1 && avgChunkScore > mediumThreshold {
			score += 0.1
		}
	}

	return minFloat(5.0, maxFloat(0.0, score))
}

// GradeAdvanced combines LLM groundedness and completeness judgments
// with the heuristic grade as the relevance component. An LLM failure on
// either judgment degrades to the heuristic grade with 0.5 defaults.
func (g *Grader) GradeAdvanced(ctx context.Context, in gradeInput, model string) domain.QualityMetrics {
	simple := g.Grade(in)
	relevance := simple / 5.0

	var sb strings.Builder
	for i, chunk := range in.chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk.Text)
	}
	contextText := truncateRunes(sb.String(), 2000)

	groundednessPrompt := fmt.Sprintf(`Оцени, насколько факты в ответе подтверждаются предоставленным контекстом.
Верни число от 0.0 до 1.0, где 1.0 = все факты подтверждены, 0.0 = много неподтвержденных фактов.

Контекст:
%s

Ответ:
%s

Оценка groundedness (только число от 0.0 до 1.0):`, contextText, in.answer)

	groundedness, err := g.judge(ctx, model, "Ты помощник, который оценивает, насколько ответ основан на фактах из контекста.", groundednessPrompt)
	if err != nil {
		g.log.Warn("advanced grading failed, using heuristic grade", "error", err)
		return domain.QualityMetrics{Groundedness: 0.5, Completeness: 0.5, Relevance: relevance, OverallScore: simple}
	}

	completenessPrompt := fmt.Sprintf(`Оцени, насколько полно ответ покрывает все аспекты вопроса.
Верни число от 0.0 до 1.0, где 1.0 = полный ответ, 0.0 = неполный ответ.

Вопрос: %s

Ответ: %s

Оценка completeness (только число от 0.0 до 1.0):`, in.question, in.answer)

	completeness, err := g.judge(ctx, model, "Ты помощник, который оценивает полноту ответа относительно вопроса.", completenessPrompt)
	if err != nil {
		g.log.Warn("advanced grading failed, using heuristic grade", "error", err)
		return domain.QualityMetrics{Groundedness: 0.5, Completeness: 0.5, Relevance: relevance, OverallScore: simple}
	}

	return domain.QualityMetrics{
		Groundedness: groundedness,
		Completeness: completeness,
		Relevance:    relevance,
		OverallScore: (groundedness*0.4 + completeness*0.3 + relevance*0.3) * 5.0,
	}
}

// judge asks the LLM for a single number in [0, 1]. A response without a
// parseable number counts as 0.5 rather than an error.
func (g *Grader) judge(ctx context.Context, model, system, prompt string) (float64, error) {
	content, err := g.llm.Complete(ctx, ports.ChatRequest{
		Model: model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   50,
	})
	if err != nil {
		return 0, err
	}

	match := numberRe.FindString(content)
	if match == "" {
		return 0.5, nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0.5, nil
	}
	return minFloat(1.0, maxFloat(0.0, value)), nil
}

// truncateRunes cuts s to at most limit characters on a rune boundary.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
