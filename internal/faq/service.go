package faq

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"intake_backend/platform/logger"
	"intake_backend/platform/qdrant"
)

// Embedder produces embedding vectors for texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorStore is the slice of the Qdrant client the service uses.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, limit int, filter map[string]interface{}) ([]qdrant.SearchResult, error)
	Upsert(ctx context.Context, points []qdrant.Point) error
}

// Reference points back to the document chunk an answer drew from.
type Reference struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunkIndex"`
}

// Answer is the FAQ service's reply.
type Answer struct {
	Text       string      `json:"text"`
	References []Reference `json:"references"`
}

// Answers never coach participants through screening; generated output that
// slips into qualification advice is replaced with this fallback.
const safeFallback = "I can only share information from the study FAQ. " +
	"I can't provide guidance on how to qualify."

const noInfoAnswer = "I don't have information about that in the study FAQ."

var coachingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)to qualify`),
	regexp.MustCompile(`(?i)you should (say|answer|report|claim|state)`),
	regexp.MustCompile(`(?i)in order to (be eligible|pass|qualify)`),
	regexp.MustCompile(`(?i)make sure (you|to) (say|answer|report)`),
}

// Service answers FAQ questions through retrieval-augmented generation.
type Service struct {
	embedder Embedder
	store    VectorStore
	llm      Generator
	topK     int
	log      *logger.Logger
}

func NewService(embedder Embedder, store VectorStore, llm Generator, topK int, log *logger.Logger) *Service {
	if topK <= 0 {
		topK = 3
	}
	return &Service{embedder: embedder, store: store, llm: llm, topK: topK, log: log}
}

// IndexDocument chunks, embeds, and stores one FAQ document. Returns the
// number of chunks indexed.
func (s *Service) IndexDocument(ctx context.Context, studyID, path string) (int, error) {
	chunks, err := LoadAndChunk(path, studyID, 0)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", path, err)
	}

	points := make([]qdrant.Point, len(chunks))
	for i, c := range chunks {
		points[i] = qdrant.Point{
			ID:     uuid.New().String(),
			Vector: vectors[i],
			Payload: map[string]interface{}{
				"text":        c.Text,
				"source":      c.Source,
				"chunk_index": c.ChunkIndex,
				"study_id":    c.StudyID,
			},
		}
	}
	if err := s.store.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("upsert document %s: %w", path, err)
	}
	return len(chunks), nil
}

// AnswerQuestion retrieves study-scoped context and generates an answer.
func (s *Service) AnswerQuestion(ctx context.Context, question, studyID string) (Answer, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("embed question: %w", err)
	}

	filter := map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "study_id", "match": map[string]interface{}{"value": studyID}},
		},
	}
	results, err := s.store.Search(ctx, vector, s.topK, filter)
	if err != nil {
		return Answer{}, fmt.Errorf("search faq chunks: %w", err)
	}
	if len(results) == 0 {
		return Answer{Text: noInfoAnswer, References: []Reference{}}, nil
	}

	contextParts := make([]string, 0, len(results))
	references := make([]Reference, 0, len(results))
	for _, r := range results {
		text, _ := r.Payload["text"].(string)
		if text == "" {
			continue
		}
		contextParts = append(contextParts, text)
		source, _ := r.Payload["source"].(string)
		references = append(references, Reference{
			Source:     source,
			ChunkIndex: intPayload(r.Payload["chunk_index"]),
		})
	}
	if len(contextParts) == 0 {
		return Answer{Text: noInfoAnswer, References: []Reference{}}, nil
	}

	prompt := buildPrompt(strings.Join(contextParts, "\n\n"), question)

	raw, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	if containsCoaching(raw) {
		s.log.Warn("faq answer suppressed by coaching guardrail", "study_id", studyID)
		return Answer{Text: safeFallback, References: references}, nil
	}
	return Answer{Text: raw, References: references}, nil
}

func buildPrompt(contextText, question string) string {
	return "You are a helpful assistant answering questions about a clinical study. " +
		"Answer based on the provided context. If the user's question relates to " +
		"any topic covered in the context, provide the relevant information even if " +
		"the wording differs. Be generous in matching intent — for example, a question " +
		"about 'how would I be paid' should be answered with compensation details. " +
		"Do NOT provide guidance on how to qualify for the study. " +
		"Do NOT mention eligibility criteria or screening logic. " +
		"Only say you don't have the information if the context is entirely unrelated " +
		"to the question.\n\n" +
		"Context:\n" + contextText + "\n\n" +
		"Question: " + question + "\n\n" +
		"Answer:"
}

func containsCoaching(text string) bool {
	for _, p := range coachingPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func intPayload(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}
