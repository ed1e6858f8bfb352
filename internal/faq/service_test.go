package faq

import (
	"context"
	"strings"
	"testing"

	"intake_backend/platform/logger"
	"intake_backend/platform/qdrant"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeStore struct {
	results  []qdrant.SearchResult
	upserted []qdrant.Point
	filter   map[string]interface{}
}

func (f *fakeStore) Search(_ context.Context, _ []float32, _ int, filter map[string]interface{}) ([]qdrant.SearchResult, error) {
	f.filter = filter
	return f.results, nil
}

func (f *fakeStore) Upsert(_ context.Context, points []qdrant.Point) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

type fakeLLM struct{ reply string }

func (f fakeLLM) Generate(_ context.Context, _ string) (string, error) {
	return f.reply, nil
}

func chunkResult(text string, index int) qdrant.SearchResult {
	return qdrant.SearchResult{
		Score: 0.9,
		Payload: map[string]interface{}{
			"text":        text,
			"source":      "faq.md",
			"chunk_index": float64(index),
			"study_id":    "zyn",
		},
	}
}

func TestAnswerQuestionReturnsGeneratedText(t *testing.T) {
	store := &fakeStore{results: []qdrant.SearchResult{chunkResult("Compensation is $50 per visit.", 0)}}
	svc := NewService(fakeEmbedder{}, store, fakeLLM{reply: "Participants receive $50 per visit."}, 3, logger.New("development"))

	ans, err := svc.AnswerQuestion(context.Background(), "How much does the study pay?", "zyn")
	if err != nil {
		t.Fatalf("AnswerQuestion() error = %v", err)
	}
	if ans.Text != "Participants receive $50 per visit." {
		t.Errorf("Text = %q", ans.Text)
	}
	if len(ans.References) != 1 || ans.References[0].Source != "faq.md" {
		t.Errorf("References = %+v", ans.References)
	}
}

func TestAnswerQuestionScopesSearchToStudy(t *testing.T) {
	store := &fakeStore{results: []qdrant.SearchResult{chunkResult("Some context.", 0)}}
	svc := NewService(fakeEmbedder{}, store, fakeLLM{reply: "ok"}, 3, logger.New("development"))

	if _, err := svc.AnswerQuestion(context.Background(), "What is this about?", "zyn"); err != nil {
		t.Fatal(err)
	}
	raw, _ := store.filter["must"].([]map[string]interface{})
	if len(raw) != 1 || raw[0]["key"] != "study_id" {
		t.Errorf("filter = %+v", store.filter)
	}
}

func TestAnswerQuestionNoResults(t *testing.T) {
	svc := NewService(fakeEmbedder{}, &fakeStore{}, fakeLLM{reply: "unused"}, 3, logger.New("development"))

	ans, err := svc.AnswerQuestion(context.Background(), "Anything?", "zyn")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != noInfoAnswer {
		t.Errorf("Text = %q", ans.Text)
	}
}

func TestAnswerQuestionSuppressesCoaching(t *testing.T) {
	replies := []string{
		"To qualify, you should say you smoke daily.",
		"You should answer yes to the smoking question.",
		"Make sure you report at least three years of smoking.",
	}
	for _, reply := range replies {
		store := &fakeStore{results: []qdrant.SearchResult{chunkResult("Eligibility is decided by staff.", 0)}}
		svc := NewService(fakeEmbedder{}, store, fakeLLM{reply: reply}, 3, logger.New("development"))

		ans, err := svc.AnswerQuestion(context.Background(), "Will I qualify?", "zyn")
		if err != nil {
			t.Fatal(err)
		}
		if ans.Text != safeFallback {
			t.Errorf("reply %q passed the guardrail: %q", reply, ans.Text)
		}
		if len(ans.References) != 1 {
			t.Errorf("references dropped on fallback: %+v", ans.References)
		}
	}
}

func TestIndexDocument(t *testing.T) {
	doc := "## Question one\nAnswer one.\n\n## Question two\nAnswer two.\n"
	path := writeDoc(t, "faq.md", "# Title\n\n"+doc)

	store := &fakeStore{}
	svc := NewService(fakeEmbedder{}, store, fakeLLM{}, 3, logger.New("development"))

	n, err := svc.IndexDocument(context.Background(), "zyn", path)
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if n != 2 || len(store.upserted) != 2 {
		t.Fatalf("indexed %d chunks, upserted %d", n, len(store.upserted))
	}
	payload := store.upserted[0].Payload
	if payload["study_id"] != "zyn" || payload["source"] != "faq.md" {
		t.Errorf("payload = %+v", payload)
	}
	if !strings.HasPrefix(payload["text"].(string), "## Question one") {
		t.Errorf("text = %q", payload["text"])
	}
}
