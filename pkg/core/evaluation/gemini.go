package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultTextModel = "gemini-2.0-flash"

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements Evaluator and QuestionGenerator on a Gemini text model.
type Gemini struct {
	models contentGenerator
	model  string
}

// NewGemini builds a Gemini-backed evaluation service from a genai client.
func NewGemini(client *genai.Client, model string) *Gemini {
	var models contentGenerator
	if client != nil {
		models = client.Models
	}
	return newGemini(models, model)
}

func newGemini(models contentGenerator, model string) *Gemini {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultTextModel
	}
	return &Gemini{models: models, model: model}
}

// GenerateQuestions asks the model for a JSON array of screening questions.
func (g *Gemini) GenerateQuestions(ctx context.Context, jobRole string, candidateProfile map[string]any, count int) ([]string, error) {
	if count < 1 {
		count = 1
	}
	profileJSON, err := json.Marshal(candidateProfile)
	if err != nil {
		return nil, fmt.Errorf("encode candidate profile: %w", err)
	}
	prompt := fmt.Sprintf("Generate %d screening interview questions for a candidate.\n\n", count) +
		"Job Role: " + jobRole + "\n" +
		"Candidate Profile: " + string(profileJSON) + "\n\n" +
		"Questions should:\n" +
		"1. Test domain knowledge relevant to the role\n" +
		"2. Assess communication skills\n" +
		"3. Be open-ended but specific\n\n" +
		"Return questions as a JSON array of strings."

	text, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseQuestions(text)
}

// Evaluate asks the model to score the paired transcript.
func (g *Gemini) Evaluate(ctx context.Context, questions, answers []string) (Evaluation, error) {
	n := len(questions)
	if len(answers) < n {
		n = len(answers)
	}
	pairs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, "Q: "+questions[i]+"\nA: "+answers[i])
	}
	prompt := "Evaluate this candidate's screening interview responses.\n\n" +
		"Interview Transcript:\n" + strings.Join(pairs, "\n\n") + "\n\n" +
		"Provide evaluation in JSON format with:\n" +
		"1. communication_score: 0-100 score for communication clarity and professionalism\n" +
		"2. domain_knowledge_score: 0-100 score for technical/domain expertise\n" +
		"3. overall_score: 0-100 overall performance score\n" +
		"4. summary: Brief summary of the candidate's performance\n" +
		"5. strengths: List of notable strengths\n" +
		"6. weaknesses: List of areas for improvement\n\n" +
		"Return ONLY valid JSON."

	text, err := g.generateJSON(ctx, prompt)
	if err != nil {
		return Evaluation{}, err
	}
	var ev Evaluation
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	return ev.normalized(), nil
}

func (g *Gemini) generateJSON(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.models == nil {
		return "", fmt.Errorf("evaluation: gemini client is not configured")
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := StripCodeFence(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StripCodeFence removes a surrounding ```json / ``` markdown fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseQuestions(text string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		var wrapped struct {
			Questions []string `json:"questions"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		list = wrapped.Questions
	}
	return list, nil
}
