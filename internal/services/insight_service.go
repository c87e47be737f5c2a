package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"struk/internal/analytics"
	"struk/internal/core"
	"struk/internal/ingest"
	"struk/internal/log"
)

// Advisor generates free text from a prompt.
type Advisor interface {
	Advise(ctx context.Context, prompt string) (string, error)
}

// Insight is the advisor's reading of a month of spending.
type Insight struct {
	Suggestion         string   `json:"suggestion"`
	Warning            *string  `json:"warning"`
	RecommendedActions []string `json:"recommendedActions"`
}

type insightPayload struct {
	Suggestion         *string  `json:"suggestion"`
	Warning            *string  `json:"warning"`
	RecommendedActions []string `json:"recommended_actions"`
}

// InsightService asks the advisor for spending advice on the current month.
type InsightService struct {
	receipts *ReceiptStore
	profiles *ProfileService
	advisor  Advisor
	timeout  time.Duration
	logger   *log.Logger
}

func NewInsightService(receipts *ReceiptStore, profiles *ProfileService, advisor Advisor, timeout time.Duration) *InsightService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InsightService{
		receipts: receipts,
		profiles: profiles,
		advisor:  advisor,
		timeout:  timeout,
		logger:   receipts.logger.WithComponent(log.ComponentGemini),
	}
}

// Insights builds advice from the income and the receipts of now's month.
// A month without receipts is a ValidationError.
func (s *InsightService) Insights(ctx context.Context, userID string, now time.Time) (Insight, error) {
	receipts, err := s.receipts.List(ctx, userID, nil)
	if err != nil {
		return Insight{}, err
	}
	month := analytics.MonthReceipts(receipts, now)
	if len(month) == 0 {
		return Insight{}, core.NewValidationError("monthReceipts", "no receipts recorded this month")
	}
	income, err := s.profiles.Income(ctx, userID)
	if err != nil {
		return Insight{}, err
	}

	prompt, err := insightPrompt(income, month)
	if err != nil {
		return Insight{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.advisor.Advise(callCtx, prompt)
	if err != nil {
		return Insight{}, &core.ExtractionError{Reason: "advisor unavailable", RawText: raw, Cause: err}
	}

	insight, err := ParseInsight(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "Advisor output rejected",
			log.FieldUserID, userID,
			log.FieldError, err)
		return Insight{}, err
	}
	return insight, nil
}

// ParseInsight decodes the advisor's JSON, fenced or not.
func ParseInsight(raw string) (Insight, error) {
	var p insightPayload
	if err := json.Unmarshal([]byte(ingest.StripFences(raw)), &p); err != nil {
		return Insight{}, &core.ExtractionError{Reason: "advice is not valid JSON", RawText: raw, Cause: err}
	}
	if p.Suggestion == nil || strings.TrimSpace(*p.Suggestion) == "" {
		return Insight{}, &core.ExtractionError{Reason: "advice has no suggestion", RawText: raw}
	}
	out := Insight{
		Suggestion:         strings.TrimSpace(*p.Suggestion),
		RecommendedActions: []string{},
	}
	if p.Warning != nil && strings.TrimSpace(*p.Warning) != "" {
		w := strings.TrimSpace(*p.Warning)
		out.Warning = &w
	}
	for _, a := range p.RecommendedActions {
		if a = strings.TrimSpace(a); a != "" {
			out.RecommendedActions = append(out.RecommendedActions, a)
		}
	}
	return out, nil
}

func insightPrompt(income core.Money, month []core.Receipt) (string, error) {
	spending, err := json.MarshalIndent(month, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode month receipts: %w", err)
	}
	return fmt.Sprintf(`Here is one user's spending for the current month.

Monthly income: %s

Receipts:
%s

Based on this data, provide:
- suggestion (string): general financial advice based on the spending pattern.
- warning (string or null): a warning if one category is too large.
- recommended_actions (array of string): concrete actions to spend less.

Answer with JSON only, for example:
{
  "suggestion": "Most of your spending is on food. Consider cooking at home.",
  "warning": "Entertainment is over 30%% of this month's spending.",
  "recommended_actions": ["Set a monthly budget per category.", "Avoid impulse purchases."]
}`, income, spending), nil
}
