// Package queryprompt holds the query-parsing prompt and the decoder for the
// model's answer. It is shared by every chat provider.
package queryprompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
)

const SystemPrompt = "You are a search query parser that converts natural language into structured JSON. Always respond with valid JSON only, no additional text."

// Build renders the user prompt. The current date and instant are included
// so relative phrases resolve against now.
func Build(query string, now time.Time) string {
	return fmt.Sprintf(`IMPORTANT: Today's date is %s (%s)

Parse this email search query into structured filters.

Query: %q

Extract the following information:
- topic: main subject/keywords to search for (if the query is just a keyword or phrase with no other context, use that as the topic)
- timeframe: relative date range (e.g., "last week" -> 7 days ago, "this month" -> start of current month)
- sender: person name or email domain if mentioned
- bucket: category/bucket name if mentioned
- hasAttachment: true if query mentions attachments

Return JSON only in this exact format:
{
  "topic": "string or null",
  "timeframe": { "start": "ISO date string", "end": "ISO date string" } or null,
  "sender": "string or null",
  "bucket": "string or null",
  "hasAttachment": boolean or null
}

Examples:
- "instagram" -> {"topic": "instagram", "timeframe": null, "sender": null, "bucket": null, "hasAttachment": null}
- "important emails about budget" -> {"topic": "budget", "timeframe": null, "sender": null, "bucket": "Important", "hasAttachment": null}
- "emails from John" -> {"topic": null, "timeframe": null, "sender": "John", "bucket": null, "hasAttachment": null}

Return ONLY the JSON object, no additional text.`,
		now.Format("2006-01-02"),
		now.Format(time.RFC3339),
		query,
	)
}

type rawTimeframe struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type rawFilter struct {
	Topic         *string       `json:"topic"`
	Timeframe     *rawTimeframe `json:"timeframe"`
	Sender        *string       `json:"sender"`
	Bucket        *string       `json:"bucket"`
	HasAttachment *bool         `json:"hasAttachment"`
}

// Decode reads the model answer into a ParsedFilter. Answers that are not
// valid JSON get one repair pass; anything still unreadable, and any
// unparseable timestamp, is an ErrQueryParse.
func Decode(raw string) (domain.ParsedFilter, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return domain.ParsedFilter{}, domain.WrapError(domain.ErrQueryParse, "decode query filter", errors.New("empty model answer"))
	}

	var parsed rawFilter
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return domain.ParsedFilter{}, domain.WrapError(domain.ErrQueryParse, "decode query filter", err)
		}
		parsed = rawFilter{}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			return domain.ParsedFilter{}, domain.WrapError(domain.ErrQueryParse, "decode query filter", err)
		}
	}

	filter := domain.ParsedFilter{
		Topic:         cleanString(parsed.Topic),
		Sender:        cleanString(parsed.Sender),
		Bucket:        cleanString(parsed.Bucket),
		HasAttachment: parsed.HasAttachment,
	}
	if parsed.Timeframe != nil {
		tf, err := decodeTimeframe(*parsed.Timeframe)
		if err != nil {
			return domain.ParsedFilter{}, domain.WrapError(domain.ErrQueryParse, "decode timeframe", err)
		}
		filter.Timeframe = tf
	}
	return filter, nil
}

func decodeTimeframe(raw rawTimeframe) (*domain.Timeframe, error) {
	start, err := parseInstant(raw.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := parseInstant(raw.End)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if start == nil && end == nil {
		return nil, nil
	}
	return &domain.Timeframe{Start: start, End: end}, nil
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseInstant(value *string) (*time.Time, error) {
	s := cleanString(value)
	if s == "" {
		return nil, nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

// cleanString maps JSON null, blanks and the literal "null" to "".
func cleanString(value *string) string {
	if value == nil {
		return ""
	}
	s := strings.TrimSpace(*value)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}

func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
