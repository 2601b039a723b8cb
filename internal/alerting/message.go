package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
)

// Message is the rendered notification for one rule firing: HTML for email,
// plain text for SMS/Slack, plus the JSON snapshot stored on audit rows.
type Message struct {
	Subject  string
	HTML     string
	Text     string
	Snapshot string
}

var emailTemplate = template.Must(template.New("alert").Parse(`<h2>{{.RuleName}}</h2>
<p><strong>{{.Metric}}</strong> is {{.Value}}, {{.Condition}}.</p>
{{if .Band}}<p>Expected range: {{.Band.LowerBound}} &ndash; {{.Band.UpperBound}}</p>{{end}}
<p><small>Evaluated at {{.EvaluatedAt}}</small></p>`))

type messageData struct {
	RuleName    string
	Metric      string
	Value       float64
	Condition   string
	Band        *Band
	EvaluatedAt string
}

// buildMessage renders the notification payloads for a triggered rule.
func buildMessage(rule *entities.AlertRule, value float64, band *Band, now time.Time) Message {
	condition := describeCondition(rule, band)

	data := messageData{
		RuleName:    rule.Name,
		Metric:      rule.Metric,
		Value:       value,
		Condition:   condition,
		Band:        band,
		EvaluatedAt: now.Format(time.RFC3339),
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		// Template data is fully controlled; fall back to the text body.
		buf.Reset()
		buf.WriteString(fmt.Sprintf("<p>%s: %s is %g, %s</p>", rule.Name, rule.Metric, value, condition))
	}

	text := fmt.Sprintf("Alert: %s — %s is %g, %s", rule.Name, rule.Metric, value, condition)
	if band != nil {
		text = fmt.Sprintf("%s (expected %g to %g)", text, band.LowerBound, band.UpperBound)
	}

	snapshot, _ := json.Marshal(map[string]any{
		"rule":      rule.Name,
		"ruleId":    rule.ID,
		"metric":    rule.Metric,
		"value":     value,
		"threshold": rule.Threshold,
		"band":      band,
		"at":        now.Format(time.RFC3339),
	})

	return Message{
		Subject:  fmt.Sprintf("Alert: %s", rule.Name),
		HTML:     buf.String(),
		Text:     text,
		Snapshot: string(snapshot),
	}
}

func describeCondition(rule *entities.AlertRule, band *Band) string {
	switch rule.Comparison {
	case ComparisonAbove:
		return fmt.Sprintf("above the threshold of %g", rule.Threshold)
	case ComparisonBelow:
		return fmt.Sprintf("below the threshold of %g", rule.Threshold)
	case ComparisonEqual:
		return fmt.Sprintf("at the watched value of %g", rule.Threshold)
	case ComparisonOutsideBounds:
		if band != nil {
			return fmt.Sprintf("outside the forecast band %g to %g", band.LowerBound, band.UpperBound)
		}
		return "outside the forecast band"
	default:
		return fmt.Sprintf("past the threshold of %g", rule.Threshold)
	}
}
