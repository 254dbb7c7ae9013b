package monitor

import "time"

// Alert thresholds.
const (
	minQualityScore    = 2.5
	minConfidenceScore = 0.3
	maxErrorRate       = 0.1
	declineDelta       = 0.5
)

// Alert flags a quality or reliability problem detected over the
// recent query window.
type Alert struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// Alerts inspects the recent window and returns any active alerts.
// Quality checks need at least 5 recorded queries; until then only the
// error-rate check can fire.
func (c *Collector) Alerts() []Alert {
	recent := c.Recent(10)
	now := time.Now().UTC()

	var alerts []Alert
	addAlert := func(alertType, severity, message string, value, threshold float64) {
		alerts = append(alerts, Alert{
			Type:      alertType,
			Severity:  severity,
			Message:   message,
			Value:     value,
			Threshold: threshold,
			Timestamp: now,
		})
	}

	if len(recent) > 0 {
		failures := 0
		for _, r := range recent {
			if r.ErrorOccurred {
				failures++
			}
		}
		errorRate := float64(failures) / float64(len(recent))
		if len(recent) >= 5 && errorRate > maxErrorRate {
			addAlert("high_error_rate", "critical",
				"query error rate over recent window exceeds threshold",
				errorRate, maxErrorRate)
		}
	}

	// Retrieval-only records carry no quality data yet; only evaluated
	// answers feed the quality checks.
	scores := make([]float64, 0, len(recent))
	for _, r := range recent {
		if !r.ErrorOccurred && r.QualityScore > 0 {
			scores = append(scores, r.QualityScore)
		}
	}
	if len(scores) >= 5 {
		avg := mean(scores)
		if avg < minQualityScore {
			addAlert("low_quality", "high",
				"recent average answer quality is below threshold",
				avg, minQualityScore)
		}

		firstHalf := mean(scores[:len(scores)/2])
		secondHalf := mean(scores[len(scores)/2:])
		if secondHalf < firstHalf-declineDelta {
			addAlert("declining_quality", "medium",
				"answer quality shows a declining trend",
				secondHalf, firstHalf-declineDelta)
		}
	}

	confidences := make([]float64, 0, len(recent))
	for _, r := range recent {
		if !r.ErrorOccurred && r.ConfidenceScore > 0 {
			confidences = append(confidences, r.ConfidenceScore)
		}
	}
	if len(confidences) > 5 {
		confidences = confidences[len(confidences)-5:]
	}
	if len(confidences) >= 5 {
		avg := mean(confidences)
		if avg < minConfidenceScore {
			addAlert("low_confidence", "medium",
				"recent average answer confidence is below threshold",
				avg, minConfidenceScore)
		}
	}

	return alerts
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
