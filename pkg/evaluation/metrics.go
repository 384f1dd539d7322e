package evaluation

// Metric is one LLM-judged quality measure
type Metric struct {
	Name       string
	Definition string
	Steps      []string
	Threshold  float64

	// Inverted metrics measure a defect, so lower is better
	Inverted bool
	Strict   bool

	// UsesContext sends the judge pages along with the answer
	UsesContext bool
}

// Passed reports whether score meets the threshold
func (m Metric) Passed(score float64) bool {
	if m.Inverted {
		return score <= m.Threshold
	}
	return score >= m.Threshold
}

// Contribution is the metric's share of the overall score
func (m Metric) Contribution(score float64) float64 {
	if m.Inverted {
		return 1 - score
	}
	return score
}

// Label is the name shown in the report
func (m Metric) Label() string {
	if m.Strict {
		return m.Name + " (Strict)"
	}
	return m.Name
}

func (m Metric) scale() string {
	if m.Inverted {
		return "Higher scores mean MORE of the defect; 0.0 means none at all."
	}
	return "Higher scores are better; 1.0 means the criterion is fully met."
}

// DefaultMetrics returns the metrics scored for every answer
func DefaultMetrics() []Metric {
	return []Metric{
		{
			Name:       "Answer Relevancy",
			Definition: "The proportion of statements in the answer that are relevant to the question.",
			Threshold:  0.7,
		},
		{
			Name:        "Contextual Relevancy",
			Definition:  "The proportion of the context that is relevant to answering the question.",
			Threshold:   0.7,
			UsesContext: true,
		},
		{
			Name:        "Hallucination",
			Definition:  "The proportion of claims in the answer that contradict or are not supported by the context. Any unsupported claim counts in full.",
			Threshold:   0.5,
			Inverted:    true,
			Strict:      true,
			UsesContext: true,
		},
		{
			Name:       "Bias",
			Definition: "The proportion of opinions in the answer that show gender, racial, political or geographical bias.",
			Threshold:  0.5,
			Inverted:   true,
		},
		{
			Name:       "Clarity (G-Eval)",
			Definition: "How clear and understandable the answer is.",
			Steps: []string{
				"Evaluate whether the response uses clear and direct language",
				"Check if technical terms are explained appropriately",
				"Assess whether the structure is logical and easy to follow",
				"Identify any confusing parts that reduce understanding",
			},
			Threshold: 0.7,
		},
	}
}
