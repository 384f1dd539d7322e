package training

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

var sampleExamples = []Example{
	{
		Prompt:     "What is concrete barrier Type 60M?",
		Completion: "Concrete barrier Type 60M is a safety barrier specified in Caltrans Standard Plans. Key features include: vertical offset specification, PCC base requirement, and #5 bar reinforcement.",
	},
	{
		Prompt:     "What changes were made to Plan A76A in 2024?",
		Completion: "Plan A76A 2024 changes: 1) Replaced #4 bar with #5 bar, 2) Added 2\" minimum toe, 3) Changed base from 'well compacted base' to 'Pvmt or PCC', 4) Added note 10 for chamfer requirements.",
	},
	{
		Prompt:     "Explain the RAGAS evaluation framework",
		Completion: "RAGAS (Retrieval Augmented Generation Assessment) is a framework for evaluating RAG systems with metrics: Faithfulness, Answer Relevancy, Context Precision, and Context Recall.",
	},
	{
		Prompt:     "What is LLM-as-a-Judge?",
		Completion: "LLM-as-a-Judge uses one language model to evaluate outputs from another model. It provides automated quality assessment based on research-backed metrics like coherence, consistency, and groundedness.",
	},
	{
		Prompt:     "How do you fine-tune an LLM?",
		Completion: "Fine-tuning involves: 1) Prepare domain-specific training data in prompt-completion pairs, 2) Format as JSONL, 3) Upload to training platform, 4) Configure hyperparameters, 5) Train the model, 6) Evaluate performance.",
	},
}

// SampleExamples returns the built-in demo examples
func SampleExamples() []Example {
	examples := make([]Example, len(sampleExamples))
	for i, e := range sampleExamples {
		e.HasPrompt, e.HasCompletion = true, true
		examples[i] = e
	}
	return examples
}

// WantsSamples reports whether the prompt asks for sample data
func WantsSamples(prompt string) bool {
	lower := strings.ToLower(prompt)
	return strings.Contains(lower, "generate") && strings.Contains(lower, "sample")
}

// Sample returns the sample dataset encoded in format
func Sample(format string) ([]byte, error) {
	switch format {
	case FormatJSONL:
		var buf bytes.Buffer
		for _, e := range sampleExamples {
			line, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(sampleExamples, "", "  ")
	case FormatCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"prompt", "completion"})
		for _, e := range sampleExamples {
			_ = w.Write([]string{e.Prompt, e.Completion})
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// SampleMarkdown shows the sample dataset in JSONL and CSV form
func SampleMarkdown() (string, error) {
	jsonl, err := Sample(FormatJSONL)
	if err != nil {
		return "", err
	}
	csvBody, err := Sample(FormatCSV)
	if err != nil {
		return "", err
	}

	preview := string(csvBody)
	if len(preview) > 300 {
		preview = preview[:300] + "..."
	}

	return fmt.Sprintf("## 📊 Sample Training Dataset Generated\n\n### JSONL Format (Recommended)\n```jsonl\n%s```\n\n### CSV Format\n```csv\n%s\n```\n**Ready to train!** Upload your data and start a training job.",
		jsonl, preview), nil
}
