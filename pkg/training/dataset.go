// Package training loads fine-tuning datasets, validates them and runs the simulated LoRA training demo.
package training

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for dataset files other than CSV, JSON or JSONL
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// UnsupportedFormatMessage is shown to the user for ErrUnsupportedFormat
const UnsupportedFormatMessage = "⚠️ Unsupported file format. Please upload CSV, JSON, or JSONL."

// Dataset formats
const (
	FormatJSONL = "jsonl"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Example is one prompt/completion pair. The Has flags record whether the field was present at all.
type Example struct {
	Prompt        string `json:"prompt"`
	Completion    string `json:"completion"`
	HasPrompt     bool   `json:"-"`
	HasCompletion bool   `json:"-"`
}

// Dataset is a parsed training file
type Dataset struct {
	Name     string    `json:"name"`
	Format   string    `json:"format"`
	Examples []Example `json:"examples"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LoadDataset parses a training file by its extension
func LoadDataset(name string, data []byte) (*Dataset, error) {
	var (
		examples []Example
		format   string
		err      error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl":
		format = FormatJSONL
		examples, err = parseJSONL(data)
	case ".json":
		format = FormatJSON
		examples, err = parseJSON(data)
	case ".csv":
		format = FormatCSV
		examples, err = parseCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return &Dataset{Name: name, Format: format, Examples: examples}, nil
}

func parseJSONL(data []byte) ([]Example, error) {
	var examples []Example

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if raw, ok := obj["messages"]; ok {
			var turns []chatTurn
			if err := json.Unmarshal(raw, &turns); err == nil {
				examples = append(examples, flattenChat(turns))
				continue
			}
		}

		example, err := fromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		examples = append(examples, example)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return examples, nil
}

// flattenChat maps the first user turn to the prompt and the first assistant turn to the completion
func flattenChat(turns []chatTurn) Example {
	example := Example{HasPrompt: true, HasCompletion: true}
	var system string
	userSeen, assistantSeen := false, false
	for _, turn := range turns {
		switch turn.Role {
		case "system":
			if system == "" {
				system = turn.Content
			}
		case "user":
			if !userSeen {
				example.Prompt = turn.Content
				userSeen = true
			}
		case "assistant":
			if !assistantSeen {
				example.Completion = turn.Content
				assistantSeen = true
			}
		}
	}
	if system != "" && example.Prompt != "" {
		example.Prompt = system + "\n\n" + example.Prompt
	}
	return example
}

func parseJSON(data []byte) ([]Example, error) {
	trimmed := bytes.TrimSpace(data)

	var objects []map[string]json.RawMessage
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var single map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, err
		}
		objects = append(objects, single)
	} else if err := json.Unmarshal(trimmed, &objects); err != nil {
		return nil, err
	}

	examples := make([]Example, 0, len(objects))
	for i, obj := range objects {
		example, err := fromObject(obj)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		examples = append(examples, example)
	}
	return examples, nil
}

func fromObject(obj map[string]json.RawMessage) (Example, error) {
	var example Example
	if raw, ok := obj["prompt"]; ok {
		example.HasPrompt = true
		if err := json.Unmarshal(raw, &example.Prompt); err != nil {
			return example, fmt.Errorf("prompt must be a string: %w", err)
		}
	}
	if raw, ok := obj["completion"]; ok {
		example.HasCompletion = true
		if err := json.Unmarshal(raw, &example.Completion); err != nil {
			return example, fmt.Errorf("completion must be a string: %w", err)
		}
	}
	return example, nil
}

func parseCSV(data []byte) ([]Example, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	promptCol, completionCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "prompt":
			promptCol = i
		case "completion":
			completionCol = i
		}
	}

	var examples []Example
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		example := Example{HasPrompt: promptCol >= 0, HasCompletion: completionCol >= 0}
		if promptCol >= 0 && promptCol < len(record) {
			example.Prompt = record[promptCol]
		}
		if completionCol >= 0 && completionCol < len(record) {
			example.Completion = record[completionCol]
		}
		examples = append(examples, example)
	}
	return examples, nil
}
