package dialogue

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// Reprompt is appended when a confirmation answer is neither yes nor no.
const Reprompt = "Please respond with 'yes' to generate the email, or 'no' to start over."

// Question is one scripted prompt. Questions with a Key contribute their
// answer to the summary and to the generation instruction; a question
// without a key (the greeting) is asked but not summarized.
type Question struct {
	Key    string `yaml:"key,omitempty"`
	Prompt string `yaml:"prompt"`
	Label  string `yaml:"label,omitempty"`
	Icon   string `yaml:"icon,omitempty"`
}

// Field is an answered question as seen by the summary and instruction
// templates.
type Field struct {
	Key    string
	Label  string
	Icon   string
	Answer string
}

// TemplateData is passed to the summary and instruction templates.
type TemplateData struct {
	Fields  []Field
	Answers []string
}

// Get returns the answer collected for the question with the given key, or
// an empty string.
func (d TemplateData) Get(key string) string {
	for _, f := range d.Fields {
		if f.Key == key {
			return f.Answer
		}
	}
	return ""
}

// Script is a fixed, ordered sequence of prompts plus the templates used to
// summarize the answers and to build the generation instruction. A Script
// holds no per-conversation state.
type Script struct {
	questions   []Question
	summary     *template.Template
	instruction *template.Template
}

func NewScript(questions []Question, summaryTemplate string, instructionTemplate string) (*Script, error) {
	if len(questions) == 0 {
		return nil, errors.New("script needs at least one question")
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return nil, errors.Errorf("question %d has an empty prompt", i)
		}
	}

	summary, err := template.New("summary").Funcs(sprig.TxtFuncMap()).Parse(summaryTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse summary template")
	}
	instruction, err := template.New("instruction").Funcs(sprig.TxtFuncMap()).Parse(instructionTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse instruction template")
	}

	ret := &Script{
		questions:   append([]Question(nil), questions...),
		summary:     summary,
		instruction: instruction,
	}

	// render once with placeholder answers so broken templates fail here
	// rather than in the middle of a conversation
	placeholders := make([]string, len(questions))
	for i := range placeholders {
		placeholders[i] = "x"
	}
	if _, err := ret.BuildSummary(placeholders); err != nil {
		return nil, err
	}
	if _, err := ret.BuildGenerationInstruction(placeholders); err != nil {
		return nil, err
	}

	return ret, nil
}

// Len is the number of scripted questions (N).
func (s *Script) Len() int {
	return len(s.questions)
}

func (s *Script) Questions() []Question {
	return append([]Question(nil), s.questions...)
}

func (s *Script) FirstPrompt() string {
	return s.questions[0].Prompt
}

// NextPrompt returns the prompt following question index, or false when
// index is the last question.
func (s *Script) NextPrompt(index int) (string, bool) {
	next := index + 1
	if next < 0 || next >= len(s.questions) {
		return "", false
	}
	return s.questions[next].Prompt, true
}

func (s *Script) data(answers []string) TemplateData {
	ret := TemplateData{
		Answers: append([]string(nil), answers...),
	}
	for i, q := range s.questions {
		if q.Key == "" {
			continue
		}
		answer := ""
		if i < len(answers) {
			answer = answers[i]
		}
		ret.Fields = append(ret.Fields, Field{
			Key:    q.Key,
			Label:  q.Label,
			Icon:   q.Icon,
			Answer: answer,
		})
	}
	return ret
}

// BuildSummary lists every collected answer against its label and ends by
// asking for a yes/no confirmation.
func (s *Script) BuildSummary(answers []string) (string, error) {
	var sb strings.Builder
	if err := s.summary.Execute(&sb, s.data(answers)); err != nil {
		return "", errors.Wrap(err, "could not render summary")
	}
	return sb.String(), nil
}

// BuildGenerationInstruction renders the prompt sent to the backend once the
// user confirmed the summary.
func (s *Script) BuildGenerationInstruction(answers []string) (string, error) {
	var sb strings.Builder
	if err := s.instruction.Execute(&sb, s.data(answers)); err != nil {
		return "", errors.Wrap(err, "could not render generation instruction")
	}
	return sb.String(), nil
}

type Confirmation int

const (
	ConfirmationOther Confirmation = iota
	ConfirmationYes
	ConfirmationNo
)

// ParseConfirmation matches the literal answers "yes" and "no", ignoring
// case. Anything else, including surrounding whitespace, is ConfirmationOther.
func ParseConfirmation(text string) Confirmation {
	switch strings.ToLower(text) {
	case "yes":
		return ConfirmationYes
	case "no":
		return ConfirmationNo
	default:
		return ConfirmationOther
	}
}
