package crew

import (
	"strconv"
	"strings"
	"time"
)

// Well-known run input keys.
const (
	InputUserQuery   = "user_query"
	InputCurrentYear = "current_year"
)

// RunRecordFile is where a run's status record is stored beside its outputs.
const RunRecordFile = "run.json"

// DefaultQuestion is used when a caller runs the crew without a question.
const DefaultQuestion = "What is the impact of rising US interest rates on emerging economies in the global south?"

// AgentSpec describes one role consumed by the agent executor.
type AgentSpec struct {
	Name      string   `yaml:"name" json:"name" validate:"required"`
	Role      string   `yaml:"role" json:"role" validate:"required"`
	Goal      string   `yaml:"goal" json:"goal" validate:"required"`
	Backstory string   `yaml:"backstory" json:"backstory"`
	Tools     []string `yaml:"tools" json:"tools,omitempty" validate:"dive,required"`
	Verbose   bool     `yaml:"verbose" json:"verbose,omitempty"`
}

// TaskSpec is one pipeline step. Description is a template that may embed
// run inputs and the outputs of the tasks named in Context as {name}.
type TaskSpec struct {
	Name           string   `yaml:"name" json:"name" validate:"required"`
	Description    string   `yaml:"description" json:"description" validate:"required"`
	ExpectedOutput string   `yaml:"expected_output" json:"expected_output" validate:"required"`
	Agent          string   `yaml:"agent" json:"agent" validate:"required"`
	Context        []string `yaml:"context" json:"context,omitempty" validate:"dive,required"`
	OutputFile     string   `yaml:"output_file" json:"output_file,omitempty"`
}

// Crew is the validated, ordered agent/task configuration.
// Task declaration order is the execution order.
type Crew struct {
	Name   string      `yaml:"name" json:"name" validate:"required"`
	Inputs []string    `yaml:"inputs" json:"inputs" validate:"dive,required"`
	Agents []AgentSpec `yaml:"agents" json:"agents" validate:"required,min=1,dive"`
	Tasks  []TaskSpec  `yaml:"tasks" json:"tasks" validate:"required,min=1,dive"`
}

// Agent looks up an agent by name.
func (c *Crew) Agent(name string) (AgentSpec, bool) {
	if c == nil {
		return AgentSpec{}, false
	}
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentSpec{}, false
}

// Task looks up a task by name.
func (c *Crew) Task(name string) (TaskSpec, bool) {
	if c == nil {
		return TaskSpec{}, false
	}
	for _, t := range c.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskSpec{}, false
}

// FinalTask returns the last declared task, whose output is the run's report.
func (c *Crew) FinalTask() (TaskSpec, bool) {
	if c == nil || len(c.Tasks) == 0 {
		return TaskSpec{}, false
	}
	return c.Tasks[len(c.Tasks)-1], true
}

// FinalReportFile is the output file of the final task.
func (c *Crew) FinalReportFile() string {
	t, ok := c.FinalTask()
	if !ok {
		return ""
	}
	return t.OutputFile
}

// OutputFiles lists every declared output file in task order.
func (c *Crew) OutputFiles() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.OutputFile != "" {
			out = append(out, t.OutputFile)
		}
	}
	return out
}

// DefaultInputs builds the standard run inputs: the question (or
// DefaultQuestion) and the current year.
func DefaultInputs(question string, now time.Time) map[string]string {
	q := strings.TrimSpace(question)
	if q == "" {
		q = DefaultQuestion
	}
	return map[string]string{
		InputUserQuery:   q,
		InputCurrentYear: strconv.Itoa(now.Year()),
	}
}
