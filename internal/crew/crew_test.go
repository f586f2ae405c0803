package crew

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCrewMatchesWorldEconomicsLayout(t *testing.T) {
	c := Default()
	require.Len(t, c.Agents, 4)
	require.Len(t, c.Tasks, 4)

	names := make([]string, 0, len(c.Tasks))
	for _, task := range c.Tasks {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{"user_analysis_task", "research_task", "analysis_task", "reporting_task"}, names)

	final, ok := c.FinalTask()
	require.True(t, ok)
	assert.Equal(t, []string{"user_analysis_task", "analysis_task"}, final.Context)
	assert.Equal(t, "final_report.md", c.FinalReportFile())
	assert.Equal(t, []string{
		"user_analysis_report.md",
		"research_task_report.md",
		"analysis_task_report.md",
		"final_report.md",
	}, c.OutputFiles())

	researcher, ok := c.Agent("data_researcher")
	require.True(t, ok)
	assert.Equal(t, []string{"web_search", "read_webpage"}, researcher.Tools)
	assert.NotContains(t, researcher.Role, "\n")
}

func TestDefaultCrewValidatesAgainstKnownTools(t *testing.T) {
	require.NoError(t, Validate(Default(), "web_search", "read_webpage"))

	err := Validate(Default(), "web_search")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), `unknown tool "read_webpage"`)
}

func TestParseRejectsForwardAndUnknownContext(t *testing.T) {
	raw := `
name: broken
inputs: [user_query]
agents:
  - {name: a, role: r, goal: g}
tasks:
  - {name: first, agent: a, description: "uses {second}", expected_output: x, context: [second]}
  - {name: second, agent: a, description: d, expected_output: x, context: [ghost, second]}
  - {name: third, agent: nobody, description: d, expected_output: x, output_file: out.md}
`
	_, err := Parse([]byte(raw))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	joined := strings.Join(verr.Problems, "\n")
	assert.Contains(t, joined, `task "first" references "second" which is declared later`)
	assert.Contains(t, joined, `task "second" references unknown task "ghost"`)
	assert.Contains(t, joined, `task "second" lists itself as context`)
	assert.Contains(t, joined, `task "third" assigned to unknown agent "nobody"`)
}

func TestParseRejectsUnboundPlaceholder(t *testing.T) {
	raw := `
name: p
inputs: [user_query]
agents:
  - {name: a, role: r, goal: g}
tasks:
  - {name: t1, agent: a, description: "{user_query} in {current_year}", expected_output: x, output_file: r.md}
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound placeholder {current_year}")
}

func TestParseRejectsBadOutputFilesAndUnknownKeys(t *testing.T) {
	raw := `
name: p
agents:
  - {name: a, role: r, goal: g}
tasks:
  - {name: t1, agent: a, description: d, expected_output: x, output_file: ../escape.md}
  - {name: t2, agent: a, description: d, expected_output: x, output_file: same.md}
  - {name: t3, agent: a, description: d, expected_output: x, output_file: same.md}
  - {name: t4, agent: a, description: d, expected_output: x}
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `"../escape.md" is not a clean relative path`)
	assert.Contains(t, msg, `tasks "t2" and "t3" write the same output file "same.md"`)
	assert.Contains(t, msg, `final task "t4" must declare an output_file`)

	_, err = Parse([]byte("name: x\nunknown_key: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode yaml")
}

func TestParseRejectsReservedRunRecordFile(t *testing.T) {
	raw := `
name: p
agents:
  - {name: a, role: r, goal: g}
tasks:
  - {name: t1, agent: a, description: d, expected_output: x, output_file: run.json}
`
	_, err := Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output file "run.json" is reserved for the run record`)
}

func TestParseReportsMissingRequiredFields(t *testing.T) {
	_, err := Parse([]byte("name: empty\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Crew.Agents")
	assert.Contains(t, err.Error(), "Crew.Tasks")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crew.yaml")
	require.NoError(t, os.WriteFile(path, defaultCrewYAML, 0o644))
	c, err := Load(path, "web_search", "read_webpage")
	require.NoError(t, err)
	assert.Equal(t, "world_economics", c.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders(`{user_query} {current_year} {user_query} {"json": 1} {0bad}`)
	assert.Equal(t, []string{"user_query", "current_year"}, got)
}

func TestDefaultInputs(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	in := DefaultInputs("  ", now)
	assert.Equal(t, DefaultQuestion, in[InputUserQuery])
	assert.Equal(t, "2025", in[InputCurrentYear])

	in = DefaultInputs("Impact of US rate hikes on emerging markets", now)
	assert.Equal(t, "Impact of US rate hikes on emerging markets", in[InputUserQuery])
}
