package agent

import (
	"fmt"
	"strings"

	"worldeconomics/internal/llmtool"
	"worldeconomics/internal/pipeline"
)

// PromptSpec builds the structured prompt for one task. The resolved task
// prompt already carries upstream context, so it is used verbatim as TASK.
func PromptSpec(req pipeline.Request) llmtool.StructuredPromptSpec {
	a := req.Agent
	purpose := fmt.Sprintf("You are the %s. %s", strings.TrimSpace(a.Role), strings.TrimSpace(a.Goal))
	spec := llmtool.StructuredPromptSpec{
		Purpose:        strings.TrimSpace(purpose),
		Background:     strings.TrimSpace(a.Backstory),
		Task:           req.Prompt,
		ExpectedOutput: strings.TrimSpace(req.Task.ExpectedOutput),
		OutputFields:   llmtool.ActionFields(),
		Rules: []string{
			"Write the final answer as markdown inside the final field.",
		},
		Examples: []llmtool.PromptExample{
			{Note: "final answer", OutputJSON: `{"action":"final","final":"## Summary\n..."}`},
		},
	}
	presets := []llmtool.PromptPreset{llmtool.StrictJSON, llmtool.Cautious}
	if len(a.Tools) > 0 {
		presets = append(presets, llmtool.CiteSources)
		spec.Rules = append(spec.Rules,
			"Call a tool only when the context does not already answer the question.",
			"Use only the tools listed under TOOLS.")
		spec.Examples = append([]llmtool.PromptExample{
			{Note: "tool call", OutputJSON: fmt.Sprintf(`{"action":"tool","tool_name":%q,"tool_input":{}}`, a.Tools[0])},
		}, spec.Examples...)
	} else {
		spec.Constraints = append(spec.Constraints, `Always respond with action "final"; no tools are available.`)
	}
	return llmtool.ApplyPresets(spec, presets...)
}
