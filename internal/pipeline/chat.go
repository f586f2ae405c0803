package pipeline

import (
	"context"
	"strings"

	"worldeconomics/internal/crew"
)

const (
	followUpCrewName  = "economic_report_assistant"
	followUpAgentName = "report_assistant"
	followUpTaskName  = "followup_task"

	// FollowUpTool is the only tool the follow-up assistant may use.
	FollowUpTool = "web_search"
)

// FollowUpPrompt embeds the report and the question verbatim.
func FollowUpPrompt(report, question string) string {
	var b strings.Builder
	b.WriteString("Based on the report:\n\n")
	b.WriteString(report)
	b.WriteString("\n\nAnswer the user's question:\n\n")
	b.WriteString(question)
	b.WriteString("\ntry answer within context if not possible find through search tool.")
	return b.String()
}

// FollowUpCrew builds the one-agent, one-task crew that answers a question
// about an existing report. The task declares no output file.
func FollowUpCrew(report, question string) *crew.Crew {
	return &crew.Crew{
		Name: followUpCrewName,
		Agents: []crew.AgentSpec{{
			Name:      followUpAgentName,
			Role:      "Economic Report Assistant",
			Goal:      "Answer follow-up questions about the economic report accurately and concisely.",
			Backstory: "You know the report in front of you well and you search the web only when it does not cover the question.",
			Tools:     []string{FollowUpTool},
		}},
		Tasks: []crew.TaskSpec{{
			Name:           followUpTaskName,
			Agent:          followUpAgentName,
			Description:    FollowUpPrompt(report, question),
			ExpectedOutput: "A clear answer to the user's question, citing the report or the sources found.",
		}},
	}
}

// FollowUp answers a question about a report with a single-task pipeline.
// Nothing is persisted.
func (e *Engine) FollowUp(ctx context.Context, report, question string) (TaskResult, error) {
	if strings.TrimSpace(question) == "" {
		return TaskResult{}, ErrEmptyQuestion
	}
	eng := &Engine{Executor: e.Executor, TaskTimeout: e.TaskTimeout, Now: e.Now, NewID: e.NewID}
	run, err := eng.Run(ctx, FollowUpCrew(report, question), RunInputs{})
	if err != nil {
		return TaskResult{}, err
	}
	res, _ := run.Final()
	return res, nil
}

// FollowUp is Engine.FollowUp with a bare engine around exec.
func FollowUp(ctx context.Context, exec Executor, report, question string) (TaskResult, error) {
	return (&Engine{Executor: exec}).FollowUp(ctx, report, question)
}
