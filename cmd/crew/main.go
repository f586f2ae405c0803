// Command crew runs the economics crew from the terminal and writes the task
// outputs to a directory, or answers a follow-up question about a report
// already written there.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"worldeconomics/internal/crew"
	"worldeconomics/internal/gateway/app"
	"worldeconomics/internal/gateway/config"
	"worldeconomics/internal/pipeline"
	"worldeconomics/internal/report"
)

func main() {
	question := flag.String("question", "", "economic question (defaults to the built-in question)")
	out := flag.String("out", ".", "directory for the task output files")
	followUp := flag.String("followup", "", "answer this question about <out>/final_report.md instead of running the crew")
	crewFile := flag.String("crew", "", "crew definition YAML (defaults to the embedded crew)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.FromEnv()
	if *crewFile != "" {
		cfg.CrewFile = *crewFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, *question, *followUp, *out); err != nil {
		log.Fatalf("crew: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, question, followUp, out string) error {
	client, err := app.NewLLM(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	registry := app.NewTools(cfg)
	c, err := app.LoadCrew(cfg, registry)
	if err != nil {
		return err
	}
	exec := app.NewExecutor(cfg, client, registry)

	if followUp != "" {
		return answer(ctx, exec, c, out, followUp, cfg.TaskTimeout)
	}

	sink, err := pipeline.NewDirSink(out)
	if err != nil {
		return err
	}
	eng := &pipeline.Engine{Executor: exec, Sink: sink, TaskTimeout: cfg.TaskTimeout}
	ctx = pipeline.WithEmitter(ctx, pipeline.EmitterFunc(func(ev pipeline.Event) {
		if ev.Type == pipeline.EventTaskStarted {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s (%s)\n", ev.Index+1, ev.Total, ev.Task, ev.Agent)
		}
	}))
	runRes, err := eng.Run(ctx, c, pipeline.RunInputs(crew.DefaultInputs(question, time.Now())))
	if err != nil {
		return err
	}
	final, _ := runRes.Final()
	if final.PersistedPath == "" {
		return fmt.Errorf("%w: Expected output '%s' not found", report.ErrNotFound, c.FinalReportFile())
	}
	fmt.Println(final.PersistedPath)
	return nil
}

func answer(ctx context.Context, exec pipeline.Executor, c *crew.Crew, out, question string, timeout time.Duration) error {
	sink, err := pipeline.NewDirSink(out)
	if err != nil {
		return err
	}
	body, err := sink.ReadFile(c.FinalReportFile())
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: Expected output '%s' not found", report.ErrNoReport, filepath.Join(out, c.FinalReportFile()))
	}
	if err != nil {
		return err
	}
	eng := &pipeline.Engine{Executor: exec, TaskTimeout: timeout}
	res, err := eng.FollowUp(ctx, body, question)
	if err != nil {
		return err
	}
	fmt.Println(res.Text)
	return nil
}
