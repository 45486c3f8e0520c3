package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/noah-isme/uva-judge/internal/config"
	"github.com/noah-isme/uva-judge/internal/dto"
	"github.com/noah-isme/uva-judge/internal/judge"
	"github.com/noah-isme/uva-judge/internal/observability"
	"github.com/noah-isme/uva-judge/internal/repository"
	"github.com/noah-isme/uva-judge/internal/service"
	"github.com/noah-isme/uva-judge/pkg/process"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, color.RedString(msg))
		}
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			os.Exit(exit.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "judge",
		Usage: "judge a single submission against a local problem directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML or TOML config file"},
			&cli.StringFlag{Name: "problems", Usage: "override the problem directory"},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "evaluate a source file",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "problem", Aliases: []string{"p"}, Required: true, Usage: "problem identifier"},
					&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Required: true, Usage: "language or alias"},
					&cli.BoolFlag{Name: "debug", Usage: "print the output of the deciding run"},
				},
				Action: runSubmission,
			},
			{
				Name:   "problems",
				Usage:  "list available problems",
				Action: listProblems,
			},
			{
				Name:   "languages",
				Usage:  "list languages and their aliases",
				Action: listLanguages,
			},
		},
		// main reports errors and picks the exit status.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if dir := cmd.String("problems"); dir != "" {
		cfg.ProblemDirectory = dir
	}
	return cfg, nil
}

func runSubmission(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return cli.Exit("a source file is required", 2)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.AppEnv, "uva-judge-cli")
	runner := process.NewLocalRunner(process.Config{MaxOutputBytes: cfg.MaxOutputBytes, Logger: logger})
	evaluator := judge.NewEvaluator(cfg.JudgeConfig(), runner, judge.NewRegistry(), logger)
	svc := service.NewJudgeService(service.JudgeServiceConfig{
		Languages:      cfg.LanguageDefinitions(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, repository.NewFileProblemRepository(cfg.ProblemDirectory), nil, nil, nil, evaluator, nil, logger)

	response, err := svc.Judge(ctx, dto.JudgeRequest{
		ProblemID: cmd.String("problem"),
		Language:  cmd.String("lang"),
		Files:     []dto.UploadedFile{{Filename: filepath.Base(path), Content: content}},
		Debug:     cmd.Bool("debug"),
	})
	if err != nil {
		return err
	}

	printVerdict(output(cmd), response)
	if response.Code != string(judge.Accepted) && response.Code != string(judge.AcceptedPresentationError) {
		return cli.Exit("", 1)
	}
	return nil
}

func printVerdict(w io.Writer, response dto.VerdictResponse) {
	paint := color.New(color.FgRed, color.Bold).SprintFunc()
	switch judge.Code(response.Code) {
	case judge.Accepted:
		paint = color.New(color.FgGreen, color.Bold).SprintFunc()
	case judge.AcceptedPresentationError, judge.PresentationError:
		paint = color.New(color.FgYellow, color.Bold).SprintFunc()
	case judge.SubmissionError:
		paint = color.New(color.FgMagenta, color.Bold).SprintFunc()
	}

	fmt.Fprintf(w, "%s %s\n", paint(response.Code), response.Message)
	if response.Description != "" {
		fmt.Fprintln(w, response.Description)
	}
	if response.Trace != "" {
		fmt.Fprintln(w, color.HiBlackString(strings.TrimRight(response.Trace, "\n")))
	}
	if response.Stdout != nil {
		fmt.Fprintf(w, "%s\n%s\n", color.CyanString("stdout:"), *response.Stdout)
	}
	if response.Stderr != nil {
		fmt.Fprintf(w, "%s\n%s\n", color.CyanString("stderr:"), *response.Stderr)
	}
}

func listProblems(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	problems, err := repository.NewFileProblemRepository(cfg.ProblemDirectory).List(ctx)
	if err != nil {
		return err
	}
	w := output(cmd)
	for _, id := range problems {
		fmt.Fprintln(w, id)
	}
	return nil
}

func listLanguages(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	aliases := service.LanguageAliases(cfg.LanguageNames())
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	w := output(cmd)
	for _, name := range names {
		fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint(name), strings.Join(aliases[name], ", "))
	}
	return nil
}
