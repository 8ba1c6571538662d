package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"

	"github.com/iWorld-y/pain_radar/app/pain_radar/internal/server"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/engine"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/errs"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "pain_radar"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string

	id, _ = os.Hostname()
)

func main() {
	root := &cobra.Command{
		Use:           "pain_radar",
		Short:         "Find and rank user pain signals for a business hypothesis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagconf, "config", "app/pain_radar/configs/config.yaml", "config path, eg: --config config.yaml")
	root.AddCommand(serveCmd(), runCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errs.KindOf(err), err)
		stop()
		os.Exit(1)
	}
}

func newLogger() log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flagconf)
			if err != nil {
				return err
			}
			app, cleanup, err := initApp(cfg, newLogger())
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run()
		},
	}
}

func runCmd() *cobra.Command {
	var (
		hyp         model.Hypothesis
		communities string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one research job and print the report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(hyp.Text) == "" {
				return fmt.Errorf("--hypothesis is required")
			}
			cfg, err := config.LoadConfig(flagconf)
			if err != nil {
				return err
			}
			logger := newLogger()
			store, cleanup, err := server.NewStore(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()
			eng, err := server.NewEngine(cfg, store, logger)
			if err != nil {
				return err
			}

			report, err := eng.Run(cmd.Context(), engine.RunOptions{
				Hypothesis:  hyp,
				Communities: splitList(communities),
				ProgressCallback: func(status string, progress int) {
					fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", progress, status)
				},
			})
			if err != nil {
				return err
			}
			return writeReport(report, output)
		},
	}
	f := cmd.Flags()
	f.StringVar(&hyp.Text, "hypothesis", "", "business hypothesis to research")
	f.StringVar(&hyp.Audience, "audience", "", "target audience")
	f.StringVar(&hyp.Problem, "problem", "", "problem statement")
	f.StringVar(&hyp.ProblemLanguage, "problem-language", "", "phrases users would use, comma separated")
	f.StringVar(&hyp.ExcludeTopics, "exclude", "", "topics to exclude, comma separated")
	f.StringVar(&hyp.AppName, "app-name", "", "analyze an existing app by name")
	f.StringVar(&hyp.AppID, "app-id", "", "App Store id of the analyzed app")
	f.StringVar(&communities, "communities", "", "fixed communities, comma separated; disables expansion")
	f.StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeReport(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
