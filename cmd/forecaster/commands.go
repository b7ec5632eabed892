package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/carbonwise/go-forecaster"
	"github.com/carbonwise/go-forecaster/forecast"
	"github.com/carbonwise/go-forecaster/scheduler"
	"github.com/carbonwise/go-forecaster/server"
	"github.com/spf13/cobra"
)

func parseKinds(names []string, ensemble bool) ([]forecast.Kind, error) {
	kinds := make([]forecast.Kind, 0, len(names))
	for _, n := range names {
		k, err := forecast.ParseKind(n)
		if err != nil {
			return nil, err
		}
		if k.Ensemble() != ensemble {
			return nil, fmt.Errorf("%q, %w", n, forecast.ErrUnknownKind)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func printReport(w io.Writer, report *forecaster.TrainReport) error {
	if _, err := fmt.Fprintf(w, "%s\n", report.Message); err != nil {
		return err
	}
	info := report.DataInfo
	if _, err := fmt.Fprintf(w, "  Records: %d (train %d, test %d), features: %d\n",
		info.TotalRecords, info.TrainingRecords, info.TestRecords, info.FeaturesCount); err != nil {
		return err
	}
	tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	if _, err := fmt.Fprintf(tbl, "  Model\tR2\tMAE\tRMSE\tMAPE\t\n"); err != nil {
		return err
	}
	for _, k := range report.ModelsTrained {
		s := report.Metrics[k]
		if _, err := fmt.Fprintf(tbl, "  %s\t%.4f\t%.2f\t%.2f\t%.2f\t\n", k, s.R2, s.MAE, s.RMSE, s.MAPE); err != nil {
			return err
		}
	}
	if err := tbl.Flush(); err != nil {
		return err
	}
	failed := make([]forecast.Kind, 0, len(report.Failed))
	for k := range report.Failed {
		failed = append(failed, k)
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	for _, k := range failed {
		if _, err := fmt.Fprintf(w, "  Failed %s: %s\n", k, report.Failed[k]); err != nil {
			return err
		}
	}
	return nil
}

func trainCmd(g *globalFlags) *cobra.Command {
	var (
		t         target
		models    []string
		ensembles []string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train models for a resource and building",
		Long: `Loads the monthly history of the resource, trains the requested learners and ensembles
and stores them in the model registry. Without --models and --ensembles every learner and the
all-learner ensemble are trained.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, entity, err := t.parse()
			if err != nil {
				return err
			}
			kinds, err := parseKinds(models, false)
			if err != nil {
				return err
			}
			ens, err := parseKinds(ensembles, true)
			if err != nil {
				return err
			}

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			report, err := app.Forecaster.Train(ctx, r, entity, forecast.Request{Kinds: kinds, Ensembles: ens})
			if err != nil {
				return fmt.Errorf("failed to train: %w", err)
			}
			return g.print(cmd.OutOrStdout(), report, func(w io.Writer) error {
				return printReport(w, report)
			})
		},
	}
	t.register(cmd)
	cmd.Flags().StringSliceVarP(&models, "models", "m", nil, "Learners to train (rf, xgb, gb)")
	cmd.Flags().StringSliceVar(&ensembles, "ensembles", nil, "Ensembles to build (ensemble_rf_xgb, ensemble_all, ...)")
	return cmd
}

func predictCmd(g *globalFlags) *cobra.Command {
	var (
		t      target
		model  string
		months int
		plot   string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Forecast the months following the last observed month",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, entity, err := t.parse()
			if err != nil {
				return err
			}
			k, err := forecast.ParseKind(model)
			if err != nil {
				return err
			}

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			fc, err := app.Forecaster.Predict(ctx, r, entity, k, months)
			if err != nil {
				return fmt.Errorf("failed to predict: %w", err)
			}
			if plot != "" {
				if err := writePlot(ctx, app.Forecaster, plot, fc); err != nil {
					return err
				}
			}
			return g.print(cmd.OutOrStdout(), fc, fc.TablePrint)
		},
	}
	t.register(cmd)
	cmd.Flags().StringVar(&model, "model", string(forecast.KindEnsembleAll), "Model or ensemble to predict with")
	cmd.Flags().IntVar(&months, "months", 12, "Number of months to forecast")
	cmd.Flags().StringVar(&plot, "plot", "", "Write an HTML chart of history and forecast to this file")
	return cmd
}

func writePlot(ctx context.Context, f *forecaster.Forecaster, path string, fc *forecaster.Forecast) error {
	history, err := f.History(ctx, fc.Resource, fc.Entity)
	if err != nil {
		return fmt.Errorf("failed to load history for plot: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := forecaster.PlotForecast(out, history, fc); err != nil {
		out.Close()
		return fmt.Errorf("failed to render plot: %w", err)
	}
	return out.Close()
}

func evaluateCmd(g *globalFlags) *cobra.Command {
	var (
		t     target
		model string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Show the test split scores recorded for a trained model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, entity, err := t.parse()
			if err != nil {
				return err
			}
			k, err := forecast.ParseKind(model)
			if err != nil {
				return err
			}

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			eval, err := app.Forecaster.Evaluate(ctx, r, entity, k)
			if err != nil {
				return fmt.Errorf("failed to evaluate: %w", err)
			}
			return g.print(cmd.OutOrStdout(), eval, eval.TablePrint)
		},
	}
	t.register(cmd)
	cmd.Flags().StringVar(&model, "model", string(forecast.KindEnsembleAll), "Model or ensemble to evaluate")
	return cmd
}

func modelsCmd(g *globalFlags) *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the trained models of a resource and building",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, entity, err := t.parse()
			if err != nil {
				return err
			}

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			models, err := app.Forecaster.Models(ctx, r, entity)
			if err != nil {
				return fmt.Errorf("failed to list models: %w", err)
			}
			return g.print(cmd.OutOrStdout(), models, func(w io.Writer) error {
				tbl := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
				if _, err := fmt.Fprintf(tbl, "MODEL\tTRAINED\tPOINTS\tFEATURES\tR2\n"); err != nil {
					return err
				}
				for _, m := range models {
					if _, err := fmt.Fprintf(tbl, "%s\t%s\t%d\t%d\t%.4f\n",
						m.ModelType, m.TrainedAt.Format("2006-01-02 15:04"), m.DataPoints, m.FeatureCount, m.Metrics.R2); err != nil {
						return err
					}
				}
				return tbl.Flush()
			})
		},
	}
	t.register(cmd)
	return cmd
}

func deleteCmd(g *globalFlags) *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every trained model of a resource and building",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, entity, err := t.parse()
			if err != nil {
				return err
			}

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			if err := app.Forecaster.Delete(ctx, r, entity); err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted models for %s/%s\n", r, entity)
			return nil
		},
	}
	t.register(cmd)
	return cmd
}

type retrainResult struct {
	Target string                  `json:"target"`
	Report *forecaster.TrainReport `json:"report,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

func retrainCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "retrain",
		Short: "Run every scheduled retraining job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			sched, err := scheduler.New(app.Forecaster, app.Config.SchedulerOptions(app.Logger))
			if err != nil {
				return err
			}
			results := sched.RunAll(ctx)

			out := make([]retrainResult, len(results))
			failed := 0
			for i, res := range results {
				out[i] = retrainResult{Target: res.Target.String(), Report: res.Report}
				if res.Err != nil {
					out[i].Error = res.Err.Error()
					failed++
				}
			}
			err = g.print(cmd.OutOrStdout(), out, func(w io.Writer) error {
				for _, res := range out {
					status := "ok"
					if res.Error != "" {
						status = res.Error
					}
					if _, err := fmt.Fprintf(w, "%s: %s\n", res.Target, status); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d targets failed", failed, len(results))
			}
			return nil
		},
	}
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled retraining",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			srv, err := server.New(app.Forecaster, app.Config.ServerOptions(app.Logger, app.Registry))
			if err != nil {
				return err
			}
			sched, err := scheduler.New(app.Forecaster, app.Config.SchedulerOptions(app.Logger))
			if err != nil {
				return err
			}
			sched.Start()
			if next := sched.Next(); !next.IsZero() {
				app.Logger.Info("retraining scheduled", "next", next)
			}

			err = srv.Run(ctx)
			if stopErr := sched.Stop(context.Background()); stopErr != nil {
				app.Logger.Warn("scheduler did not stop cleanly", "error", stopErr)
			}
			return err
		},
	}
}

func plotCmd(g *globalFlags) *cobra.Command {
	var (
		t      target
		model  string
		months int
		output string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Write an HTML chart of the history and forecast",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, entity, err := t.parse()
			if err != nil {
				return err
			}
			k, err := forecast.ParseKind(model)
			if err != nil {
				return err
			}

			app, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			fc, err := app.Forecaster.Predict(ctx, r, entity, k, months)
			if err != nil {
				return fmt.Errorf("failed to predict: %w", err)
			}
			if err := writePlot(ctx, app.Forecaster, output, fc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	t.register(cmd)
	cmd.Flags().StringVar(&model, "model", string(forecast.KindEnsembleAll), "Model or ensemble to predict with")
	cmd.Flags().IntVar(&months, "months", 12, "Number of months to forecast")
	cmd.Flags().StringVarP(&output, "output", "o", "forecast.html", "Output file")
	return cmd
}
