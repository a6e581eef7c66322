package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	service "github.com/okian/biotica/internal/app"
	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/stats"
	"github.com/okian/biotica/pkg/logger"
)

var (
	methodFlag = &cli.StringFlag{
		Name:  "method",
		Usage: "Correlation method [pearson, spearman, kendall]",
		Value: string(stats.Pearson),
	}

	estimatorFlag = &cli.StringFlag{
		Name:  "method",
		Usage: "Estimator [ols, bayes]",
		Value: string(stats.OLS),
	}

	outcomeFlag = &cli.StringFlag{
		Name:     "outcome",
		Usage:    "Outcome column regressed on every other column",
		Required: true,
	}

	noiseFlag = &cli.FloatFlag{
		Name:  "noise-sd",
		Usage: "Observation noise standard deviation for the bayes estimator",
		Value: stats.DefaultNoiseSD,
	}

	columnFlag = &cli.StringFlag{
		Name:     "column",
		Usage:    "Column holding the time series",
		Required: true,
	}

	windowFlag = &cli.IntFlag{
		Name:  "window",
		Usage: "Rolling window length",
		Value: stats.DefaultWindow,
	}

	detrendFlag = &cli.BoolFlag{
		Name:  "detrend",
		Usage: "Remove the linear trend before the rolling statistics",
		Value: true,
	}

	paramFlag = &cli.StringFlag{
		Name:  "param",
		Usage: "Parameter code to sweep (default: every canonical parameter)",
	}

	stepsFlag = &cli.IntFlag{
		Name:  "steps",
		Usage: "Grid points in the sweep",
		Value: ibr.DefaultSweepSteps,
	}

	computeCmd = &cli.Command{
		Name:      "compute",
		Usage:     "Compute the IBR of a JSON parameter file",
		ArgsUsage: "<file.json|->",
		Action:    cmdCompute,
	}

	validateCmd = &cli.Command{
		Name:      "validate",
		Usage:     "Check parameter types and ranges; exits 1 when invalid",
		ArgsUsage: "<file.json|->",
		Action:    cmdValidate,
	}

	batchCmd = &cli.Command{
		Name:      "batch",
		Usage:     "Score every row of a CSV with canonical code columns and summarise",
		ArgsUsage: "<file.csv|->",
		Action:    cmdBatch,
	}

	sensitivityCmd = &cli.Command{
		Name:      "sensitivity",
		Usage:     "Sweep parameters of a JSON parameter file",
		ArgsUsage: "<file.json|->",
		Flags:     []cli.Flag{paramFlag, stepsFlag},
		Action:    cmdSensitivity,
	}

	describeCmd = &cli.Command{
		Name:      "describe",
		Usage:     "Descriptive statistics for each CSV column",
		ArgsUsage: "<file.csv|->",
		Action:    cmdDescribe,
	}

	correlateCmd = &cli.Command{
		Name:      "correlate",
		Usage:     "Pairwise correlation and p-values of CSV columns",
		ArgsUsage: "<file.csv|->",
		Flags:     []cli.Flag{methodFlag},
		Action:    cmdCorrelate,
	}

	weightsCmd = &cli.Command{
		Name:      "weights",
		Usage:     "Re-estimate weights of an outcome column",
		ArgsUsage: "<file.csv|->",
		Flags:     []cli.Flag{outcomeFlag, estimatorFlag, noiseFlag},
		Action:    cmdWeights,
	}

	tippingCmd = &cli.Command{
		Name:      "tipping",
		Usage:     "Early-warning tipping point check on a CSV column",
		ArgsUsage: "<file.csv|->",
		Flags:     []cli.Flag{columnFlag, windowFlag, detrendFlag},
		Action:    cmdTipping,
	}
)

func cmdCompute(ctx context.Context, cmd *cli.Command) error {
	params, err := readStrictParameters(cmd)
	if err != nil {
		return err
	}
	start := time.Now()
	res := ibr.Compute(params)
	logger.Get().Debug(ctx, "computed",
		logger.Float64("ibr", res.Score),
		logger.String("classification", string(res.Classification)),
		logger.Duration("took", time.Since(start)))
	return encode(cmd, res)
}

type validateReport struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Messages []string `json:"messages" yaml:"messages"`
}

func cmdValidate(_ context.Context, cmd *cli.Command) error {
	params, messages, err := readParameters(cmd)
	if err != nil {
		return err
	}
	_, rangeMessages := ibr.Validate(params)
	messages = append(messages, rangeMessages...)
	report := validateReport{Valid: len(messages) == 0, Messages: messages}
	if err := encode(cmd, report); err != nil {
		return err
	}
	if !report.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

type batchRow struct {
	Row            int      `json:"row" yaml:"row"`
	Score          float64  `json:"ibr" yaml:"ibr"`
	Classification ibr.Band `json:"classification" yaml:"classification"`
	Warnings       []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type batchReport struct {
	Rows    []batchRow  `json:"rows" yaml:"rows"`
	Summary ibr.Summary `json:"summary" yaml:"summary"`
}

func cmdBatch(_ context.Context, cmd *cli.Command) error {
	t, err := readTable(cmd)
	if err != nil {
		return err
	}
	sets := rowParameters(t)
	report := batchReport{Rows: make([]batchRow, 0, len(sets))}
	results := make([]ibr.Result, 0, len(sets))
	for i, params := range sets {
		if err := ibr.ValidateStrict(params); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		res := ibr.Compute(params)
		results = append(results, res)
		report.Rows = append(report.Rows, batchRow{
			Row:            i + 1,
			Score:          res.Score,
			Classification: res.Classification,
			Warnings:       res.Warnings,
		})
	}
	if report.Summary, err = ibr.Summarize(results); err != nil {
		return err
	}
	return encode(cmd, report)
}

func cmdSensitivity(_ context.Context, cmd *cli.Command) error {
	params, err := readStrictParameters(cmd)
	if err != nil {
		return err
	}
	steps := int(cmd.Int(stepsFlag.Name))
	code := cmd.String(paramFlag.Name)
	if code == "" {
		return encode(cmd, ibr.SensitivityAll(params, steps))
	}
	res, err := ibr.Sensitivity(params, ibr.Code(code), steps)
	if err != nil {
		return err
	}
	return encode(cmd, res)
}

func cmdDescribe(_ context.Context, cmd *cli.Command) error {
	t, err := readTable(cmd)
	if err != nil {
		return err
	}
	return encode(cmd, stats.Describe(t))
}

func cmdCorrelate(_ context.Context, cmd *cli.Command) error {
	method, err := stats.ParseMethod(cmd.String(methodFlag.Name))
	if err != nil {
		return err
	}
	t, err := readTable(cmd)
	if err != nil {
		return err
	}
	m, err := stats.Correlate(t, method)
	if err != nil {
		return err
	}
	return encode(cmd, m)
}

func cmdWeights(_ context.Context, cmd *cli.Command) error {
	method, err := stats.ParseEstimator(cmd.String(estimatorFlag.Name))
	if err != nil {
		return err
	}
	t, err := readTable(cmd)
	if err != nil {
		return err
	}
	est, err := stats.EstimateWeights(t, cmd.String(outcomeFlag.Name), method,
		stats.WithPriors(service.CanonicalPriors()),
		stats.WithNoiseSD(cmd.Float(noiseFlag.Name)),
	)
	if err != nil {
		return err
	}
	return encode(cmd, est)
}

func cmdTipping(_ context.Context, cmd *cli.Command) error {
	t, err := readTable(cmd)
	if err != nil {
		return err
	}
	name := cmd.String(columnFlag.Name)
	series, ok := t.Column(name)
	if !ok {
		return fmt.Errorf("%w: %q", stats.ErrUnknownColumn, name)
	}
	res, err := stats.DetectTippingPoint(series, int(cmd.Int(windowFlag.Name)),
		stats.WithDetrend(cmd.Bool(detrendFlag.Name)))
	if err != nil {
		return err
	}
	return encode(cmd, res)
}
