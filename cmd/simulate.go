package cmd

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"text/tabwriter"

	"github.com/igvedmak/parkspeak/internal/audio"
	"github.com/igvedmak/parkspeak/internal/config"
	"github.com/igvedmak/parkspeak/internal/database"
	logger "github.com/igvedmak/parkspeak/internal/logging"
	"github.com/igvedmak/parkspeak/internal/metrics"
	"github.com/igvedmak/parkspeak/internal/models"
	"github.com/igvedmak/parkspeak/internal/repository"
	"github.com/igvedmak/parkspeak/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var (
	simTrueSRT  float64
	simSlope    float64
	simAmbient  float64
	simLanguage string
	simRuns     int
	simSeed     uint64
	simSave     bool
	simParallel int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run hearing screenings against a virtual listener",
	Long: `Runs complete screenings against a simulated listener whose chance of
repeating a triplet follows a logistic curve centred on --srt.

Examples:
  parkspeak simulate --srt -7 --runs 20
  parkspeak simulate --srt -1 --ambient 55    # rejected: room too loud
  parkspeak simulate --save                   # persist results to the database`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulate(cmd.Context())
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simTrueSRT, "srt", -7, "true SRT of the simulated listener (dB SNR)")
	simulateCmd.Flags().Float64Var(&simSlope, "slope", 1.5, "psychometric slope in dB")
	simulateCmd.Flags().Float64Var(&simAmbient, "ambient", 35, "ambient room level (dB)")
	simulateCmd.Flags().StringVar(&simLanguage, "language", "", "test language code")
	simulateCmd.Flags().IntVar(&simRuns, "runs", 1, "number of screenings")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 1, "random seed")
	simulateCmd.Flags().BoolVar(&simSave, "save", false, "persist results to the configured database")
	simulateCmd.Flags().IntVar(&simParallel, "parallel", 4, "screenings run concurrently")
	rootCmd.AddCommand(simulateCmd)
}

// discardResults drops results when --save is off.
type discardResults struct{}

func (discardResults) SaveResult(context.Context, *models.HearingTest) error { return nil }

type simOutcome struct {
	srt     float64
	result  string
	metrics *metrics.TrialMetrics
	err     error
}

func runSimulate(ctx context.Context) error {
	log := logger.NewConsole(zapcore.WarnLevel)
	defer log.Sync()
	if err := config.Init(projectRoot, log); err != nil {
		printError("failed to load configuration", err)
		return err
	}

	var results services.ResultStore = discardResults{}
	if simSave {
		if err := database.Init(log); err != nil {
			printError("failed to open database", err)
			return err
		}
		results = repository.HearingStore{}
	}

	languages, err := loadLanguages()
	if err != nil {
		printError("failed to load languages", err)
		return err
	}

	manager := services.NewHearingSessionManager(log, services.NewMemoryStore(), results, languages,
		func() config.HearingConfig { return config.Conf.Hearing },
		services.WithRand(rand.New(rand.NewPCG(simSeed, simSeed^0x9e3779b97f4a7c15))))

	outcomes := make([]simOutcome, simRuns)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, simParallel))
	for i := range outcomes {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(simSeed+uint64(i), uint64(i)))
			listener := audio.NewSimulated(simTrueSRT, simSlope, simAmbient, rng)
			s, err := manager.RunScreening(gctx, listener, listener, simLanguage)
			if err != nil {
				outcomes[i] = simOutcome{err: err}
				return nil
			}
			outcomes[i] = simOutcome{
				srt:     *s.State.SRTDb,
				result:  string(*s.State.Result),
				metrics: metrics.CalculateTrialMetrics(s.State.Trials),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return printOutcomes(outcomes)
}

func printOutcomes(outcomes []simOutcome) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSRT (dB)\tRESULT\tCORRECT\tREVERSALS")

	bands := map[string]int{}
	var sum, sumSq float64
	var n int
	for i, o := range outcomes {
		if o.err != nil {
			fmt.Fprintf(w, "%d\t-\t%v\t-\t-\n", i+1, o.err)
			continue
		}
		fmt.Fprintf(w, "%d\t%.2f\t%s\t%.0f%%\t%d\n", i+1, o.srt, o.result, o.metrics.PercentCorrect, o.metrics.Reversals)
		bands[o.result]++
		sum += o.srt
		sumSq += o.srt * o.srt
		n++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no screening completed")
	}

	mean := sum / float64(n)
	sd := math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
	fmt.Printf("\ntrue SRT %.2f dB, estimated %.2f ± %.2f dB over %d runs\n", simTrueSRT, mean, sd, n)
	fmt.Printf("normal %d, borderline %d, refer %d\n", bands["normal"], bands["borderline"], bands["refer"])
	return nil
}
