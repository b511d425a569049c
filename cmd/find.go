package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/export"
	"github.com/sells-group/company-finder/internal/model"
)

var (
	findIndustry string
	findLocation string
	findOutput   string
	findK        int
)

const findExample = `  company-finder find --industry "fintech" --location "Bengaluru"
  company-finder find --industry dental --location "Austin, TX" --output dentists.xlsx --k 12`

var findCmd = &cobra.Command{
	Use:     "find",
	Short:   "Run one discovery and save the merged records",
	Example: findExample,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := findRequest()
		if err != nil {
			return err
		}
		// Reject the output path before any network work happens.
		if _, err := export.FormatFor(findOutput); err != nil {
			return err
		}

		env, err := initFinder(ctx, "find", nil)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "find")
		}

		if err := export.Save(findOutput, result.Records); err != nil {
			return err
		}

		zap.L().Info("find complete",
			zap.String("run_id", result.RunID),
			zap.Int("records", len(result.Records)),
			zap.String("output", findOutput),
		)

		export.PrintTable(os.Stdout, result.Records)
		return nil
	},
}

// findRequest validates the find flags and builds the run request.
func findRequest() (model.Request, error) {
	industry := strings.TrimSpace(findIndustry)
	location := strings.TrimSpace(findLocation)
	if industry == "" {
		return model.Request{}, eris.New("find: --industry must not be empty")
	}
	if location == "" {
		return model.Request{}, eris.New("find: --location must not be empty")
	}
	if findK < 0 {
		return model.Request{}, eris.New("find: --k must not be negative")
	}
	return model.Request{Industry: industry, Location: location, K: findK}, nil
}

func init() {
	findCmd.Flags().StringVar(&findIndustry, "industry", "", "industry to search for (required)")
	findCmd.Flags().StringVar(&findLocation, "location", "", "city or region to search in (required)")
	findCmd.Flags().StringVar(&findOutput, "output", "results.csv", "output file (.csv, .xlsx or .json)")
	findCmd.Flags().IntVar(&findK, "k", 0, "number of search queries to plan (default from query.k)")
	_ = findCmd.MarkFlagRequired("industry")
	_ = findCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(findCmd)
}
