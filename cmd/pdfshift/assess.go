package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/feichai0017/pdfshift/internal/compress"
	"github.com/feichai0017/pdfshift/internal/utils/validator"
)

var assessTarget string

var assessCmd = &cobra.Command{
	Use:   "assess <input.pdf>",
	Short: "Estimate the quality impact of a target size",
	Long: `Prints the expected quality impact for a target size, the advised JPEG
quality, and whether the document looks scanned. Nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inFile := args[0]

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		conf, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(inFile)
		if err != nil {
			return err
		}
		v := validator.NewDocumentValidator(log, nil)
		if err := v.Validate(filepath.Base(inFile), data).Err(); err != nil {
			return err
		}

		original := int64(len(data))
		target := compress.DefaultTarget(original)
		if assessTarget != "" {
			if target, err = compress.ParseSize(assessTarget); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		a := compress.AssessQualityImpact(original, target)
		fmt.Fprintf(out, "original:        %s\n", humanize.IBytes(uint64(original)))
		fmt.Fprintf(out, "target:          %s\n", humanize.IBytes(uint64(target)))
		fmt.Fprintf(out, "estimated min:   %s\n", humanize.IBytes(uint64(compress.EstimateMinimumSize(original))))
		fmt.Fprintf(out, "impact:          %s (%s)\n", a.Level, a.Message)
		fmt.Fprintf(out, "advised quality: %.2f\n", compress.AdvisedQuality(original, target, conf.Compression.MinQuality, conf.Compression.MaxQuality))
		if err := compress.ValidateTarget(original, target); err != nil {
			fmt.Fprintf(out, "target rejected: %v\n", err)
		}

		factory, err := newFactory(conf.Compression, log)
		if err != nil {
			return err
		}
		p, err := factory.GetProcessor(inFile)
		if err != nil {
			return err
		}
		info, err := p.Inspect(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pages:           %d (%d with text)\n", info.Pages, info.TextPages)
		if info.Scanned() {
			fmt.Fprintln(out, "looks scanned:   rasterizing will likely help")
		}
		return nil
	},
}

func init() {
	assessCmd.Flags().StringVarP(&assessTarget, "target", "t", "", "target size, e.g. 3MB (default: 80% of input)")
	rootCmd.AddCommand(assessCmd)
}
