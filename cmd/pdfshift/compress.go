package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/feichai0017/pdfshift/internal/agent"
	"github.com/feichai0017/pdfshift/internal/compress"
	"github.com/feichai0017/pdfshift/internal/utils/validator"
	"github.com/feichai0017/pdfshift/pkg/converters"
	"github.com/feichai0017/pdfshift/pkg/logger"
)

var (
	compressTarget     string
	compressOutput     string
	compressOversample float64
	compressQuality    float64
	compressTolerance  float64
	compressGrayscale  bool
	compressReport     string
	compressQuiet      bool
)

var compressCmd = &cobra.Command{
	Use:   "compress <input.pdf>",
	Short: "Compress a PDF towards a target size",
	Long: `Strips document metadata first. If that is not enough, every page is
rasterized and re-encoded as JPEG. The smaller result is written.
Without -o, the output is <name>_compressed.pdf next to the input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args[0])
	},
}

func init() {
	f := compressCmd.Flags()
	f.StringVarP(&compressTarget, "target", "t", "", "target size, e.g. 3MB or 750KiB (default: 80% of input)")
	f.StringVarP(&compressOutput, "output", "o", "", "output file")
	f.Float64Var(&compressOversample, "oversample", 0, "render scale relative to 72 DPI (default from config)")
	f.Float64Var(&compressQuality, "quality", 0, "JPEG quality in (0,1] (default from config)")
	f.Float64Var(&compressTolerance, "tolerance", -1, "accepted overshoot of the target (default from config)")
	f.BoolVar(&compressGrayscale, "grayscale", false, "convert pages to grayscale")
	f.StringVar(&compressReport, "report", "", "write a JSON report to this file")
	f.BoolVarP(&compressQuiet, "quiet", "q", false, "no progress bar")
	rootCmd.AddCommand(compressCmd)
}

func runCompress(cmd *cobra.Command, inFile string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	cc := conf.Compression
	if compressOversample > 0 {
		cc.Oversample = compressOversample
	}
	if compressQuality > 0 {
		cc.PageQuality = compressQuality
	}
	if compressTolerance >= 0 {
		cc.Tolerance = compressTolerance
	}
	if cmd.Flags().Changed("grayscale") {
		cc.Grayscale = compressGrayscale
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

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
	if compressTarget != "" {
		if target, err = compress.ParseSize(compressTarget); err != nil {
			return err
		}
	}
	if err := compress.ValidateTarget(original, target); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	a := compress.AssessQualityImpact(original, target)
	if a.Level == compress.ImpactSignificant {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", a.Message)
	}

	factory, err := newFactory(cc, log)
	if err != nil {
		return err
	}
	compressor, err := factory.GetCompressor(inFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var onProgress compress.ProgressFunc
	if !compressQuiet {
		bar := pb.New(100).SetWriter(cmd.ErrOrStderr()).Start()
		defer bar.Finish()
		onProgress = func(percent int) {
			bar.SetCurrent(int64(percent))
		}
	}

	req := compress.NewRequest(target)
	req.MinQuality, req.MaxQuality = cc.MinQuality, cc.MaxQuality
	result, err := compressor.Compress(ctx, compress.SourceDocument{Data: data, MediaType: compress.MediaTypePDF}, req, onProgress)
	if err != nil {
		return err
	}

	outFile := compressOutput
	if outFile == "" {
		outFile = filepath.Join(filepath.Dir(inFile), compress.CompressedFilename(inFile))
	}
	if err := os.WriteFile(outFile, result.Data, 0o644); err != nil {
		return err
	}

	if compressReport != "" {
		if err := writeReport(ctx, compressReport, inFile, data, req, result, factory, log); err != nil {
			return err
		}
	}

	reached := "target reached"
	if !result.TargetReached {
		reached = "target not reached"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s [%s, %s]\n", outFile, converters.Summary(result), result.Stage, reached)
	if result.PagesSkipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d pages could not be rasterized and were left out\n", result.PagesSkipped, result.PagesTotal)
	}
	return nil
}

// writeReport writes the JSON report for one run. Document inspection is
// best effort.
func writeReport(
	ctx context.Context,
	path, inFile string,
	data []byte,
	req compress.Request,
	result *compress.Result,
	factory *agent.ProcessorFactory,
	log logger.Logger,
) error {
	in := converters.ReportInput{
		Filename: filepath.Base(inFile),
		Request:  req,
		Result:   result,
	}
	if p, err := factory.GetProcessor(inFile); err == nil {
		if info, err := p.Inspect(ctx, data); err == nil {
			in.Document = &info
		} else {
			log.Warn("Inspect failed", logger.String("file", inFile), logger.Error(err))
		}
	}

	conv := converters.NewJSONConverter()
	report, err := conv.Convert(in)
	if err != nil {
		return err
	}
	out, err := conv.Marshal(report)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
