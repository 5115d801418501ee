package compress

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	KiB = 1024
	MiB = 1024 * KiB

	// MinTargetBytes is the smallest target ValidateTarget accepts.
	MinTargetBytes = 1 * MiB
	// MaxCompressionRatio: the target may not go below 10% of the original.
	MaxCompressionRatio = 0.1
	// minimumSizeRatio is the conservative mixed-content estimate.
	minimumSizeRatio = 0.6
	// defaultTargetRatio is the "no visible loss" default target.
	defaultTargetRatio = 0.8
)

// AdvisedQuality maps target/current into a quality tier. The value is
// reported to callers only; the page encoder uses Options.PageQuality.
func AdvisedQuality(current, target int64, minQuality, maxQuality float64) float64 {
	if current <= 0 {
		return maxQuality
	}
	ratio := float64(target) / float64(current)
	switch {
	case ratio >= 0.8:
		return maxQuality
	case ratio >= 0.6:
		return 0.8
	case ratio >= 0.4:
		return 0.6
	case ratio >= 0.2:
		return 0.4
	default:
		return minQuality
	}
}

// ImpactLevel grades the expected visual loss.
type ImpactLevel string

const (
	ImpactNone        ImpactLevel = "none"
	ImpactMinimal     ImpactLevel = "minimal"
	ImpactModerate    ImpactLevel = "moderate"
	ImpactSignificant ImpactLevel = "significant"
)

// Assessment is the advisory answer for a target size.
type Assessment struct {
	Level            ImpactLevel `json:"level"`
	Message          string      `json:"message"`
	RecommendedBytes int64       `json:"recommendedBytes"`
}

// AssessQualityImpact grades target/original at the 0.8/0.6/0.4 thresholds.
func AssessQualityImpact(original, target int64) Assessment {
	recommended := EstimateMinimumSize(original)
	ratio := 1.0
	if original > 0 {
		ratio = float64(target) / float64(original)
	}

	switch {
	case ratio >= 0.8:
		return Assessment{ImpactNone, "No significant quality loss expected.", recommended}
	case ratio >= 0.6:
		return Assessment{ImpactMinimal, "Minimal quality loss. Most users won't notice any difference.", recommended}
	case ratio >= 0.4:
		return Assessment{ImpactModerate, "Moderate compression. Some quality loss may be noticeable in images.", recommended}
	default:
		return Assessment{
			Level: ImpactSignificant,
			Message: fmt.Sprintf("High compression may result in noticeable quality loss. We recommend %s or higher for best quality.",
				humanize.IBytes(uint64(recommended))),
			RecommendedBytes: recommended,
		}
	}
}

// EstimateMinimumSize is the smallest size expected without significant loss.
func EstimateMinimumSize(original int64) int64 {
	if original <= 0 {
		return 0
	}
	return int64(math.Round(float64(original) * minimumSizeRatio))
}

// ValidateTarget rejects targets under 1 MiB or under 10% of the original.
func ValidateTarget(original, target int64) error {
	if target < MinTargetBytes {
		return fmt.Errorf("%w: target size cannot be smaller than %s", ErrTargetTooSmall, humanize.IBytes(MinTargetBytes))
	}
	if float64(target) < float64(original)*MaxCompressionRatio {
		return fmt.Errorf("%w: maximum compression is %.0f%% of original size", ErrTargetTooSmall, (1-MaxCompressionRatio)*100)
	}
	return nil
}

// DefaultTarget is 80% of the original rounded to whole MiB, at least 1 MiB.
func DefaultTarget(original int64) int64 {
	mb := math.Round(float64(original) * defaultTargetRatio / MiB)
	if mb < 1 {
		mb = 1
	}
	return int64(mb) * MiB
}

// ParseTarget converts a value and a KB/MB unit selector into bytes.
// Units are binary (1 KB = 1024 bytes).
func ParseTarget(value float64, unit string) (int64, error) {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: target value must be positive", ErrInvalidRequest)
	}
	var mult float64
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "KB", "KIB", "K":
		mult = KiB
	case "MB", "MIB", "M", "":
		mult = MiB
	case "B":
		mult = 1
	default:
		return 0, fmt.Errorf("%w: unknown size unit %q", ErrInvalidRequest, unit)
	}
	return int64(math.Round(value * mult)), nil
}

// ParseSize accepts human sizes such as "3MB", "750 KiB" or "2.5M".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: size must be positive", ErrInvalidRequest)
	}
	return int64(n), nil
}

// CompressedFilename turns "Report.PDF" into "Report_compressed.pdf".
func CompressedFilename(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "document"
	}
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	return base + "_compressed.pdf"
}
