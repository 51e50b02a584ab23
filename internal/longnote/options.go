package longnote

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/keyshift/internal/convutil"
)

// Options controls long-note synthesis.
//
// LengthThreshold splits candidates into long and short: a note whose
// available time exceeds ThresholdBeats(LengthThreshold) beats is long.
// Percentages keep that share of each class; limits cap each class per row
// (0 disables the cap). LongLevel is the mean long length as a percentage of
// available time; ShortLevel is the mean short length in 1/16 beats.
// Randomness widens the sampled range around the mean. Alignment snaps
// lengths of tap-origin notes, HoldAlignment those of original holds.
type Options struct {
	Seed            *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	LengthThreshold int    `json:"length_threshold" yaml:"length_threshold"`
	LongPercentage  int    `json:"long_percentage" yaml:"long_percentage"`
	ShortPercentage int    `json:"short_percentage" yaml:"short_percentage"`
	LongLimit       int    `json:"long_limit" yaml:"long_limit"`
	ShortLimit      int    `json:"short_limit" yaml:"short_limit"`
	LongLevel       int    `json:"long_level" yaml:"long_level"`
	ShortLevel      int    `json:"short_level" yaml:"short_level"`
	LongRandomness  int    `json:"long_randomness" yaml:"long_randomness"`
	ShortRandomness int    `json:"short_randomness" yaml:"short_randomness"`
	ProcessOriginal bool   `json:"process_original" yaml:"process_original"`
	Alignment       int    `json:"alignment" yaml:"alignment"`
	HoldAlignment   int    `json:"hold_alignment" yaml:"hold_alignment"`
}

// DefaultOptions returns a moderate setting: one-beat threshold, every
// candidate kept, long notes at half their available time.
func DefaultOptions() Options {
	return Options{
		LengthThreshold: 4,
		LongPercentage:  100,
		ShortPercentage: 100,
		LongLevel:       50,
		ShortLevel:      8,
		LongRandomness:  50,
		ShortRandomness: 50,
		Alignment:       5,
		HoldAlignment:   5,
	}
}

// Validate checks option ranges.
func (o *Options) Validate() error {
	percent := []validation.Rule{validation.Min(0), validation.Max(100)}
	return validation.ValidateStruct(o,
		validation.Field(&o.LengthThreshold, validation.Min(0), validation.Max(convutil.MaxThresholdIndex+1)),
		validation.Field(&o.LongPercentage, percent...),
		validation.Field(&o.ShortPercentage, percent...),
		validation.Field(&o.LongLimit, validation.Min(0)),
		validation.Field(&o.ShortLimit, validation.Min(0)),
		validation.Field(&o.LongLevel, percent...),
		validation.Field(&o.ShortLevel, validation.Min(0), validation.Max(convutil.MaxShortLevel)),
		validation.Field(&o.LongRandomness, percent...),
		validation.Field(&o.ShortRandomness, percent...),
		validation.Field(&o.Alignment, validation.Min(0), validation.Max(convutil.MaxAlignmentIndex)),
		validation.Field(&o.HoldAlignment, validation.Min(0), validation.Max(convutil.MaxAlignmentIndex)),
	)
}
