package core

// classify.go decides which columns hold dates.
//
// Detection is a cheap heuristic over a bounded sample, never a full scan:
//  1. A natively typed datetime column wins outright (first in column order).
//  2. Otherwise each string column contributes its first SampleSize non-null
//     values, which are tried against CandidateFormats and then AutoFormat.
//  3. A format matches when at least Threshold of the sample parses with it.
//
// When several formats clear the threshold the first in list order is kept.
// Existing data may depend on that order, so no best-fit search is attempted.

const (
	// DefaultSampleSize is the number of non-null values sampled per column.
	DefaultSampleSize = 100

	// DefaultThreshold is the minimum parsed fraction for a format to match.
	DefaultThreshold = 0.8
)

// Classifier detects date columns in a dataset sample.
type Classifier struct {
	SampleSize int
	Threshold  float64

	// Formats overrides the candidate list; nil means CandidateFormats then AutoFormat.
	Formats []*DateFormat
}

// NewClassifier returns a classifier, substituting defaults for non-positive values.
func NewClassifier(sampleSize int, threshold float64) Classifier {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Classifier{SampleSize: sampleSize, Threshold: threshold}
}

// Classify returns the first date column of ds. Native datetime columns take
// priority over string columns; ties are broken by column order.
// The boolean is false when no column qualifies, which is a normal outcome.
func (c Classifier) Classify(ds *Dataset) (Candidate, bool) {
	for _, col := range ds.Columns {
		if col.Kind == KindDatetime {
			return Candidate{Column: col.Name}, true
		}
	}
	for i := range ds.Columns {
		col := &ds.Columns[i]
		if col.Kind != KindString {
			continue
		}
		if f, ok := c.MatchFormat(c.Sample(col)); ok {
			return Candidate{Column: col.Name, Format: f}, true
		}
	}
	return Candidate{}, false
}

// ClassifyAll returns every date column of ds in column order, each judged
// independently with the same sample size and threshold.
func (c Classifier) ClassifyAll(ds *Dataset) []Candidate {
	var out []Candidate
	for i := range ds.Columns {
		if cand, ok := c.ClassifyColumn(&ds.Columns[i]); ok {
			out = append(out, cand)
		}
	}
	return out
}

// ClassifyColumn judges a single column.
func (c Classifier) ClassifyColumn(col *Column) (Candidate, bool) {
	switch col.Kind {
	case KindDatetime:
		return Candidate{Column: col.Name}, true
	case KindString:
		if f, ok := c.MatchFormat(c.Sample(col)); ok {
			return Candidate{Column: col.Name, Format: f}, true
		}
	}
	return Candidate{}, false
}

// Sample returns up to SampleSize non-null values from the start of col.
func (c Classifier) Sample(col *Column) []string {
	size := c.SampleSize
	if size <= 0 {
		size = DefaultSampleSize
	}
	sample := make([]string, 0, min(size, len(col.Values)))
	for i := 0; i < len(col.Values) && len(sample) < size; i++ {
		if !col.IsNull(i) {
			sample = append(sample, col.Values[i])
		}
	}
	return sample
}

// MatchFormat returns the first format that parses at least Threshold of sample.
// An empty sample never matches.
func (c Classifier) MatchFormat(sample []string) (*DateFormat, bool) {
	if len(sample) == 0 {
		return nil, false
	}
	threshold := c.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}

	for _, f := range c.formats() {
		parsed := 0
		for _, v := range sample {
			if _, ok := f.Parse(v); ok {
				parsed++
			}
		}
		if float64(parsed)/float64(len(sample)) >= threshold {
			return f, true
		}
	}
	return nil, false
}

func (c Classifier) formats() []*DateFormat {
	if c.Formats != nil {
		return c.Formats
	}
	all := make([]*DateFormat, 0, len(CandidateFormats)+1)
	all = append(all, CandidateFormats...)
	return append(all, AutoFormat)
}
