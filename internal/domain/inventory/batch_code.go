package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Batch code prefixes per source type
var batchCodePrefixes = map[BatchSourceType]string{
	BatchSourceRawReceipt:      "RM",
	BatchSourcePurchaseReceipt: "PR",
	BatchSourceProduction:      "FG",
	BatchSourceAdjustment:      "ADJ",
}

const maxSourceSegment = 8

// BatchCodeSequence hands out per-key sequence numbers. Implementations must
// be safe under concurrent callers; a key is never issued the same number twice.
type BatchCodeSequence interface {
	Next(ctx context.Context, key string) (int64, error)
}

// BatchCodeGenerator builds codes of the form PREFIX[-SOURCE]-YYYYMMDD-NNNN
type BatchCodeGenerator struct {
	sequence BatchCodeSequence
	prefixes map[BatchSourceType]string
}

// NewBatchCodeGenerator creates a generator. overrides replaces default prefixes.
func NewBatchCodeGenerator(sequence BatchCodeSequence, overrides map[BatchSourceType]string) *BatchCodeGenerator {
	prefixes := make(map[BatchSourceType]string, len(batchCodePrefixes))
	for k, v := range batchCodePrefixes {
		prefixes[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			prefixes[k] = strings.ToUpper(v)
		}
	}
	return &BatchCodeGenerator{sequence: sequence, prefixes: prefixes}
}

// Generate returns the next code for a batch of sourceType received on date.
// sourceRef (e.g. the supplier code) is folded into the code for raw receipts.
func (g *BatchCodeGenerator) Generate(ctx context.Context, sourceType BatchSourceType, sourceRef string, date time.Time) (string, error) {
	prefix, ok := g.prefixes[sourceType]
	if !ok {
		return "", invalidRequest("Invalid batch source type")
	}
	segment := ""
	if sourceType == BatchSourceRawReceipt {
		segment = sourceSegment(sourceRef)
	}
	day := date.Format("20060102")

	key := prefix + "-" + day
	if segment != "" {
		key = prefix + "-" + segment + "-" + day
	}
	seq, err := g.sequence.Next(ctx, key)
	if err != nil {
		return "", fmt.Errorf("next batch code sequence for %s: %w", key, err)
	}
	return FormatBatchCode(prefix, segment, date, seq), nil
}

// FormatBatchCode renders the code without touching the sequence
func FormatBatchCode(prefix, segment string, date time.Time, seq int64) string {
	if segment == "" {
		return fmt.Sprintf("%s-%s-%04d", prefix, date.Format("20060102"), seq)
	}
	return fmt.Sprintf("%s-%s-%s-%04d", prefix, segment, date.Format("20060102"), seq)
}

// NormalizeBatchCode canonicalizes a typed or scanned code: width variants
// folded, surrounding whitespace and inner spaces dropped, upper-cased.
func NormalizeBatchCode(code string) string {
	code = norm.NFKC.String(code)
	code = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, code)
	return cases.Upper(language.Und).String(code)
}

func sourceSegment(ref string) string {
	ref = NormalizeBatchCode(ref)
	var b strings.Builder
	for _, r := range ref {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == maxSourceSegment {
			break
		}
	}
	return b.String()
}
