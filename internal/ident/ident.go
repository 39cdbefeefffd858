// Package ident defines the textual identifier scheme for fetch and model
// artifacts and the parsing rules that recover the embedded timestamp.
package ident

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TimestampLayout is the 14-digit token embedded in fetch and model IDs,
// e.g. "20250617_093553".
const TimestampLayout = "20060102_150405"

// Variant distinguishes the two training configurations.
type Variant string

const (
	WithOutliers    Variant = "with_outliers"
	WithoutOutliers Variant = "without_outliers"
)

// Variants lists the recognized variants in a stable order.
var Variants = []Variant{WithOutliers, WithoutOutliers}

// Valid reports whether v is one of the recognized variant literals.
func (v Variant) Valid() bool {
	return v == WithOutliers || v == WithoutOutliers
}

var (
	// ErrInvalidIdentifier indicates a malformed fetch or model identifier.
	ErrInvalidIdentifier = eris.New("ident: invalid identifier")
	// ErrInvalidTimestamp indicates an identifier whose timestamp token does
	// not match the fixed layout.
	ErrInvalidTimestamp = eris.New("ident: invalid timestamp")
	// ErrInvalidSymbol indicates a stock symbol the identifier scheme cannot
	// represent unambiguously.
	ErrInvalidSymbol = eris.New("ident: invalid stock symbol")
)

// NewFetchID formats the given time as a fetch identifier. Two fetches
// started within the same second collide; callers that need to avoid this
// supply an explicit identifier instead.
func NewFetchID(now time.Time) string {
	return "fetch_" + now.Format(TimestampLayout)
}

// NewModelID formats a model identifier from its parts. The timestamp is the
// raw 14-digit token and the symbol is lowercased.
func NewModelID(symbol, timestamp string, v Variant) string {
	return fmt.Sprintf("model_%s_%s_%s", strings.ToLower(symbol), timestamp, v)
}

// ValidateSymbol rejects symbols the underscore-delimited identifier format
// cannot encode. An underscore in the symbol would shift the timestamp window
// ExtractTimestamp parses, so it is refused up front.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return eris.Wrap(ErrInvalidSymbol, "empty symbol")
	}
	if strings.Contains(symbol, "_") {
		return eris.Wrapf(ErrInvalidSymbol, "symbol %q contains an underscore", symbol)
	}
	return nil
}

// ExtractTimestamp recovers the raw 14-character timestamp token from a model
// identifier such as "model_tsla_20250730_102338_with_outliers". Callers that
// need calendar arithmetic parse the token themselves.
func ExtractTimestamp(modelID string) (string, error) {
	parts := strings.Split(modelID, "_")
	if len(parts) < 6 {
		return "", eris.Wrapf(ErrInvalidIdentifier, "model id %q has %d segments, need at least 6", modelID, len(parts))
	}
	if parts[0] != "model" {
		return "", eris.Wrapf(ErrInvalidIdentifier, "model id %q must start with 'model', got %q", modelID, parts[0])
	}

	suffix := strings.Join(parts[len(parts)-2:], "_")
	if !Variant(suffix).Valid() {
		return "", eris.Wrapf(ErrInvalidIdentifier, "model id %q must end with a recognized variant, got %q", modelID, suffix)
	}

	// The symbol segment carries no underscore (enforced by ValidateSymbol),
	// so the two segments before the variant are the timestamp token.
	ts := strings.Join(parts[len(parts)-4:len(parts)-2], "_")
	if _, err := time.Parse(TimestampLayout, ts); err != nil {
		return "", eris.Wrapf(ErrInvalidTimestamp, "token %q in model id %q", ts, modelID)
	}

	return ts, nil
}
