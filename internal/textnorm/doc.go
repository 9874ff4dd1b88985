// Package textnorm implements the correction pipeline applied to raw
// recognition output. It loads an ordered rule dictionary from a TSV
// resource (with a built-in fallback), applies the rules together with fixed
// Unicode, unit-spacing, and punctuation normalization passes, and suppresses
// filler phrases and consecutive duplicate lines.
package textnorm
