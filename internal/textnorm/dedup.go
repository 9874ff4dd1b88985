package textnorm

// defaultFillers are known-spurious recognition outputs that are suppressed
// unconditionally, such as the boilerplate closing remarks the engine emits
// for near-silent audio.
var defaultFillers = []string{
	"ご視聴ありがとうございました",
	"ご視聴ありがとうございました。",
	"最後まで視聴してくださって ありがとうございます",
}

// DedupReason says why a line was suppressed
type DedupReason string

const (
	ReasonFiller    DedupReason = "filler"
	ReasonDuplicate DedupReason = "duplicate"
)

// Dedup suppresses filler phrases and consecutive duplicate lines for one
// logical stream. The only state carried between calls is the last emitted
// line; a Dedup must not be shared across concurrent streams.
type Dedup struct {
	fillers map[string]struct{}
	last    string
}

// NewDedup creates a filter with the default filler set plus any extras
func NewDedup(extra ...string) *Dedup {
	fillers := make(map[string]struct{}, len(defaultFillers)+len(extra))
	for _, f := range defaultFillers {
		fillers[f] = struct{}{}
	}
	for _, f := range extra {
		fillers[f] = struct{}{}
	}

	return &Dedup{fillers: fillers}
}

// Accept reports whether the line should be emitted. An accepted line
// becomes the new dedup reference; rejected lines leave it unchanged.
func (d *Dedup) Accept(line string) (bool, DedupReason) {
	if _, ok := d.fillers[line]; ok {
		return false, ReasonFiller
	}

	if line == d.last {
		return false, ReasonDuplicate
	}

	d.last = line
	return true, ""
}

// Reset clears the duplicate-line reference
func (d *Dedup) Reset() {
	d.last = ""
}
