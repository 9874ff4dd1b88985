// Package pipeline wires the caption data flow: frame source, amplitude
// gate, speech segmentation, synchronous transcription dispatch, dedup, text
// normalization, and the output sinks. One consumer goroutine drains the
// frame queue; frames, chunks, and caption lines all keep arrival order.
package pipeline
