// Package dataset owns the Sample Collection: spectrogram metadata rows and
// their embedding vectors, held together behind one constructor.
//
// The embedding matrix and the metadata table are produced by an external
// feature-extraction step and are row-aligned only by construction order.
// NewCollection is the single place that alignment is checked; afterwards the
// pair is never exposed independently. Collections are immutable: label
// correction and filtering return new collections.
package dataset
