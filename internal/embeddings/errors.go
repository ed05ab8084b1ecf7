package embeddings

import "errors"

var (
	// ErrEmptyInput indicates empty or nil input text.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidEncoding indicates a stored embedding could not be decoded.
	ErrInvalidEncoding = errors.New("invalid embedding encoding")
)
