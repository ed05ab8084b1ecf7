// Package embeddings turns signal text into vectors and compares them.
//
// A Provider produces raw vectors (TEI over HTTP, any OpenAI-compatible
// endpoint through langchaingo, or local ONNX models through fastembed).
// Service wraps a provider with validation and metrics and is what the
// pipeline depends on. Similarity is plain cosine similarity and never fails:
// mismatched or zero vectors compare as 0.
package embeddings
