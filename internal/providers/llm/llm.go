package llm

import "context"

// Provider produces the post-interview review text.
type Provider interface {
	// StreamAnswer streams incremental text chunks. errs yields at most one
	// error and is closed once chunks is drained.
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)
	Close() error
}
