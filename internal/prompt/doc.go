// Package prompt builds the chat messages that ask a language model to
// rephrase an evidence bundle.
//
// The model only ever sees the bundle: bullets, citations and stats. It
// never receives the source document, so redacted values stay redacted.
//
//	messages, err := prompt.Build(prompt.TypeFor(bundle), prompt.BuildOptions{
//	    Bundle: bundle,
//	    Style:  hints.Style,
//	})
//	resp, err := provider.Chat(ctx, messages, chatOpts)
package prompt
