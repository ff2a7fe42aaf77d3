package cli

import "errors"

// ErrPromptCancelled indicates that the user aborted an interactive prompt
// (Ctrl-C, EOF on stdin).
var ErrPromptCancelled = errors.New("prompt cancelled")
