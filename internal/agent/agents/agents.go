// Package agents imports every LLM client implementation so their init()
// functions register them with the llm registry.
//
// Entry points import this package instead of individual client packages.
package agents

import (
	_ "github.com/AlecFritsch/inito/internal/llm/gemini"
	_ "github.com/AlecFritsch/inito/internal/llm/mock"
)
