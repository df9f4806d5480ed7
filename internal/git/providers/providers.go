// Package providers imports every Git provider implementation so their init()
// functions register them in provider.Registry.
//
// Entry points import this package instead of individual provider packages.
package providers

import (
	_ "github.com/AlecFritsch/inito/internal/git/github"
)
