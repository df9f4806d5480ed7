// Package configfiles provides the embedded example configuration files
// written by "havoc init".
package configfiles

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
)

//go:embed havoc.example.yaml
//go:embed repo.example.yml
var configFS embed.FS

// Example file names inside the embedded filesystem
const (
	ServiceExample = "havoc.example.yaml"
	RepoExample    = "repo.example.yml"
)

// GetServiceExample returns the example service configuration
func GetServiceExample() ([]byte, error) {
	return configFS.ReadFile(ServiceExample)
}

// GetRepoExample returns the example per-repository .havoc.yml
func GetRepoExample() ([]byte, error) {
	return configFS.ReadFile(RepoExample)
}

// Edit rewrites an embedded file before it is written
type Edit func([]byte) []byte

// jwtSecretLine is the api.jwt_secret value in the service example
const jwtSecretLine = "jwt_secret: ${HAVOC_API_JWT_SECRET:-}"

// WithJWTSecret makes secret the fallback of api.jwt_secret.
// HAVOC_API_JWT_SECRET still overrides it.
func WithJWTSecret(secret string) Edit {
	return func(data []byte) []byte {
		return bytes.Replace(data,
			[]byte(jwtSecretLine),
			[]byte("jwt_secret: ${HAVOC_API_JWT_SECRET:-"+secret+"}"), 1)
	}
}

// WriteIfMissing writes the embedded file name to target unless target exists.
// Parent directories are created. It reports whether the file was written.
func WriteIfMissing(name, target string, force bool, edits ...Edit) (bool, error) {
	if !force {
		if _, err := os.Stat(target); err == nil {
			return false, nil
		}
	}

	data, err := configFS.ReadFile(name)
	if err != nil {
		return false, err
	}
	for _, edit := range edits {
		data = edit(data)
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}
