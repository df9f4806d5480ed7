package config

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/AlecFritsch/inito/pkg/errors"
)

// Repository configuration file names, in lookup order
var RepoConfigFiles = []string{".havoc.yml", ".havoc.yaml", ".havoc.toml"}

// RepoConfig is the per-repository configuration read from the cloned repository
type RepoConfig struct {
	MaxIterations   int      `yaml:"max_iterations" toml:"max_iterations" json:"max_iterations" validate:"gte=1,lte=100"`
	TimeoutMinutes  int      `yaml:"timeout_minutes" toml:"timeout_minutes" json:"timeout_minutes" validate:"gte=1,lte=240"`
	TestCommand     string   `yaml:"test_command" toml:"test_command" json:"test_command,omitempty"`
	LintCommand     string   `yaml:"lint_command" toml:"lint_command" json:"lint_command,omitempty"`
	MinConfidence   int      `yaml:"min_confidence" toml:"min_confidence" json:"min_confidence" validate:"gte=0,lte=100"`
	MinTestPassRate int      `yaml:"min_test_pass_rate" toml:"min_test_pass_rate" json:"min_test_pass_rate" validate:"gte=0,lte=100"`
	AllowedCommands []string `yaml:"allowed_commands" toml:"allowed_commands" json:"allowed_commands" validate:"dive,required"`
	ProtectedFiles  []string `yaml:"protected_files" toml:"protected_files" json:"protected_files" validate:"dive,required"`
}

// DefaultLintCommand is used when a repository does not configure lint_command
const DefaultLintCommand = "npm run lint --if-present"

// DefaultRepoConfig returns the configuration used when a repository has no .havoc file
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		MaxIterations:   10,
		TimeoutMinutes:  30,
		LintCommand:     DefaultLintCommand,
		MinConfidence:   70,
		MinTestPassRate: 80,
		AllowedCommands: []string{
			"npm", "npx", "yarn", "pnpm", "node", "git", "go", "pytest", "python", "cargo", "make",
		},
		ProtectedFiles: []string{
			".env", ".env.*", "*.pem", "*.key", ".github/workflows/*",
			"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
		},
	}
}

var repoValidator = validator.New()

// Validate checks value ranges of the repository configuration
func (c *RepoConfig) Validate() error {
	if err := repoValidator.Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
			}
		} else {
			fields = append(fields, err.Error())
		}
		return errors.New(errors.ErrCodeConfigInvalid,
			"invalid repository config: "+strings.Join(fields, ", "))
	}
	return nil
}

// ParseRepoConfig parses repository configuration content. format is "yaml" or "toml".
// Keys missing from the content keep their default values.
func ParseRepoConfig(data []byte, format string) (*RepoConfig, error) {
	cfg := DefaultRepoConfig()

	var err error
	switch format {
	case "toml":
		err = toml.Unmarshal(data, cfg)
	case "yaml", "yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, errors.New(errors.ErrCodeConfigParse, "unsupported config format: "+format)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigParse, "failed to parse repository config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RepoFiles reads files of a checked out repository by relative path
type RepoFiles interface {
	FileExists(ctx context.Context, path string) bool
	ReadFile(ctx context.Context, path string) (string, error)
}

// LoadRepoConfig reads the first .havoc file found in the repository.
// A repository without one gets DefaultRepoConfig and a nil error.
func LoadRepoConfig(ctx context.Context, files RepoFiles) (*RepoConfig, string, error) {
	for _, name := range RepoConfigFiles {
		if !files.FileExists(ctx, name) {
			continue
		}
		data, err := files.ReadFile(ctx, name)
		if err != nil {
			return nil, "", errors.Wrap(errors.ErrCodeConfigNotFound, "failed to read "+name, err)
		}

		format := strings.TrimPrefix(filepath.Ext(name), ".")
		cfg, err := ParseRepoConfig([]byte(data), format)
		if err != nil {
			return nil, name, err
		}
		return cfg, name, nil
	}
	return DefaultRepoConfig(), "", nil
}

// IsProtected reports whether path matches any protected file pattern
func (c *RepoConfig) IsProtected(path string) bool {
	_, ok := c.MatchProtected(path)
	return ok
}

// MatchProtected returns the first protected pattern matching path
func (c *RepoConfig) MatchProtected(path string) (string, bool) {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	for _, pattern := range c.ProtectedFiles {
		if MatchPattern(pattern, path) {
			return pattern, true
		}
	}
	return "", false
}

// EffectiveLintCommand returns the lint command, falling back to the default
func (c *RepoConfig) EffectiveLintCommand() string {
	if strings.TrimSpace(c.LintCommand) == "" {
		return DefaultLintCommand
	}
	return c.LintCommand
}

// MatchPattern matches a protected-file pattern against a slash separated path.
// Patterns containing * or ? are globs where * matches any characters
// (including /) and ? matches exactly one character. Other patterns match the
// path exactly or as a prefix.
func MatchPattern(pattern, path string) bool {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	if pattern == "" {
		return false
	}
	if !strings.ContainsAny(pattern, "*?") {
		return path == pattern || strings.HasPrefix(path, pattern)
	}
	return globToRegexp(pattern).MatchString(path)
}

func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
