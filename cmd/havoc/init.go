package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/configfiles"
	"github.com/AlecFritsch/inito/pkg/idgen"
)

// generatedSecretLength is the length of the api.jwt_secret written by init
const generatedSecretLength = 2 * config.MinJWTSecretLength

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write example configuration files",
	Long: `Write the example service configuration to --config and, with --repo-config,
an example .havoc.yml for a repository. Existing files are kept unless --force is set.

The service configuration gets a freshly generated api.jwt_secret, which
HAVOC_API_JWT_SECRET still overrides.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoConfig, _ := cmd.Flags().GetString("repo-config")
		force, _ := cmd.Flags().GetBool("force")

		secret, err := idgen.NewSecureSecret(generatedSecretLength)
		if err != nil {
			return fmt.Errorf("failed to generate api.jwt_secret: %w", err)
		}

		out := cmd.OutOrStdout()
		if err := writeExample(out, configfiles.ServiceExample, configPath, force,
			configfiles.WithJWTSecret(secret)); err != nil {
			return err
		}
		if repoConfig != "" {
			if err := writeExample(out, configfiles.RepoExample, repoConfig, force); err != nil {
				return err
			}
		}
		return nil
	},
}

func writeExample(out io.Writer, name, target string, force bool, edits ...configfiles.Edit) error {
	written, err := configfiles.WriteIfMissing(name, target, force, edits...)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if written {
		fmt.Fprintf(out, "%s %s\n", color.GreenString("created"), target)
	} else {
		fmt.Fprintf(out, "%s %s (already exists)\n", color.YellowString("skipped"), target)
	}
	return nil
}

func init() {
	initCmd.Flags().String("repo-config", "", "also write an example repository config to this path (e.g. .havoc.yml)")
	initCmd.Flags().Bool("force", false, "overwrite existing files")
}
