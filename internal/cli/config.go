package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/shelfcache/pkg/config"
)

func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration file",
	}
	cmd.AddCommand(c.configInitCommand())
	cmd.AddCommand(c.configShowCommand())
	return cmd
}

func (c *CLI) configInitCommand() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Example: `  shelfcache config init
  shelfcache config init --path ./shelfcache.toml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				dir, err := config.Dir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, config.FileName)
			}
			if err := config.WriteFile(path, config.Default(), force); err != nil {
				return err
			}
			printSuccess(c.out, "Wrote %s", path)
			printInfo(c.out, "Set %s to your Hardcover API token", config.Default().Hardcover.TokenEnv)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "where to write (default: user config dir)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (c *CLI) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  `Print the configuration after defaults, the config file and SHELFCACHE_* environment variables are applied.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.File != "" {
				printInfo(c.errOut, "From %s", c.cfg.File)
			} else {
				printInfo(c.errOut, "No config file found; showing defaults")
			}
			return config.Encode(c.out, c.cfg)
		},
	}
}
