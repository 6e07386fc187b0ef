package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tgmirror/tgmirror/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample tgmirror configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/tgmirror/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  tgmirror init

  # Initialize with custom path
  tgmirror init --config /etc/tgmirror/config.yaml

  # Force overwrite existing config
  tgmirror init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set transport.api_id and transport.api_hash (https://my.telegram.org/apps)")
	fmt.Println("  2. Authorize a session: tgmirror session login --phone +15550001111")
	fmt.Println("  3. Start the engine: tgmirror start")
	fmt.Println("\nSecurity note:")
	fmt.Println("  The config file holds the API hash and is written with 0600 permissions.")
	fmt.Printf("  The hash can also be supplied via the environment:\n")
	fmt.Printf("    export TGMIRROR_TRANSPORT_API_HASH=<hash>\n")

	return nil
}
