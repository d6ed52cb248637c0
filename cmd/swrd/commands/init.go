package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/betterforces/swr/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample swrd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/swr/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  swrd init

  # Initialize with custom path
  swrd init --config /etc/swr/config.yaml

  # Force overwrite existing config
  swrd init --force`,
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
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: swrd start")
	fmt.Printf("  3. Or specify custom config: swrd start --config %s\n", configPath)

	return nil
}
