package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/listenup/listenup/common/version"
	"github.com/listenup/listenup/lu/cmd/lu/cli"
)

const (
	DefaultConfigDir = "~/"
	ConfigFileName   = ".lu"
	// DefaultEndpoint is where a ListenUp server started with default flags listens.
	DefaultEndpoint = "http://localhost:8000"
)

var (
	defaultConfigFilePath = fmt.Sprintf("%s%s.yml", DefaultConfigDir, ConfigFileName)
)

type GlobalConfig struct {
	Endpoint       string
	Debug          bool
	JSON           bool
	ConfigFilePath string
}

// APIEndpoint resolves the server endpoint to connect to. An explicit
// --endpoint flag wins, then the "endpoint" key from the config file or the
// LU_ENDPOINT environment variable, then the local development default.
func (c *GlobalConfig) APIEndpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		return endpoint
	}
	return DefaultEndpoint
}

var Global = &GlobalConfig{}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initEnv)

	RootCmd.PersistentFlags().StringVarP(
		&Global.ConfigFilePath,
		"config",
		"c",
		defaultConfigFilePath,
		"The config file to use when executing commands.")

	RootCmd.PersistentFlags().StringVarP(
		&Global.Endpoint,
		"endpoint",
		"e",
		"",
		fmt.Sprintf("The ListenUp server endpoint to connect to. Defaults to %s.", DefaultEndpoint))

	RootCmd.PersistentFlags().BoolVarP(
		&Global.Debug,
		"debug",
		"d",
		false,
		"Enable verbose debug output.")

	RootCmd.PersistentFlags().BoolVarP(
		&Global.JSON,
		"json",
		"j",
		false,
		"Enable structured JSON output.")
}

func initEnv() {
	viper.SetEnvPrefix("lu")
	viper.AutomaticEnv()
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cli.Exit(RootCmd.Execute())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {

	if Global.ConfigFilePath != "" && Global.ConfigFilePath != defaultConfigFilePath {
		viper.SetConfigFile(Global.ConfigFilePath)
	} else {
		viper.SetConfigName(ConfigFileName)
		viper.AddConfigPath(DefaultConfigDir)
		viper.AddConfigPath(".")
	}

	// If a config file is found, read it in.
	err := viper.ReadInConfig()
	if err == nil {
		Global.ConfigFilePath = viper.ConfigFileUsed()
		if Global.Debug {
			cli.Stderr.Printf("Using config file: %s", viper.ConfigFileUsed())
		}
	} else {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
		default:
			cli.Exit(fmt.Errorf("error loading config file (%s): %s", viper.ConfigFileUsed(), err))
		}
	}
}

var RootCmd = &cobra.Command{
	Use:     "lu",
	Short:   "ListenUp",
	Long:    `lu submits multi-step processing pipelines to a ListenUp server and follows them to completion.`,
	Version: version.VersionToString(),
}
