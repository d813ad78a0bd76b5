package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "azpreflight",
	Short: "Azure migration pre-flight validation engine",
	Long: `azpreflight checks whether declared migration projects and their
target machines are ready to migrate to Azure before a wave starts: RBAC
and appliance health at the project level, then region, resource group,
network, SKU, disk type, discovery and RBAC at the machine level. It
never modifies a migration project or target resource other than
optionally creating a missing cache storage account.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	rootCmd.AddCommand(validateCmd())
}

func initConfig() {
	viper.SetEnvPrefix("AZPREFLIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON instead of a table")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}
