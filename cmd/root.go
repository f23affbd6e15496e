package cmd

import (
	"fmt"
	"os"

	"github.com/Manu343726/elfkit/cmd/elfdump"
	"github.com/Manu343726/elfkit/cmd/elflint"
	"github.com/Manu343726/elfkit/cmd/ldi386"
	"github.com/Manu343726/elfkit/cmd/tools"
	"github.com/Manu343726/elfkit/cmd/unstrip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "elfkit",
	Short: "ELF/DWARF toolchain: validator, dumper, and debuginfo recombiner",
	Long: `elfkit reads, validates, and transforms ELF object files and their
embedded DWARF debugging information.

This CLI is the entry point for the elfkit tools: a pedantic validator
(elflint), a section/debug-info dumper (elfdump), a debuginfo/stripped
recombiner (unstrip), and a prototype i386 linker front-end (ldi386).`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.elfkit.yaml)")
	RootCmd.PersistentFlags().Bool("no-color", false, "disable colorized output")
	viper.BindPFlag("no-color", RootCmd.PersistentFlags().Lookup("no-color"))

	RootCmd.AddCommand(elflint.Cmd, elfdump.Cmd, unstrip.Cmd, ldi386.Cmd, tools.ToolsCmd)
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".elfkit")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
