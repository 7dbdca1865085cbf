/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/blacktop/mxsym/internal/colors"
	"github.com/blacktop/mxsym/internal/config"
	"github.com/blacktop/mxsym/pkg/dsym"
	"github.com/blacktop/mxsym/pkg/metrickit"
	"github.com/blacktop/mxsym/pkg/symbolicator"
	"github.com/blacktop/mxsym/pkg/xcode"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	perrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
	// AppVersion stores the build's version
	AppVersion string
	// AppBuildCommit stores the build's commit
	AppBuildCommit string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mxsym",
	Short: "Symbolicate MetricKit diagnostic reports",
	Long: heredoc.Doc(`
		Symbolicate the call stack trees of a MetricKit diagnostic report.

		Frames of your app are resolved with its dSYM, system frames with the
		matching folder of Xcode's iOS DeviceSupport directory.
	`),
	Example: heredoc.Doc(`
		# Symbolicate a crash report with the dSYMs of an archive
		❯ mxsym --report-path crash.json --symbols-path MyApp.xcarchive

		# Use a dSYM bundle and search every device support folder
		❯ mxsym --report-path cpu.json --symbols-path MyApp.app.dSYM --all-roots

		# Symbolicate without Xcode's command line tools
		❯ mxsym --report-path hang.json --symbols-path MyApp.app.dSYM --uuid-tool macho --resolver macho --demangle
	`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if conf.ReportPath == "" || conf.SymbolsPath == "" {
			return errors.New("report path and symbols path are required (--report-path, --symbols-path)")
		}
		if viper.IsSet("color") {
			colors.Init(&conf.Color)
		}

		out := cmd.OutOrStdout()

		binary := conf.BinaryName
		if binary == "" {
			binary = dsym.BinaryName(conf.SymbolsPath)
		}
		symbolsPath := dsym.SymbolsFile(conf.SymbolsPath, binary)

		fmt.Fprintf(out, "Binary name: %s\n", binary)

		if _, err := os.Stat(symbolsPath); err != nil {
			fmt.Fprintf(out, "dSYM path '%s' does not exist\n", symbolsPath)
			return nil
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		loc := newLocator(conf, binary, symbolsPath)

		id, err := loc.UUID(ctx, symbolsPath, conf.Arch)
		if err != nil {
			return perrors.Wrapf(err, "failed to read UUID of %s", symbolsPath)
		}
		fmt.Fprintf(out, "UUID of specified dSYM is %s\n", id)

		rep, err := metrickit.Open(conf.ReportPath)
		if err != nil {
			return perrors.Wrapf(err, "failed to parse report %s", conf.ReportPath)
		}

		roots := selectRoots(conf, rep.OSVersion, rep.DeviceModel)
		loc.AddRoots(roots...)

		sym := symbolicator.New(symbolicator.Options{
			Writer:   out,
			Locator:  loc,
			Resolver: newResolver(conf),
			MaxDepth: conf.MaxDepth,
			Palette:  colors.NewPalette(colors.Enabled()),
			Demangle: conf.Demangle,
		}, roots)

		if err := ctrlc.Default.Run(ctx, func() error {
			return sym.Symbolicate(ctx, rep)
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				cancel()
				log.Warn("Exiting...")
			}
			return err
		}

		fs, ls := sym.Stats(), loc.Stats()
		log.WithFields(log.Fields{
			"unresolved": fs.Unresolved,
			"failed":     fs.Failed,
			"missing":    fs.Missing,
			"probes":     humanize.Comma(int64(ls.Probes)),
		}).Infof("Symbolicated %s of %s frames", humanize.Comma(int64(fs.Symbolicated)), humanize.Comma(int64(fs.Frames)))

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mxsym/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	rootCmd.PersistentFlags().Bool("color", false, "colorize output")
	rootCmd.PersistentFlags().String("device-support", config.DefaultDeviceSupport, "Xcode iOS DeviceSupport directory")
	rootCmd.PersistentFlags().String("uuid-tool", config.UUIDToolDwarfdump, "UUID reader (dwarfdump, macho)")
	rootCmd.PersistentFlags().String("resolver", config.ResolverAtos, "Symbol resolver (atos, macho)")
	rootCmd.PersistentFlags().String("dwarfdump", "dwarfdump", "Path to dwarfdump")
	rootCmd.PersistentFlags().String("atos", "atos", "Path to atos")
	rootCmd.PersistentFlags().Duration("timeout", defaultTimeout, "Timeout for each external tool invocation")
	rootCmd.PersistentFlags().String("arch", "arm64", "Architecture of the app binary")
	rootCmd.PersistentFlags().String("system-arch", "arm64e", "Architecture of system binaries")
	rootCmd.PersistentFlags().Bool("demangle", false, "Demangle Swift and C++ symbol names")
	for _, name := range []string{"verbose", "color", "device-support", "uuid-tool", "resolver", "dwarfdump", "atos", "timeout", "arch", "system-arch", "demangle"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	viper.BindEnv("color", "CLICOLOR_FORCE")

	rootCmd.Flags().StringP("report-path", "r", "", "Path to MetricKit diagnostic report")
	rootCmd.Flags().StringP("symbols-path", "s", "", "Path to symbols file, either xcarchive or dSYM")
	rootCmd.Flags().StringP("binary-name", "b", "", "Binary name (default: symbols path file name)")
	rootCmd.Flags().Bool("all-roots", false, "Also search device support folders of other OS versions")
	rootCmd.Flags().Int("max-depth", symbolicator.DefaultMaxDepth, "Maximum call stack tree depth")
	rootCmd.MarkFlagFilename("report-path", "json")
	for _, name := range []string{"report-path", "symbols-path", "binary-name", "all-roots", "max-depth"} {
		viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".config", "mxsym"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("mxsym")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func selectRoots(conf *config.Config, osVersion, deviceModel string) []string {
	folders, err := xcode.ListDeviceSupport(conf.DeviceSupport)
	if err != nil {
		log.WithError(err).Debugf("failed to list %s", conf.DeviceSupport)
		return nil
	}
	var roots []string
	for _, ds := range xcode.SelectRoots(folders, xcode.Query{
		OSVersion:   osVersion,
		DeviceModel: deviceModel,
		All:         conf.AllRoots,
	}) {
		roots = append(roots, ds.SymbolsPath())
	}
	return roots
}
