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
	"errors"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/mxsym/internal/config"
	"github.com/blacktop/mxsym/internal/utils"
	"github.com/blacktop/mxsym/pkg/dsym"
	"github.com/blacktop/mxsym/pkg/symbols"
	perrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var knownArches = []string{"arm64", "arm64e", "arm64_32", "armv7", "armv7k", "armv7s", "x86_64"}

func init() {
	rootCmd.AddCommand(lookupCmd)

	lookupCmd.Flags().StringP("symbols-path", "s", "", "Path to the app's symbols, either xcarchive or dSYM")
	lookupCmd.Flags().StringP("binary-name", "b", "", "Binary name of the app (default: symbols path file name)")
	lookupCmd.Flags().String("os-version", "", "OS version used to pick device support folders")
	lookupCmd.Flags().String("device-model", "", "Device model used to rank device support folders")
	lookupCmd.Flags().Bool("all-roots", false, "Also search device support folders of other OS versions")
	viper.BindPFlag("lookup.symbols-path", lookupCmd.Flags().Lookup("symbols-path"))
	viper.BindPFlag("lookup.binary-name", lookupCmd.Flags().Lookup("binary-name"))
	viper.BindPFlag("lookup.os-version", lookupCmd.Flags().Lookup("os-version"))
	viper.BindPFlag("lookup.device-model", lookupCmd.Flags().Lookup("device-model"))
	viper.BindPFlag("lookup.all-roots", lookupCmd.Flags().Lookup("all-roots"))
}

// lookupCmd represents the lookup command
var lookupCmd = &cobra.Command{
	Use:   "lookup <binary> <uuid> <offset>",
	Short: "Symbolicate a single frame",
	Example: heredoc.Doc(`
		# Resolve an offset into the app binary
		❯ mxsym lookup MyApp 5F2A7C0B-7E29-3B6D-A6E5-1C1F2B0C8F11 0x1a4c --symbols-path MyApp.app.dSYM

		# Resolve an offset into a system framework
		❯ mxsym lookup UIKitCore 0E1F5B4A-3C2D-3B1A-9F8E-7D6C5B4A3F2E 98765 --os-version 17.1 --device-model iPhone15,2
	`),
	Args:          cobra.ExactArgs(3),
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
		for _, arch := range []string{conf.Arch, conf.SystemArch} {
			if !utils.StrSliceHas(knownArches, arch) {
				log.Warnf("Unknown architecture %s", arch)
			}
		}

		binary, id := args[0], args[1]
		offset, err := utils.ConvertStrToInt(args[2])
		if err != nil {
			return perrors.Wrapf(err, "invalid offset %s", args[2])
		}

		var target, symbolsPath string
		if sp := viper.GetString("lookup.symbols-path"); sp != "" {
			target = viper.GetString("lookup.binary-name")
			if target == "" {
				target = dsym.BinaryName(sp)
			}
			symbolsPath = dsym.SymbolsFile(sp, target)
		}

		conf.AllRoots = viper.GetBool("lookup.all-roots")
		loc := newLocator(conf, target, symbolsPath)
		if osVersion := viper.GetString("lookup.os-version"); osVersion != "" {
			loc.AddRoots(selectRoots(conf, osVersion, viper.GetString("lookup.device-model"))...)
		}

		m, err := loc.Resolve(cmd.Context(), binary, id)
		if err != nil {
			var lerr *dsym.LookupError
			if errors.As(err, &lerr) {
				return fmt.Errorf("%s (%s): %s", binary, id, lerr.Reason())
			}
			return err
		}
		log.WithField("rule", m.Rule).Debugf("Found symbols at %s", m.Path)

		sym, err := newResolver(conf).Resolve(cmd.Context(), m.Path, m.Arch, offset)
		if err != nil {
			return perrors.Wrapf(err, "failed to symbolicate %s+%#x", binary, offset)
		}
		if conf.Demangle {
			sym = symbols.DemangleLines(sym)
		}
		fmt.Fprintln(cmd.OutOrStdout(), sym)
		return nil
	},
}
