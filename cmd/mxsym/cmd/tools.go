package cmd

import (
	"time"

	"github.com/blacktop/mxsym/internal/config"
	"github.com/blacktop/mxsym/pkg/atos"
	"github.com/blacktop/mxsym/pkg/dsym"
)

const defaultTimeout = 30 * time.Second

func newUUIDReader(conf *config.Config) dsym.UUIDReader {
	if conf.Tools.UUID == config.UUIDToolMacho {
		return dsym.Macho{}
	}
	return dsym.Dwarfdump{Path: conf.Tools.Dwarfdump, Timeout: conf.Tools.Timeout}
}

func newResolver(conf *config.Config) atos.Resolver {
	if conf.Tools.Resolver == config.ResolverMacho {
		return atos.Macho{Demangle: conf.Demangle}
	}
	return atos.Atos{Path: conf.Tools.Atos, Timeout: conf.Tools.Timeout}
}

func newLocator(conf *config.Config, binary, symbolsPath string) *dsym.Locator {
	return dsym.NewLocator(dsym.Config{
		Target:      binary,
		SymbolsPath: symbolsPath,
		Arch:        conf.Arch,
		SystemArch:  conf.SystemArch,
		UUIDs:       newUUIDReader(conf),
	})
}
