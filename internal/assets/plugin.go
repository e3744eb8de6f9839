package assets

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/wolfeidau/sitebundle/internal/include"
	"github.com/wolfeidau/sitebundle/internal/telemetry"
)

const includePluginName = "html-include"

// IncludePlugin returns an esbuild plugin that loads .html modules as text after expanding
// their include directives. Every included file is added to the module's watch files and
// passed to onDependency.
func IncludePlugin(fsys afero.Fs, rootDir string, resolver *include.Resolver, onDependency func(paths ...string)) api.Plugin {
	return api.Plugin{
		Name: includePluginName,
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.html$`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents, deps, err := include.ExpandPath(resolver, fsys, args.Path, rootDir)
				if onDependency != nil {
					onDependency(deps...)
				}

				if err != nil {
					log.Error().Err(err).Str("path", args.Path).Msg("Include expansion failed")
					return api.OnLoadResult{
						PluginName: includePluginName,
						Errors:     []api.Message{{Text: err.Error()}},
						WatchFiles: deps,
					}, nil
				}

				telemetry.GetMetrics().IncludesExpandedTotal.Add(context.Background(), int64(len(deps)))

				return api.OnLoadResult{
					Contents:   &contents,
					Loader:     api.LoaderText,
					WatchFiles: deps,
				}, nil
			})
		},
	}
}
