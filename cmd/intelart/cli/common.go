package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/intelart/internal/config"
)

// withApp loads the configuration, lets adjust override it, builds the app
// and runs fn with it.
func (o *rootOptions) withApp(cmd *cobra.Command, adjust func(*config.AppConfig), fn func(ctx context.Context, app *App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(cfg)
	}

	obs := observer(cfg, cmd.ErrOrStderr())
	defer obs.Close()

	app, err := NewApp(cmd.Context(), cfg, obs)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(cmd.Context(), app)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
