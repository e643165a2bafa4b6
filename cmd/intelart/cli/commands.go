package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/intelart/internal/chat"
	"github.com/felixgeelhaar/intelart/internal/config"
	"github.com/felixgeelhaar/intelart/internal/rag"
	"github.com/felixgeelhaar/intelart/internal/store"
	"github.com/felixgeelhaar/intelart/internal/ui"
	"github.com/felixgeelhaar/intelart/internal/ui/tui"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, mode, watch string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adjust := func(cfg *config.AppConfig) {
				if addr != "" {
					cfg.Server.Addr = addr
				}
				if mode != "" {
					cfg.Chat.Mode = mode
				}
				if watch != "" {
					cfg.Watch.Dir = watch
				}
			}
			return opts.withApp(cmd, adjust, func(ctx context.Context, app *App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return app.Server().ListenAndServe(gctx)
				})
				if w := app.Watcher(); w != nil {
					g.Go(func() error {
						return w.Run(gctx)
					})
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s écoute sur %s (mode %s)\n", app.Persona.Name, app.Config.Server.Addr, app.Chat.Mode())
				return g.Wait()
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&mode, "mode", "", "Chat mode: knowledge or story")
	cmd.Flags().StringVar(&watch, "watch", "", "Directory whose PDFs are learned automatically")
	return cmd
}

type trainOutput struct {
	Origin      string `json:"origin"`
	SourceID    string `json:"source_id,omitempty"`
	ChunksAdded int    `json:"chunks_added"`
	Skipped     bool   `json:"skipped,omitempty"`
}

func (o *rootOptions) reporter(cmd *cobra.Command) ui.Reporter {
	if o.jsonOut {
		return ui.Silent{}
	}
	return ui.NewConsole(cmd.OutOrStdout())
}

func isText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "train [file...]",
		Short: "Learn PDF or text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				rep := opts.reporter(cmd)
				var out []trainOutput

				for _, path := range args {
					name := filepath.Base(path)
					rep.Status("Apprentissage de " + name)

					res, err := trainPath(ctx, app.Trainer, path, force, rep.Progress)
					if errors.Is(err, rag.ErrAlreadyLearned) {
						rep.Log("Déjà appris : " + name)
						out = append(out, trainOutput{Origin: name, Skipped: true})
						continue
					}
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}

					rep.Log(fmt.Sprintf("%s (%d morceaux)", app.Persona.LearnedFile(name), res.ChunksAdded))
					out = append(out, trainOutput{Origin: name, SourceID: res.Source.ID, ChunksAdded: res.ChunksAdded})
				}

				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Learn files again even if already known")
	return cmd
}

func trainPath(ctx context.Context, t *rag.Trainer, path string, force bool, progress rag.Progress) (*rag.Result, error) {
	if !force && !isText(path) {
		return t.TrainFile(ctx, path, progress)
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	if isText(path) {
		return t.TrainText(ctx, filepath.Base(path), string(data), progress)
	}
	return t.TrainPDF(ctx, filepath.Base(path), data, progress)
}

func newTrainURLCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train-url [url]",
		Short: "Learn the text of a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				rep := opts.reporter(cmd)
				rep.Status("Chargement de " + args[0])

				res, err := app.Trainer.TrainURL(ctx, args[0], rep.Progress)
				if err != nil {
					return err
				}

				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), trainOutput{Origin: args[0], SourceID: res.Source.ID, ChunksAdded: res.ChunksAdded})
				}
				rep.Log(fmt.Sprintf("%s (%d morceaux)", app.Persona.LearnedURL(args[0]), res.ChunksAdded))
				return nil
			})
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var sessionID, mode string

	cmd := &cobra.Command{
		Use:   "ask [message...]",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adjust := func(cfg *config.AppConfig) {
				if mode != "" {
					cfg.Chat.Mode = mode
				}
			}
			return opts.withApp(cmd, adjust, func(ctx context.Context, app *App) error {
				reply, err := app.Chat.Ask(ctx, chat.Request{
					Message:   strings.Join(args, " "),
					SessionID: sessionID,
				})
				if err != nil {
					return err
				}

				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), reply)
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply.Response)
				if reply.MaxScenes > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\n[session %s, scène %d/%d]\n", reply.SessionID, reply.Scene, reply.MaxScenes)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to continue")
	cmd.Flags().StringVar(&mode, "mode", "", "Chat mode: knowledge or story")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			adjust := func(cfg *config.AppConfig) {
				if mode != "" {
					cfg.Chat.Mode = mode
				}
			}
			return opts.withApp(cmd, adjust, func(ctx context.Context, app *App) error {
				maxScenes := 0
				if app.Chat.Mode() == chat.ModeStory {
					maxScenes = app.Chat.MaxScenes()
				}
				return tui.Run(ctx, app.Chat, app.Persona.Name, maxScenes)
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Chat mode: knowledge or story")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show where a session stands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				st, err := app.Chat.Status(ctx, args[0])
				if err != nil {
					return err
				}

				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), st)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Session:  %s\n", st.ID)
				fmt.Fprintf(w, "Scène:    %d/%d\n", st.Scene, st.MaxScenes)
				fmt.Fprintf(w, "Terminée: %t\n", st.Finished)
				fmt.Fprintf(w, "Messages: %d\n", st.Messages)
				fmt.Fprintf(w, "Modifiée: %s\n", st.UpdatedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var index bool

	cmd := &cobra.Command{
		Use:   "reset [session-id]",
		Short: "Forget a session, or the whole index with --index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !index && len(args) == 0 {
				return errors.New("a session id or --index is required")
			}
			return opts.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				if index {
					if err := app.ResetIndex(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Index réinitialisé.")
				}
				if len(args) == 1 {
					if err := app.Chat.Reset(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Session réinitialisée.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&index, "index", false, "Drop every learned chunk")
	return cmd
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List learned sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				sources, err := app.Store.ListSources()
				if err != nil {
					return err
				}

				if opts.jsonOut {
					if sources == nil {
						sources = []*rag.Source{}
					}
					return printJSON(cmd.OutOrStdout(), sources)
				}
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Aucune source apprise.")
					return nil
				}

				t := table.New().
					Border(lipgloss.NormalBorder()).
					Headers("ID", "TYPE", "ORIGINE", "MORCEAUX", "DATE")
				for _, s := range sources {
					t.Row(shortID(s.ID), s.Kind, s.Origin, fmt.Sprint(s.Chunks), s.CreatedAt.Format("2006-01-02 15:04"))
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.String())
				return nil
			})
		},
	}
	cmd.AddCommand(newSourcesShowCmd(opts))
	return cmd
}

type sourceOutput struct {
	*rag.Source
	Text string `json:"text"`
}

func newSourcesShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a learned source and its extracted text",
		Long:  "Print a learned source and its extracted text. The short ID shown by 'sources' is accepted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				id, err := resolveSourceID(app.Store, args[0])
				if err != nil {
					return err
				}
				src, text, err := app.Store.GetSource(id)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if opts.jsonOut {
					return printJSON(w, sourceOutput{Source: src, Text: string(text)})
				}
				fmt.Fprintf(w, "ID:        %s\n", src.ID)
				fmt.Fprintf(w, "Type:      %s\n", src.Kind)
				fmt.Fprintf(w, "Origine:   %s\n", src.Origin)
				fmt.Fprintf(w, "Morceaux:  %d\n", src.Chunks)
				fmt.Fprintf(w, "Date:      %s\n\n", src.CreatedAt.Format("2006-01-02 15:04"))
				fmt.Fprintln(w, strings.TrimRight(string(text), "\n"))
				return nil
			})
		},
	}
}

// resolveSourceID expands a unique ID prefix to the full source ID.
func resolveSourceID(s *store.SQLiteStore, prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("source id is empty")
	}
	sources, err := s.ListSources()
	if err != nil {
		return "", err
	}
	var match string
	for _, src := range sources {
		if src.ID == prefix {
			return src.ID, nil
		}
		if strings.HasPrefix(src.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous source id %q", prefix)
			}
			match = src.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("source %s: %w", prefix, store.ErrNotFound)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
