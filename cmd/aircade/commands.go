package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/palemoky/aircade/internal/bridge"
	"github.com/palemoky/aircade/internal/logger"
	"github.com/palemoky/aircade/internal/ui"
)

// pongGameID 内置的示例游戏
const pongGameID = "00000000-0000-0000-0000-000000000001"

// errEphemeralStorage memory 驱动在命令退出后丢失全部内容
var errEphemeralStorage = errors.New("memory storage is lost when the command exits; use --storage file or redis")

// persistent 登录、登出与恢复需要能跨进程保存的存储
func persistent(a *app) error {
	if a.cfg.Storage.Driver == "memory" {
		return errEphemeralStorage
	}
	return nil
}

func newHostCmd(opts *options) *cobra.Command {
	var (
		maxPlayers int
		gameID     string
		token      string
	)
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Create a session and run the host console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.resume {
				if err := persistent(a); err != nil {
					return err
				}
			}
			if token != "" {
				if err := a.store.SetTokens(cmd.Context(), token, ""); err != nil {
					return err
				}
			}

			model := ui.NewConsoleModel(a.sess, ui.ConsoleOptions{
				MaxPlayers: maxPlayers,
				GameID:     gameID,
				WebBase:    opts.webURL,
				RenderDir:  opts.renderDir,
				Resume:     opts.resume,
			})
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().IntVarP(&maxPlayers, "max-players", "m", 0, "maximum players, 0 for the configured default")
	cmd.Flags().StringVarP(&gameID, "game", "g", pongGameID, "game to load when starting")
	cmd.Flags().StringVar(&token, "token", "", "host access token, stored like login (env: AIRCADE_TOKEN)")
	return cmd
}

func newJoinCmd(opts *options) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "join CODE",
		Short: "Join a session as a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.resume {
				if err := persistent(a); err != nil {
					return err
				}
			}

			model := ui.NewControllerModel(a.sess, ui.ControllerOptions{
				Code:      args[0],
				Name:      name,
				RenderDir: opts.renderDir,
				Resume:    opts.resume,
			})
			_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name shown to the host")
	return cmd
}

func newLoginCmd(opts *options) *cobra.Command {
	var token, refresh string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store host credentials for creating sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := persistent(a); err != nil {
				return err
			}
			if err := a.store.SetTokens(cmd.Context(), token, refresh); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved.")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token")
	cmd.Flags().StringVar(&refresh, "refresh-token", "", "refresh token")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget stored credentials and the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := persistent(a); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.store.Clear(ctx); err != nil {
				return err
			}
			if err := a.store.DeleteSession(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newRenderCmd() *cobra.Command {
	var (
		role   string
		output string
		title  string
	)
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Wrap game or controller code in a sandboxed page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var doc string
			switch role {
			case "host", "game":
				doc, err = bridge.GameScreenDocument(string(code))
			case "player", "controller":
				doc, err = bridge.ControllerScreenDocument(string(code))
			default:
				return fmt.Errorf("unknown role %q, want host or player", role)
			}
			if err != nil {
				return err
			}
			if title == "" {
				title = filepath.Base(args[0])
			}
			page, err := bridge.FramePage(title, doc)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), page)
				return err
			}
			return os.WriteFile(output, []byte(page), 0o644)
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", "host", "host (game screen) or player (controller)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, stdout when empty")
	cmd.Flags().StringVar(&title, "title", "", "page title")
	return cmd
}

// setup 加载配置、初始化日志并组装组件
func setup(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	l := logger.L("cli")
	l.Info().Str("command", cmd.Name()).Str("api", cfg.API.BaseURL).Str("storage", cfg.Storage.Driver).Msg("starting")
	return newApp(cmd.Context(), cfg)
}
