// Package cmd is the mctool command surface: one root command whose flags
// select a lifecycle operation, falling through to the interactive console
// when no operation is requested.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"mctool/internal/backup"
	"mctool/internal/cli/ui"
	"mctool/internal/config"
	"mctool/internal/console"
	"mctool/internal/domain"
	"mctool/internal/jvm"
	"mctool/internal/lifecycle"
	"mctool/internal/session"
	"mctool/internal/storage"
)

// SessionName is the fixed screen session the tool owns. One server per
// directory, one session per server.
const SessionName = "minecraft"

var (
	flagDir        string
	flagStart      bool
	flagStop       bool
	flagRestart    bool
	flagStatus     bool
	flagBackup     bool
	flagCommand    string
	flagInstall    string
	flagSwitch     string
	flagServerType string
	flagForce      bool
	flagRAM        int
	flagSkipChecks bool
)

// usageError marks invalid invocations, exit code 2 instead of 1.
type usageError string

func (e usageError) Error() string { return string(e) }

var RootCmd = &cobra.Command{
	Use:   "mctool",
	Short: "Supervise a Minecraft server in a detached screen session",
	Long: `mctool hosts a Minecraft server inside a GNU screen session and drives
its lifecycle: start, graceful stop, world backups and version switches.
Run it without flags to attach the interactive console.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func Execute() {
	fl := RootCmd.Flags()
	fl.StringVar(&flagDir, "dir", defaultServerDir(), "server directory")
	fl.BoolVar(&flagStart, "start", false, "start the server and wait until it is ready")
	fl.BoolVar(&flagStop, "stop", false, "stop the server gracefully")
	fl.BoolVar(&flagRestart, "restart", false, "stop the server and start it again")
	fl.BoolVar(&flagStatus, "status", false, "print server status as JSON")
	fl.BoolVar(&flagBackup, "backup", false, "archive the world folders")
	fl.StringVarP(&flagCommand, "command", "c", "", "send a single console command")
	fl.StringVar(&flagInstall, "install", "", "install a server of the given version")
	fl.StringVar(&flagSwitch, "switch-version", "", "switch the installed server to the given version")
	fl.StringVar(&flagServerType, "server-type", string(domain.TypeVanilla), "server type (vanilla or paper)")
	fl.BoolVar(&flagForce, "force", false, "switch even when the pre-switch backup fails")
	fl.IntVar(&flagRAM, "ram", 0, "heap size in GiB for --install (0 keeps the saved value)")
	fl.BoolVar(&flagSkipChecks, "skip-checks", false, "skip the java and screen dependency checks")

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var uerr usageError
		if errors.As(err, &uerr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func defaultServerDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "minecraft-server")
	}
	return "minecraft-server"
}

func run(cmd *cobra.Command, args []string) error {
	selected := 0
	for _, on := range []bool{
		flagStart, flagStop, flagRestart, flagStatus, flagBackup,
		flagCommand != "", flagInstall != "", flagSwitch != "",
	} {
		if on {
			selected++
		}
	}
	if selected > 1 {
		return usageError("choose a single operation")
	}

	serverType := domain.ServerType(flagServerType)
	if (flagInstall != "" || flagSwitch != "") && !serverType.Valid() {
		return usageError(fmt.Sprintf("unknown server type %q, use vanilla or paper", flagServerType))
	}

	a, err := buildApp(flagDir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case flagStatus:
		return a.printStatus()
	case flagStart:
		if err := runChecks(); err != nil {
			return err
		}
		return a.start(ctx)
	case flagStop:
		return a.stop(ctx)
	case flagRestart:
		if err := runChecks(); err != nil {
			return err
		}
		return a.restart(ctx)
	case flagBackup:
		return a.backup(ctx)
	case flagCommand != "":
		return a.send(flagCommand)
	case flagInstall != "":
		if err := runChecks(); err != nil {
			return err
		}
		return a.install(ctx, serverType, flagInstall)
	case flagSwitch != "":
		if err := runChecks(); err != nil {
			return err
		}
		return a.switchVersion(ctx, serverType, flagSwitch)
	default:
		return a.runConsole()
	}
}

func runChecks() error {
	if flagSkipChecks {
		return nil
	}
	if err := jvm.Check(); err != nil {
		return err
	}
	return session.CheckScreen()
}

// app wires the packages together for one server directory.
type app struct {
	settings *config.FileStore
	sess     session.Session
	tailer   *console.Tailer
	channel  *console.Channel
	store    *storage.GormStore
	backups  *backup.Manager
	ctrl     *lifecycle.Controller
}

func buildApp(serverDir string) (*app, error) {
	settings, err := config.Load(serverDir)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewGormStore(filepath.Join(serverDir, config.DatabaseFileName), storage.DefaultHistoryCap)
	if err != nil {
		return nil, err
	}

	sess := session.NewScreen(SessionName, serverDir)
	tailer := console.NewTailer(filepath.Join(serverDir, config.LogFileName))
	channel := console.NewChannel(sess, store)
	backups := backup.NewManager(serverDir, store)

	return &app{
		settings: settings,
		sess:     sess,
		tailer:   tailer,
		channel:  channel,
		store:    store,
		backups:  backups,
		ctrl:     lifecycle.NewController(settings, sess, tailer, channel, backups, lifecycle.DefaultOptions(serverDir)),
	}, nil
}

func (a *app) printStatus() error {
	data, err := json.MarshalIndent(a.ctrl.Status(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func (a *app) start(ctx context.Context) error {
	s := a.settings.Get()
	fmt.Printf("Starting %s %s...\n", s.ServerType, s.CurrentVersion)
	if err := a.ctrl.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			return fmt.Errorf("%w, attach with: mctool", err)
		}
		return err
	}
	fmt.Println("Server is ready.")
	return nil
}

func (a *app) stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	forced, err := a.ctrl.Stop(ctx)
	if err != nil {
		return err
	}
	if forced {
		fmt.Println("Warning: server did not exit within the grace period and was killed.")
	} else {
		fmt.Println("Server stopped.")
	}
	return nil
}

func (a *app) restart(ctx context.Context) error {
	fmt.Println("Restarting server...")
	forced, err := a.ctrl.Restart(ctx)
	if err != nil {
		return err
	}
	if forced {
		fmt.Println("Warning: server did not exit within the grace period and was killed before restarting.")
	}
	fmt.Println("Server is ready.")
	return nil
}

func (a *app) backup(ctx context.Context) error {
	fmt.Println("Creating backup...")
	rec, err := a.ctrl.Backup(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Backup created: %s\n", rec.Path)
	return nil
}

func (a *app) send(command string) error {
	if err := a.channel.Send(command); err != nil {
		return err
	}
	fmt.Printf("Sent: %s\n", command)
	return nil
}

func (a *app) install(ctx context.Context, serverType domain.ServerType, version string) error {
	ch, wait := progressPrinter()
	err := a.ctrl.Install(ctx, serverType, version, flagRAM, ch)
	wait()
	if err != nil {
		return err
	}
	fmt.Printf("Installed %s %s into %s\n", serverType, version, a.settings.Get().ServerDir)
	return nil
}

func (a *app) switchVersion(ctx context.Context, serverType domain.ServerType, version string) error {
	ch, wait := progressPrinter()
	err := a.ctrl.SwitchVersion(ctx, serverType, version, flagForce, ch)
	wait()
	if err != nil {
		return err
	}
	fmt.Printf("Now on %s %s. Start the server with: mctool --start\n", serverType, version)
	return nil
}

func (a *app) runConsole() error {
	return ui.RunConsole(ui.Deps{
		Channel: a.channel,
		Tailer:  a.tailer,
		History: a.store,
		Status:  a.ctrl.Status,
	})
}

// progressPrinter drains download progress onto stdout.
func progressPrinter() (chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		inline := false
		for ev := range ch {
			if ev.TotalBytes > 0 {
				fmt.Printf("\r%s", ev.Message)
				inline = true
			} else {
				if inline {
					fmt.Println()
					inline = false
				}
				fmt.Println(ev.Message)
			}
		}
		if inline {
			fmt.Println()
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}
