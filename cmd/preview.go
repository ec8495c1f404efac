package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/folioview/folio/internal/config"
	"github.com/folioview/folio/internal/controlhost"
	"github.com/folioview/folio/internal/render"
	"github.com/folioview/folio/internal/session"
)

var previewCmd = &cobra.Command{
	Use:   "preview [dir]",
	Short: "Start the live preview server",
	Long: `Start the live preview server for a document folder. Edits to content,
stylesheets, or the project manifest rebuild the preview and reload
connected browsers. The server shuts itself down once the last browser
tab has been gone for the grace period.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().IntP("port", "p", 13000, "control port to serve on")
	previewCmd.Flags().String("host", "localhost", "host to bind to")
	previewCmd.Flags().Bool("open", false, "open the browser automatically")
	previewCmd.Flags().Duration("debounce", 300*time.Millisecond, "quiet window before a rebuild fires")

	_ = viper.BindPFlag("server.port", previewCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", previewCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", previewCmd.Flags().Lookup("open"))
	_ = viper.BindPFlag("preview.debounce", previewCmd.Flags().Lookup("debounce"))
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	sourceDir := "."
	if len(args) > 0 {
		sourceDir = args[0]
	}
	sourceDir, err = filepath.Abs(sourceDir)
	if err != nil {
		return err
	}
	// Folder browsing and switching stay inside the permitted root; it
	// defaults to the previewed folder's parent so siblings are reachable.
	if !viper.IsSet("source.root") {
		cfg.Source.Root = filepath.Dir(sourceDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := session.NewController(cfg, render.Markdown{})
	if err := controller.Start(ctx, sourceDir); err != nil {
		return err
	}

	host := controlhost.New(cfg, controller)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		if err := controller.Shutdown(ctx); err != nil {
			log.Warn("session shutdown error", "error", err)
		}
		if err := host.Shutdown(ctx); err != nil {
			log.Warn("control host shutdown error", "error", err)
		}
		cancel()
	}()

	url := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Previewing %s at %s\n", sourceDir, url)
	if cfg.Server.Open {
		go openBrowser(url)
	}

	return host.Start(ctx)
}

func openBrowser(url string) {
	time.Sleep(100 * time.Millisecond) // give the server time to bind

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}
	if err != nil {
		log.Warn("failed to open browser", "error", err)
	}
}
