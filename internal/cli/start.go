package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wenli/memekeeper/internal/config"
	"github.com/wenli/memekeeper/internal/daemon"
	"github.com/wenli/memekeeper/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the memekeeper daemon",
	Long: `Start the memekeeper daemon in the foreground.
The daemon serves the Telegram bot and the admin panel until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, loader.GetConfigPath(), log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := writePIDFile(pidFile); err != nil {
		log.Warn().Err(err).Str("path", pidFile).Msg("Failed to write PID file")
	}
	defer os.Remove(pidFile)

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Block until SIGINT/SIGTERM
	d.Wait()

	return nil
}

func writePIDFile(pidFile string) error {
	if err := os.MkdirAll(filepath.Dir(pidFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644)
}

func getPIDFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/memekeeper.pid"
	}
	return filepath.Join(home, ".memekeeper", "memekeeper.pid")
}

func isRunning(pidFile string) bool {
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	_, err = fmt.Sscanf(string(data), "%d", &pid)
	if err != nil {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// On Unix, FindProcess always succeeds, so check with signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
