package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the kitmsg background service",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install kitmsg as a user service (launchd/systemd)",
		Long:  "Generates and installs a service file that runs `kitmsg serve` in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, content, err := serviceFile(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Printf("Service installed: %s\n", path)
			if runtime.GOOS == "darwin" {
				fmt.Printf("To start: launchctl load %s\n", path)
			} else {
				fmt.Printf("To start:  systemctl --user start kitmsg\n")
				fmt.Printf("To enable: systemctl --user enable kitmsg\n")
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the kitmsg user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, _, err := serviceFile(runtime.GOOS, home, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service uninstalled: %s\n", path)
			return nil
		},
	}
}

const launchdLabel = "io.kitmsg.serve"

// serviceFile returns where the service definition for goos lives and its
// rendered content.
func serviceFile(goos, home, execPath, cfgPath string) (string, string, error) {
	switch goos {
	case "darwin":
		logDir := filepath.Join(home, ".kitmsg", "logs")
		content := strings.NewReplacer(
			"{{LABEL}}", launchdLabel,
			"{{EXEC}}", execPath,
			"{{CONFIG}}", cfgPath,
			"{{LOG}}", filepath.Join(logDir, "kitmsg.log"),
			"{{ERR_LOG}}", filepath.Join(logDir, "kitmsg-error.log"),
		).Replace(launchdTemplate)
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), content, nil
	case "linux":
		content := strings.NewReplacer("{{EXEC}}", execPath, "{{CONFIG}}", cfgPath).Replace(systemdTemplate)
		return filepath.Join(home, ".config", "systemd", "user", "kitmsg.service"), content, nil
	default:
		return "", "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=kitmsg message router
After=network.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
