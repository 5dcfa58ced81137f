package cmd

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
)

var ServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the daemon as a systemd user service",
}

func init() {
	ServiceCmd.AddCommand(serviceInstallCmd)
	ServiceCmd.AddCommand(serviceUninstallCmd)
	ServiceCmd.AddCommand(serviceStartCmd)
	ServiceCmd.AddCommand(serviceStopCmd)
	ServiceCmd.AddCommand(serviceRestartCmd)
	ServiceCmd.AddCommand(serviceStatusCmd)
}

const serviceUnitName = "codelatchd"

// installBinPath returns the path where the service binary lives so
// the unit survives rebuilds of the working copy.
func installBinPath() string {
	return filepath.Join(config.DataDir(), "bin", "codelatch")
}

func unitFilePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", serviceUnitName+".service")
}

const unitTemplate = `[Unit]
Description=Codelatch supervision daemon
After=network-online.target

[Service]
Type=simple
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=2

[Install]
WantedBy=default.target
`

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()   //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	out.Close()           //nolint:errcheck
	os.Chmod(tmp, 0755)   //nolint:errcheck
	return os.Rename(tmp, dst)
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the systemd user service",
	Run: func(cmd *cobra.Command, args []string) {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		exePath, _ = filepath.Abs(exePath)
		binPath := installBinPath()
		fmt.Printf("Copying binary to %s...\n", binPath)
		if err := copyFile(exePath, binPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to copy binary: %v\n", err)
			os.Exit(1)
		}

		unitPath := unitFilePath()
		if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create unit dir: %v\n", err)
			os.Exit(1)
		}
		tmpl, _ := template.New("unit").Parse(unitTemplate)
		f, err := os.Create(unitPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create unit file: %v\n", err)
			os.Exit(1)
		}
		tmpl.Execute(f, map[string]string{ //nolint:errcheck
			"ExecStart": binPath + " start --foreground",
		})
		f.Close() //nolint:errcheck
		systemctl("daemon-reload")
		systemctl("enable", serviceUnitName)
		systemctl("start", serviceUnitName)
		fmt.Printf("Service %s installed at %s\n", serviceUnitName, unitPath)
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the systemd user service",
	Run: func(cmd *cobra.Command, args []string) {
		systemctl("stop", serviceUnitName)
		systemctl("disable", serviceUnitName)
		os.Remove(unitFilePath()) //nolint:errcheck
		systemctl("daemon-reload")
		os.Remove(installBinPath()) //nolint:errcheck
		fmt.Printf("Service %s uninstalled\n", serviceUnitName)
	},
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start service",
	Run:   func(cmd *cobra.Command, args []string) { systemctl("start", serviceUnitName) },
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop service",
	Run:   func(cmd *cobra.Command, args []string) { systemctl("stop", serviceUnitName) },
}

var serviceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart service",
	Run:   func(cmd *cobra.Command, args []string) { systemctl("restart", serviceUnitName) },
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Run:   func(cmd *cobra.Command, args []string) { systemctl("status", serviceUnitName) },
}

func systemctl(args ...string) {
	allArgs := append([]string{"--user"}, args...)
	c := exec.Command("systemctl", allArgs...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Run() //nolint:errcheck
}
