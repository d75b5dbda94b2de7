package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propdesk/turnover/internal/daemon"
	"github.com/propdesk/turnover/internal/domain"
)

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at info level instead of warn")
}

// addActorFlags registers --as and --role on cmd.
func addActorFlags(cmd *cobra.Command, defaultRole domain.Role) {
	cmd.Flags().String("as", "", "Act as this worker or manager ID")
	cmd.Flags().String("role", string(defaultRole), "Role: worker or manager")
}

// currentActor reads the actor flags of cmd. defaultID applies when --as is
// not given; an empty defaultID makes --as mandatory.
func currentActor(cmd *cobra.Command, defaultID string) (domain.Actor, error) {
	id, _ := cmd.Flags().GetString("as")
	role, _ := cmd.Flags().GetString("role")
	a := domain.Actor{ID: id, Role: domain.Role(role)}
	if a.ID == "" {
		a.ID = defaultID
	}
	if a.ID == "" {
		return a, fmt.Errorf("--as is required")
	}
	switch a.Role {
	case domain.RoleWorker, domain.RoleManager:
	default:
		return a, fmt.Errorf("unknown role %q (want worker or manager)", role)
	}
	return a, nil
}

// openDaemon wires the configured stack for a one-shot command. The CLI
// logs at warn unless --verbose is set.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !verbose {
		cfg.Logging.Level = "warn"
	}
	cfg.Events.Websocket = false
	return daemon.NewWithConfig(cfg)
}
