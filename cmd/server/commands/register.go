package commands

import (
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"opsdeck/cmd/server/config"
	"opsdeck/internal/logentries"
	"opsdeck/internal/logsearch"
	"opsdeck/internal/sshpool"
	"opsdeck/internal/terminals"
)

var (
	dbInstance        *gorm.DB
	entriesRepository *logentries.Repository
	pool              *sshpool.Pool
	orchestrator      *logsearch.Orchestrator
	engine            *terminals.Engine
)

func RegisterCommands(rootCmd *cobra.Command, db *gorm.DB) {
	dbInstance = db
	entriesRepository = logentries.NewRepository(db)

	pool = sshpool.New(sshpool.Options{
		MaxConnections: config.Config.PoolMaxConnections,
		StaleAfter:     config.Config.PoolStaleAfter,
		ConnectTimeout: config.Config.ConnectTimeout,
		SweepEvery:     config.Config.PoolSweepEvery,
	})

	orchestrator = logsearch.NewOrchestrator(pool, logsearch.OrchestratorOptions{
		Workers:     config.Config.SearchWorkers,
		HostTimeout: config.Config.SearchTimeout,
	})

	engine = terminals.New(terminals.Options{
		IdleAfter:      config.Config.TerminalIdleAfter,
		ReapEvery:      config.Config.TerminalReapEvery,
		HistoryBound:   config.Config.TerminalHistoryBound,
		ConnectTimeout: config.Config.ConnectTimeout,
	})

	rootCmd.AddCommand(LogsCmd)
	rootCmd.AddCommand(SearchCmd)
	rootCmd.AddCommand(ExecCmd)
	rootCmd.AddCommand(ShellCmd)
}
