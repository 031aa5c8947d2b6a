// The board binary runs one viewing surface: it polls the queue API and
// announces called patients exactly once each. Point it at a doctor with
// BOARD_DOCTOR_ID, or leave it empty for a clinic-wide display.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/clinicdesk/navbat/internal/board"
	appconfig "github.com/clinicdesk/navbat/internal/config"
	"github.com/clinicdesk/navbat/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).WithComponent("board")
	logger.Info("starting display board",
		"queue_api", cfg.QueueAPIURL,
		"doctor_id", cfg.BoardDoctorID,
		"poll_interval", cfg.PollInterval.String(),
	)

	client := board.NewClient(cfg.QueueAPIURL, cfg.BoardDoctorID)
	announcer := board.NewAnnouncer(board.NewLogSink(logger), logger)
	poller := board.NewPoller(client, announcer, logger).
		WithInterval(cfg.PollInterval).
		WithTimeout(cfg.PollTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller.Run(ctx)

	announcer.Reset()
	logger.Info("display board stopped")
}
