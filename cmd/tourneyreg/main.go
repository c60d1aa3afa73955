// Command tourneyreg は大会参加登録APIのサーバー、ワーカー、マイグレーションを起動する。
//
//	tourneyreg [serve|worker|migrate [up|down]|healthcheck]
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/tourneyreg/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("tourneyreg exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
