package application

import "log/slog"

const ModuleName = "token-trading/marketplace-service"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
