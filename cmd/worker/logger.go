package main

import (
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/config"
	"github.com/Aashik-asn/Industrial-Equipment-Analytics-Platform/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
