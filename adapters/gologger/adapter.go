// Package gologger resolves glog loggers for messaging components and bridges
// them into go-job.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultName = "messaging"

// Resolve picks provider first, then logger, then a nop logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if name = strings.TrimSpace(name); name == "" {
		name = DefaultName
	}
	return glog.Resolve(name, provider, logger)
}

// Component returns the logger for one named component of provider.
func Component(provider glog.LoggerProvider, component string) glog.Logger {
	_, logger := Resolve(DefaultName+"."+strings.TrimSpace(component), provider, nil)
	return logger
}

// ForJob resolves the logger pair and converts it for go-job workers.
func ForJob(name string, provider glog.LoggerProvider, logger glog.Logger) (job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	var (
		jobProvider job.LoggerProvider
		jobLogger   job.Logger
	)
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	if resolvedLogger != nil {
		jobLogger = job.GoLogger(resolvedLogger)
	}
	return jobProvider, jobLogger
}
