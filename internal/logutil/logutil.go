package logutil

import "github.com/decred/slog"

// taggedLogger prepends a fixed tag to every message of an underlying
// logger. Used to tell apart log lines of otherwise identical workers,
// such as the per-device capture loops.
type taggedLogger struct {
	log slog.Logger
	tag string
}

func (p *taggedLogger) Tracef(format string, params ...interface{}) {
	p.log.Tracef(p.tag+" "+format, params...)
}

func (p *taggedLogger) Debugf(format string, params ...interface{}) {
	p.log.Debugf(p.tag+" "+format, params...)
}

func (p *taggedLogger) Infof(format string, params ...interface{}) {
	p.log.Infof(p.tag+" "+format, params...)
}

func (p *taggedLogger) Warnf(format string, params ...interface{}) {
	p.log.Warnf(p.tag+" "+format, params...)
}

func (p *taggedLogger) Errorf(format string, params ...interface{}) {
	p.log.Errorf(p.tag+" "+format, params...)
}

func (p *taggedLogger) Criticalf(format string, params ...interface{}) {
	p.log.Criticalf(p.tag+" "+format, params...)
}

func (p *taggedLogger) Trace(v ...interface{}) {
	p.log.Trace(append([]interface{}{p.tag}, v...)...)
}

func (p *taggedLogger) Debug(v ...interface{}) {
	p.log.Debug(append([]interface{}{p.tag}, v...)...)
}

func (p *taggedLogger) Info(v ...interface{}) {
	p.log.Info(append([]interface{}{p.tag}, v...)...)
}

func (p *taggedLogger) Warn(v ...interface{}) {
	p.log.Warn(append([]interface{}{p.tag}, v...)...)
}

func (p *taggedLogger) Error(v ...interface{}) {
	p.log.Error(append([]interface{}{p.tag}, v...)...)
}

func (p *taggedLogger) Critical(v ...interface{}) {
	p.log.Critical(append([]interface{}{p.tag}, v...)...)
}

// Level returns the current logging level.
func (p *taggedLogger) Level() slog.Level {
	return p.log.Level()
}

// SetLevel changes the logging level to the passed level.
func (p *taggedLogger) SetLevel(level slog.Level) {
	p.log.SetLevel(level)
}

// TagLogger returns a logger that prepends [tag] to every message.
func TagLogger(log slog.Logger, tag string) slog.Logger {
	return &taggedLogger{log: log, tag: "[" + tag + "]"}
}
