package notifier

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes notifications to the log instead of delivering them.
// Codes and links only appear at debug level.
type LogNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, to, name, code string) error {
	n.emit(TemplateVerificationCode, to, name, "code", code)
	return nil
}

func (n *LogNotifier) SendWelcome(_ context.Context, to, name string) error {
	n.emit(TemplateWelcome, to, name, "", "")
	return nil
}

func (n *LogNotifier) SendResetLink(_ context.Context, to, name, link string) error {
	n.emit(TemplateResetLink, to, name, "link", link)
	return nil
}

func (n *LogNotifier) SendResetSuccess(_ context.Context, to, name string) error {
	n.emit(TemplateResetSuccess, to, name, "", "")
	return nil
}

func (n *LogNotifier) SendEmailChangeCode(_ context.Context, to, name, code string) error {
	n.emit(TemplateEmailChangeCode, to, name, "code", code)
	return nil
}

func (n *LogNotifier) emit(template, to, name, key, value string) {
	entry := n.logger.WithFields(logrus.Fields{
		"template": template,
		"to":       to,
	})
	entry.Info("Notification queued")

	if key != "" {
		entry.WithFields(logrus.Fields{"name": name, key: value}).Debug("Notification payload")
	}
}
