package log

import "github.com/sirupsen/logrus"

// FromLogrus adapts logrus entry to Logger.
func FromLogrus(e *logrus.Entry) Logger { return logrusLogger{e} }

type logrusLogger struct {
	*logrus.Entry
}

func (l logrusLogger) WithFields(keyValues LogFields) Logger {
	return logrusLogger{l.Entry.WithFields(logrus.Fields(keyValues.Fields()))}
}

func (l logrusLogger) Fields() Fields {
	if len(l.Data) == 0 {
		return nil
	}
	return Fields(l.Data)
}

var _ Logger = logrusLogger{}
