package logsvc

import (
	"fmt"
	"strings"

	"github.com/trezcool/edurise/core"
)

// GooseLogger reports migration progress through a core.Logger.
type GooseLogger struct {
	Logger core.Logger
}

func (l GooseLogger) Printf(format string, v ...interface{}) {
	l.Logger.Info(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (l GooseLogger) Fatalf(format string, v ...interface{}) {
	l.Logger.Fatal(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

// CronLogger reports scheduler events through a core.Logger.
type CronLogger struct {
	Logger core.Logger
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug("cron: "+msg, keyValues(keysAndValues))
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error("cron: "+msg, err, keyValues(keysAndValues))
}

func keyValues(kv []interface{}) map[string]interface{} {
	data := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		data[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return data
}
