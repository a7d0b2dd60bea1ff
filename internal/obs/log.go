package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

// serviceName tags every log line so aggregated output from several
// processes (api, migrate, smoke) stays attributable.
const serviceName = "lendcore-api"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Output is one JSON object
// per line on stdout; there is no leveled framework, callers put a
// "level" field in the entry instead.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest writes one JSON line for a handled HTTP request. The entry
// is emitted as-is apart from the service tag.
func LogRequest(entry map[string]any) {
	if _, ok := entry["service"]; !ok {
		entry["service"] = serviceName
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","service":"lendcore-api","msg":"log entry not serializable"}`)
		return
	}
	Logger().Println(string(data))
}
