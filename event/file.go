package event

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileLog appends events to a JSONL file in the same format as the RabbitMQ
// out-log, so a node started without a broker can be replayed later.
type FileLog struct {
	mu      sync.Mutex
	f       *os.File
	service string
}

func OpenFileLog(path, service string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &FileLog{f: f, service: service}, nil
}

func (l *FileLog) Publish(_ context.Context, action string, data []byte) error {
	line, err := json.Marshal(EventLogData{
		Time:    time.Now().UnixMicro(),
		Service: l.service,
		Action:  action,
		Data:    string(data),
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.f.Write(append(line, '\n'))
	return err
}

func (l *FileLog) Close() error {
	return l.f.Close()
}
