package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI is an api.WriteAPI that drops everything written to it.
type MockWriteAPI struct{}

func (m *MockWriteAPI) WriteRecord(line string)       {}
func (m *MockWriteAPI) WritePoint(point *write.Point) {}
func (m *MockWriteAPI) Flush()                        {}
func (m *MockWriteAPI) Close()                        {}
func (m *MockWriteAPI) Errors() <-chan error          { return nil }

// RecordingWriteAPI is an api.WriteAPI that keeps points in memory. The zero value is ready to use.
type RecordingWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
}

func (m *RecordingWriteAPI) WriteRecord(line string) {}

func (m *RecordingWriteAPI) WritePoint(point *write.Point) {
	m.mu.Lock()
	m.points = append(m.points, point)
	m.mu.Unlock()
}

func (m *RecordingWriteAPI) Flush() {}

func (m *RecordingWriteAPI) Close() {}

func (m *RecordingWriteAPI) Errors() <-chan error { return nil }

// Points returns the points written so far with the given measurement name, or all of them if name is empty.
func (m *RecordingWriteAPI) Points(name string) []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []*write.Point
	for _, p := range m.points {
		if name == "" || p.Name() == name {
			ret = append(ret, p)
		}
	}
	return ret
}
