// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/papertrans/internal/storage"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Memory is a goroutine-safe map-backed Store.
type Memory struct {
	mu      sync.Mutex
	objects map[string]object

	// FailOp makes the named operation ("put", "get", ...) fail.
	FailOp string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func (m *Memory) fail(op, name string) error {
	if m.FailOp == op {
		return &storage.StorageError{Op: op, Object: name, Err: fmt.Errorf("injected failure")}
	}
	return nil
}

func notFound(op, name string) error {
	return &storage.StorageError{Op: op, Object: name, Err: storage.ErrObjectNotFound}
}

func (m *Memory) Put(ctx context.Context, name string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("put", name); err != nil {
		return err
	}
	if contentType == "" {
		contentType = storage.ContentTypeFor(name)
	}
	m.objects[name] = object{data: append([]byte(nil), data...), contentType: contentType, modified: time.Now()}
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get", name); err != nil {
		return nil, err
	}
	obj, ok := m.objects[name]
	if !ok {
		return nil, notFound("get", name)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *Memory) Stat(ctx context.Context, name string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("stat", name); err != nil {
		return storage.ObjectInfo{}, err
	}
	obj, ok := m.objects[name]
	if !ok {
		return storage.ObjectInfo{}, notFound("stat", name)
	}
	return info(name, obj), nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list", prefix); err != nil {
		return nil, err
	}
	var out []storage.ObjectInfo
	for name, obj := range m.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, info(name, obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete", name); err != nil {
		return err
	}
	if _, ok := m.objects[name]; !ok {
		return notFound("delete", name)
	}
	delete(m.objects, name)
	return nil
}

func (m *Memory) PresignGet(ctx context.Context, name string, expiry time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return "", notFound("presign", name)
	}
	return fmt.Sprintf("memory://papers/%s?expires=%d", name, int(expiry.Seconds())), nil
}

func (m *Memory) Rename(ctx context.Context, oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("rename", oldName); err != nil {
		return err
	}
	obj, ok := m.objects[oldName]
	if !ok {
		return notFound("rename", oldName)
	}
	delete(m.objects, oldName)
	m.objects[newName] = obj
	return nil
}

// Names returns the stored object names in sorted order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.objects))
	for n := range m.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func info(name string, obj object) storage.ObjectInfo {
	return storage.ObjectInfo{
		Name:         name,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
	}
}
