// Package storetest provides an in-memory Remote with failure injection
// for exercising resolution, listing, and staging without a live store.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rlanders/dr-restore-utility/internal/store"
)

type Mem struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Failure injection. ListErr fails every List; GetErr/StatErr fail
	// only the named keys.
	ListErr error
	GetErr  map[string]error
	StatErr map[string]error
}

func NewMem() *Mem {
	return &Mem{
		objects: map[string][]byte{},
		GetErr:  map[string]error{},
		StatErr: map[string]error{},
	}
}

// Put seeds an object. Test-only; the production Remote surface is
// read-only.
func (m *Mem) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

func (m *Mem) List(ctx context.Context, prefix string) ([]store.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var infos []store.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, store.ObjectInfo{Key: key, Size: int64(len(data)), Modified: time.Now()})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *Mem) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.GetErr[key]; err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, store.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Mem) Stat(ctx context.Context, key string) (store.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return store.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.StatErr[key]; err != nil {
		return store.ObjectInfo{}, err
	}
	data, ok := m.objects[key]
	if !ok {
		return store.ObjectInfo{}, fmt.Errorf("%s: %w", key, store.ErrNotExist)
	}
	return store.ObjectInfo{Key: key, Size: int64(len(data)), Modified: time.Now()}, nil
}

func (m *Mem) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.StatErr[key]; err != nil {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}
