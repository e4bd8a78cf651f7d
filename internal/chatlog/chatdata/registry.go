package chatdata

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ConnectionRegistry 记录已连接的数据库，同一 id 的并发连接请求只会真正连接一次
type ConnectionRegistry struct {
	source    Source
	group     singleflight.Group
	connected map[string]struct{}
	mutex     sync.RWMutex
}

func NewConnectionRegistry(source Source) *ConnectionRegistry {
	return &ConnectionRegistry{
		source:    source,
		connected: make(map[string]struct{}),
	}
}

func (r *ConnectionRegistry) EnsureConnected(ctx context.Context, id string) error {
	if r.IsConnected(id) {
		return nil
	}
	_, err, shared := r.group.Do(id, func() (any, error) {
		if r.IsConnected(id) {
			return nil, nil
		}
		log.Debug().Str("db", id).Msg("connecting database")
		if err := r.source.Connect(ctx, id); err != nil {
			return nil, err
		}
		r.mutex.Lock()
		r.connected[id] = struct{}{}
		r.mutex.Unlock()
		return nil, nil
	})
	if shared {
		log.Debug().Str("db", id).Msg("joined in-flight connect")
	}
	return err
}

func (r *ConnectionRegistry) IsConnected(id string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.connected[id]
	return ok
}

// Forget 数据库文件被替换后调用，下次访问时重新连接
func (r *ConnectionRegistry) Forget(id string) {
	r.mutex.Lock()
	delete(r.connected, id)
	r.mutex.Unlock()
}

func (r *ConnectionRegistry) Connected() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.connected))
	for id := range r.connected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
