package filecopy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// lockShardSize 按目标路径分片加锁，不同文件可以并发复制
	lockShardSize = 64

	// MaxBaseNameLen 副本文件名中保留的源文件名长度
	MaxBaseNameLen = 64
)

// Sidecars SQLite WAL 模式下与主库一起复制的文件后缀
var Sidecars = []string{"-wal", "-shm"}

// Entry 一个源文件当前对应的副本
type Entry struct {
	Source  string
	Path    string
	Size    int64
	ModTime time.Time
	Version string
}

// Manager 把数据库文件复制到缓存目录后再打开，避免与正在写入的微信进程争用同一个文件。
// 源文件大小和修改时间不变时复用已有副本。
type Manager struct {
	dir     string
	owned   bool
	entries map[string]*Entry
	locks   [lockShardSize]sync.Mutex
	mutex   sync.Mutex
}

// NewManager dir 为空时在系统临时目录下创建专属目录，Close 时整体删除
func NewManager(dir string) (*Manager, error) {
	m := &Manager{dir: dir, entries: make(map[string]*Entry)}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "wxchat_cache_")
		if err != nil {
			return nil, err
		}
		m.dir = tmp
		m.owned = true
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	log.Debug().Str("dir", m.dir).Msg("filecopy: manager created")
	return m, nil
}

func (m *Manager) Dir() string {
	return m.dir
}

// Copy 返回 src 当前版本的副本路径，必要时重新复制
func (m *Manager) Copy(src string) (string, error) {
	if src == "" {
		return "", fmt.Errorf("empty path provided")
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("source path is a directory: %s", src)
	}

	version := versionOf(src, info)
	if path, ok := m.lookup(src, version); ok {
		return path, nil
	}

	// 按源路径分片加锁；副本路径带随机后缀，不能作为锁的 key
	lock := m.getPathLock(src)
	lock.Lock()
	defer lock.Unlock()

	// 拿到锁后再查一次，其他协程可能已经复制完成
	if path, ok := m.lookup(src, version); ok {
		return path, nil
	}

	dst := m.pathFor(src, version)

	if err := atomicCopyFile(src, dst, info); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	for _, suffix := range Sidecars {
		sinfo, err := os.Stat(src + suffix)
		if err != nil {
			continue
		}
		if err := atomicCopyFile(src+suffix, dst+suffix, sinfo); err != nil {
			log.Warn().Err(err).Str("file", src+suffix).Msg("filecopy: copy sidecar failed")
		}
	}

	m.mutex.Lock()
	m.entries[src] = &Entry{Source: src, Path: dst, Size: info.Size(), ModTime: info.ModTime(), Version: version}
	m.mutex.Unlock()
	log.Debug().Str("src", src).Str("dst", dst).Int64("size", info.Size()).Msg("filecopy: file copied")
	return dst, nil
}

func (m *Manager) lookup(src, version string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entry, ok := m.entries[src]
	if !ok || entry.Version != version {
		return "", false
	}
	if _, err := os.Stat(entry.Path); err != nil {
		delete(m.entries, src)
		return "", false
	}
	return entry.Path, true
}

// Forget 解除源文件与当前副本的关联，下次 Copy 一定生成新副本；旧副本文件由 Release 删除
func (m *Manager) Forget(src string) {
	m.mutex.Lock()
	delete(m.entries, src)
	m.mutex.Unlock()
}

// Release 删除副本及其 WAL 文件
func (m *Manager) Release(path string) {
	m.mutex.Lock()
	for src, entry := range m.entries {
		if entry.Path == path {
			delete(m.entries, src)
		}
	}
	m.mutex.Unlock()

	if !strings.HasPrefix(path, m.dir) {
		return
	}
	for _, p := range append([]string{path}, sidecarPaths(path)...) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Debug().Err(err).Str("file", p).Msg("filecopy: remove copy failed")
		}
	}
}

// Entries 当前所有副本，按源路径排序无保证
func (m *Manager) Entries() []*Entry {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Close 删除全部副本
func (m *Manager) Close() error {
	m.mutex.Lock()
	entries := m.entries
	m.entries = make(map[string]*Entry)
	m.mutex.Unlock()

	if m.owned {
		log.Debug().Str("dir", m.dir).Msg("filecopy: removing cache dir")
		return os.RemoveAll(m.dir)
	}
	for _, e := range entries {
		for _, p := range append([]string{e.Path}, sidecarPaths(e.Path)...) {
			os.Remove(p)
		}
	}
	return nil
}

func (m *Manager) getPathLock(path string) *sync.Mutex {
	h := uint32(0)
	for i := 0; i < len(path); i++ {
		h = 31*h + uint32(path[i])
	}
	return &m.locks[h%lockShardSize]
}

// pathFor 副本路径：{dir}/{baseName}_+{pathHash}_+{version}_+{nonce}{ext}，
// 每次复制的文件名都不同，旧连接仍在使用的副本不会被覆盖
func (m *Manager) pathFor(src, version string) string {
	base := extractBaseName(src)
	if len(base) > MaxBaseNameLen {
		base = base[:MaxBaseNameLen]
	}
	base = strings.ReplaceAll(base, "_+", "_")
	return filepath.Join(m.dir, fmt.Sprintf("%s_+%s_+%s_+%s%s", base, hashString(src), version, uuid.NewString()[:8], filepath.Ext(src)))
}

func sidecarPaths(path string) []string {
	out := make([]string, 0, len(Sidecars))
	for _, suffix := range Sidecars {
		out = append(out, path+suffix)
	}
	return out
}
