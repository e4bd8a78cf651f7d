package dbm

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/pkg/filecopy"
)

// StaleCloseDelay 文件被替换后旧连接延迟关闭，给正在进行的查询留出时间
var StaleCloseDelay = 5 * time.Second

// DBManager 管理一个目录下已解密的 SQLite 数据库，数据库 id 为不带扩展名的文件名
type DBManager struct {
	path      string
	dbs       map[string]*sql.DB
	dbPaths   map[string]string
	counts    map[string]int
	snapshots *filecopy.Manager
	copies    map[string]string
	callbacks []func(event fsnotify.Event) error
	watcher   *fsnotify.Watcher
	mutex     sync.RWMutex
}

func NewDBManager(path string) *DBManager {
	log.Debug().Str("path", path).Msg("dbm: creating new DBManager")
	return &DBManager{
		path:    path,
		dbs:     make(map[string]*sql.DB),
		dbPaths: make(map[string]string),
		counts:  make(map[string]int),
		copies:  make(map[string]string),
	}
}

// EnableSnapshot 之后打开的数据库都先复制到 dir（为空时用临时目录）再以只读方式打开
func (d *DBManager) EnableSnapshot(dir string) error {
	m, err := filecopy.NewManager(dir)
	if err != nil {
		return err
	}
	d.mutex.Lock()
	d.snapshots = m
	d.mutex.Unlock()
	log.Debug().Str("dir", m.Dir()).Msg("dbm: snapshot enabled")
	return nil
}

// Scan 注册目录（含子目录）下所有 .db 文件，返回排序后的 id 列表
func (d *DBManager) Scan() ([]string, error) {
	log.Debug().Str("path", d.path).Msg("dbm: scanning data dir")
	if d.path == "" {
		return nil, errors.DataDirEmpty()
	}
	err := filepath.WalkDir(d.path, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !isDBFile(path) {
			return nil
		}
		d.Register(IDFromPath(path), path)
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("dbm: scan failed")
		return nil, err
	}
	return d.IDs(), nil
}

// Register 登记数据库文件，同名 id 以先登记的为准
func (d *DBManager) Register(id, path string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.dbPaths[id]; ok {
		log.Debug().Str("id", id).Str("path", path).Msg("dbm: id already registered, skip")
		return
	}
	d.dbPaths[id] = path
	log.Debug().Str("id", id).Str("path", path).Msg("dbm: database registered")
}

func (d *DBManager) IDs() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	ids := make([]string, 0, len(d.dbPaths))
	for id := range d.dbPaths {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (d *DBManager) GetDBPath(id string) (string, error) {
	d.mutex.RLock()
	path, ok := d.dbPaths[id]
	d.mutex.RUnlock()
	if !ok {
		return "", errors.DatabaseNotFound(id)
	}
	return path, nil
}

// Connect 打开并校验数据库，重复调用直接复用已有连接
func (d *DBManager) Connect(ctx context.Context, id string) error {
	_, err := d.OpenDB(ctx, id)
	return err
}

func (d *DBManager) OpenDB(ctx context.Context, id string) (*sql.DB, error) {
	d.mutex.RLock()
	db, ok := d.dbs[id]
	d.mutex.RUnlock()
	if ok {
		log.Debug().Str("id", id).Msg("dbm: cache hit for db connection")
		return db, nil
	}

	path, err := d.GetDBPath(id)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("id", id).Str("path", path).Msg("dbm: cache miss for db connection, opening new")

	d.mutex.RLock()
	snapshots := d.snapshots
	d.mutex.RUnlock()
	if snapshots != nil {
		if path, err = snapshots.Copy(path); err != nil {
			log.Err(err).Msgf("复制数据库 %s 失败", id)
			return nil, errors.DBConnectFailed(id, err)
		}
	}

	db, err = sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		log.Err(err).Msgf("连接数据库 %s 失败", path)
		return nil, errors.DBConnectFailed(id, err)
	}
	// 未解密或损坏的文件在读 sqlite_master 时才会报错
	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		db.Close()
		log.Err(err).Msgf("数据库 %s 不可读", path)
		return nil, errors.DBConnectFailed(id, err)
	}

	d.mutex.Lock()
	if exist, ok := d.dbs[id]; ok {
		d.mutex.Unlock()
		db.Close()
		return exist, nil
	}
	d.dbs[id] = db
	if snapshots != nil {
		d.copies[id] = path
	}
	d.mutex.Unlock()
	log.Debug().Str("id", id).Int("objects", n).Msg("dbm: db opened successfully")
	return db, nil
}

// ListTables 列出用户表及其列
func (d *DBManager) ListTables(ctx context.Context, id string) ([]*model.TableInfo, error) {
	db, err := d.OpenDB(ctx, id)
	if err != nil {
		return nil, err
	}

	query := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.QueryFailed(query, err)
	}
	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, errors.ScanRowFailed(err)
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.QueryFailed(query, err)
	}

	tables := make([]*model.TableInfo, 0, len(names))
	for _, name := range names {
		columns, err := tableColumns(ctx, db, name)
		if err != nil {
			log.Debug().Err(err).Str("id", id).Str("table", name).Msg("dbm: table_info failed")
			columns = []string{}
		}
		tables = append(tables, &model.TableInfo{Name: name, Columns: columns})
	}
	log.Debug().Str("id", id).Int("tables", len(tables)).Msg("dbm: tables listed")
	return tables, nil
}

// QueryRows 分页读取整张表，limit <= 0 表示不限制；TotalRows 为整表行数
func (d *DBManager) QueryRows(ctx context.Context, id, table string, limit, offset int) (*model.QueryResult, error) {
	db, err := d.OpenDB(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}

	// 分页依赖稳定顺序；WITHOUT ROWID 表没有 rowid，退回存储顺序（即主键顺序）
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY rowid LIMIT ? OFFSET ?", QuoteIdent(table))
	result, err := queryResult(ctx, db, query, limit, offset)
	if err != nil && ctx.Err() == nil {
		log.Debug().Err(err).Str("id", id).Str("table", table).Msg("dbm: order by rowid failed, paging unordered")
		query = fmt.Sprintf("SELECT * FROM %s LIMIT ? OFFSET ?", QuoteIdent(table))
		result, err = queryResult(ctx, db, query, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	total, err := d.count(ctx, db, id, table)
	if err != nil {
		log.Debug().Err(err).Str("id", id).Str("table", table).Msg("dbm: count failed")
		total = offset + len(result.Rows)
	}
	result.TotalRows = total
	return result, nil
}

// RunQuery 执行只读 SQL
func (d *DBManager) RunQuery(ctx context.Context, id, query string) (*model.QueryResult, error) {
	if !IsReadOnly(query) {
		return nil, errors.ReadOnlyQuery()
	}
	db, err := d.OpenDB(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := queryResult(ctx, db, query)
	if err != nil {
		return nil, err
	}
	result.TotalRows = len(result.Rows)
	return result, nil
}

func (d *DBManager) count(ctx context.Context, db *sql.DB, id, table string) (int, error) {
	key := id + "\x00" + table
	d.mutex.RLock()
	n, ok := d.counts[key]
	d.mutex.RUnlock()
	if ok {
		return n, nil
	}
	query := "SELECT count(*) FROM " + QuoteIdent(table)
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, errors.QueryFailed(query, err)
	}
	d.mutex.Lock()
	d.counts[key] = n
	d.mutex.Unlock()
	return n, nil
}

// AddCallback 数据库文件变化时回调
func (d *DBManager) AddCallback(callback func(event fsnotify.Event) error) {
	d.mutex.Lock()
	d.callbacks = append(d.callbacks, callback)
	d.mutex.Unlock()
}

// Callback 处理文件事件：新文件登记，被替换或删除的文件丢弃旧连接，下次访问时重新打开
func (d *DBManager) Callback(event fsnotify.Event) error {
	log.Debug().Str("event", event.String()).Msg("dbm: file event callback")
	if !isDBFile(event.Name) {
		return nil
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		log.Debug().Str("op", event.Op.String()).Msg("dbm: ignoring event")
		return nil
	}

	id := IDFromPath(event.Name)
	if event.Op.Has(fsnotify.Create) {
		d.Register(id, event.Name)
	}
	d.mutex.RLock()
	snapshots := d.snapshots
	d.mutex.RUnlock()
	if snapshots != nil {
		if path, err := d.GetDBPath(id); err == nil {
			snapshots.Forget(path)
		}
	}

	d.mutex.Lock()
	if db, ok := d.dbs[id]; ok {
		log.Debug().Str("id", id).Msg("dbm: closing stale db connection")
		delete(d.dbs, id)
		copyPath := d.copies[id]
		delete(d.copies, id)
		go func(db *sql.DB, snapshots *filecopy.Manager, copyPath string, delay time.Duration) {
			time.Sleep(delay)
			db.Close()
			if snapshots != nil && copyPath != "" {
				snapshots.Release(copyPath)
			}
			log.Debug().Msg("dbm: stale db connection closed")
		}(db, snapshots, copyPath, StaleCloseDelay)
	}
	prefix := id + "\x00"
	for key := range d.counts {
		if strings.HasPrefix(key, prefix) {
			delete(d.counts, key)
		}
	}
	callbacks := append([]func(event fsnotify.Event) error(nil), d.callbacks...)
	d.mutex.Unlock()

	for _, cb := range callbacks {
		if err := cb(event); err != nil {
			log.Debug().Err(err).Msg("dbm: callback failed")
		}
	}
	return nil
}

// Start 监听数据目录
func (d *DBManager) Start() error {
	log.Debug().Msg("dbm: starting file watcher")
	d.mutex.Lock()
	if d.watcher != nil {
		d.mutex.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mutex.Unlock()
		return err
	}
	if err := watcher.Add(d.path); err != nil {
		d.mutex.Unlock()
		watcher.Close()
		return err
	}
	d.watcher = watcher
	d.mutex.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				d.Callback(event)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Err(err).Msg("dbm: watcher error")
			}
		}
	}()
	return nil
}

func (d *DBManager) Stop() error {
	log.Debug().Msg("dbm: stopping file watcher")
	d.mutex.Lock()
	watcher := d.watcher
	d.watcher = nil
	d.mutex.Unlock()
	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

func (d *DBManager) Close() error {
	log.Debug().Msg("dbm: closing DBManager")
	d.mutex.Lock()
	for id, db := range d.dbs {
		db.Close()
		delete(d.dbs, id)
	}
	snapshots := d.snapshots
	d.snapshots = nil
	d.copies = make(map[string]string)
	d.mutex.Unlock()
	if snapshots != nil {
		if err := snapshots.Close(); err != nil {
			log.Debug().Err(err).Msg("dbm: remove snapshots failed")
		}
	}
	return d.Stop()
}

func isDBFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".db")
}

// IDFromPath 数据库 id 为不带扩展名的文件名
func IDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
