package database

import (
	"context"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/chatlog/chatdata"
	"github.com/takeaway1/wxchat/internal/errors"
	"github.com/takeaway1/wxchat/internal/model"
	"github.com/takeaway1/wxchat/internal/wechatdb/dbm"
	"github.com/takeaway1/wxchat/internal/wechatdb/resolver"
)

const (
	StateInit = iota
	StateReady
	StateError
)

type Service struct {
	State    int
	StateMsg string
	conf     Config
	dbm      *dbm.DBManager
	data     *chatdata.Service

	contacts []*model.Contact
	mutex    sync.RWMutex
}

type Config interface {
	GetDataDir() string
	GetContactDB() string
	GetMessageDBs(available []string) []string
	GetSelfID() string
	GetWatch() bool
	GetSnapshot() bool
	GetSnapshotDir() string
	GetBatchSize() int
	GetMessageCap() int
	GetValidateSample() int
	GetActivitySample() int
	GetWorkers() int
}

func NewService(conf Config) *Service {
	return &Service{
		conf: conf,
	}
}

// Start 扫描数据目录并准备查询服务，watch 开启时监听数据库文件替换
func (s *Service) Start() error {
	dataDir := s.conf.GetDataDir()
	if dataDir == "" {
		s.SetError("data dir is empty")
		return errors.DataDirEmpty()
	}

	m := dbm.NewDBManager(dataDir)
	if s.conf.GetSnapshot() {
		if err := m.EnableSnapshot(s.conf.GetSnapshotDir()); err != nil {
			s.SetError(err.Error())
			return err
		}
	}
	ids, err := m.Scan()
	if err != nil {
		s.SetError(err.Error())
		return err
	}
	log.Info().Str("dir", dataDir).Strs("databases", ids).Msg("database: data dir scanned")

	s.dbm = m
	s.data = chatdata.New(m, chatdata.Options{
		BatchSize:      s.conf.GetBatchSize(),
		MessageCap:     s.conf.GetMessageCap(),
		ValidateSample: s.conf.GetValidateSample(),
		ActivitySample: s.conf.GetActivitySample(),
		Workers:        s.conf.GetWorkers(),
		SelfID:         s.conf.GetSelfID(),
	}, nil)
	m.AddCallback(s.onFileChange)

	if s.conf.GetWatch() {
		if err := m.Start(); err != nil {
			log.Warn().Err(err).Msg("database: watch data dir failed")
		}
	}
	s.SetReady()
	return nil
}

func (s *Service) Stop() error {
	if s.dbm != nil {
		s.dbm.Close()
	}
	s.SetInit()
	s.dbm = nil
	s.data = nil
	s.resetContacts()
	return nil
}

func (s *Service) SetInit() {
	s.State = StateInit
}

func (s *Service) SetReady() {
	s.State = StateReady
}

func (s *Service) SetError(msg string) {
	s.State = StateError
	s.StateMsg = msg
}

// Ready 服务未就绪时返回 503 错误
func (s *Service) Ready() error {
	if s.State != StateReady || s.data == nil {
		return errors.ServiceNotReady()
	}
	return nil
}

func (s *Service) Data() *chatdata.Service {
	return s.data
}

func (s *Service) onFileChange(event fsnotify.Event) error {
	id := dbm.IDFromPath(event.Name)
	log.Debug().Str("db", id).Str("op", event.Op.String()).Msg("database: file changed, invalidating")
	if s.data != nil {
		s.data.Invalidate(id)
	}
	s.resetContacts()
	return nil
}

// Databases 已登记的全部数据库 id
func (s *Service) Databases() []string {
	if s.dbm == nil {
		return []string{}
	}
	return s.dbm.IDs()
}

// MessageDBs 参与消息加载的数据库 id
func (s *Service) MessageDBs() []string {
	return s.conf.GetMessageDBs(s.Databases())
}

type GetContactsResp struct {
	Items []*model.Contact `json:"items"`
	Total int              `json:"total"`
}

// GetContacts 按活跃度排序的联系人列表，key 为空时返回全部
func (s *Service) GetContacts(ctx context.Context, key string, limit, offset int) (*GetContactsResp, error) {
	log.Debug().Str("key", key).Int("limit", limit).Int("offset", offset).Msg("getting contacts")
	all, err := s.allContacts(ctx)
	if err != nil {
		return nil, err
	}
	items := filterContacts(all, key)
	return &GetContactsResp{Items: paginate(items, limit, offset), Total: len(items)}, nil
}

// FindContact 按 id / 用户名 / 显示名 / 备注 / 昵称 精确查找
func (s *Service) FindContact(ctx context.Context, key string) (*model.Contact, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.InvalidArg("contact")
	}
	all, err := s.allContacts(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		for _, v := range []string{c.ID, c.UserName, c.DisplayName, c.Remark, c.NickName} {
			if v != "" && v == key {
				return c, nil
			}
		}
	}
	return nil, errors.ContactNotFound(key)
}

type GetMessagesResp struct {
	Contact *model.Contact   `json:"contact"`
	Items   []*model.Message `json:"items"`
	Total   int              `json:"total"`
}

func (s *Service) GetMessages(ctx context.Context, key string, limit, offset int) (*GetMessagesResp, error) {
	log.Debug().Str("key", key).Int("limit", limit).Int("offset", offset).Msg("getting messages")
	contact, err := s.FindContact(ctx, key)
	if err != nil {
		return nil, err
	}
	all, err := s.allContacts(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.data.LoadMessages(ctx, contact, s.MessageDBs(), all)
	if err != nil {
		return nil, err
	}
	return &GetMessagesResp{Contact: contact, Items: paginate(msgs, limit, offset), Total: len(msgs)}, nil
}

func (s *Service) Diagnose(ctx context.Context, key string) ([]*resolver.Diagnosis, error) {
	contact, err := s.FindContact(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.data.DiagnoseChatMapping(ctx, contact, s.MessageDBs())
}

func (s *Service) ChatTables(ctx context.Context, dbID string, validate bool) ([]*model.TableInfo, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	return s.data.ChatTables(ctx, dbID, validate)
}

func (s *Service) Query(ctx context.Context, dbID, query string) (*model.QueryResult, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	return s.data.RunQuery(ctx, dbID, query)
}

func (s *Service) allContacts(ctx context.Context) ([]*model.Contact, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	s.mutex.RLock()
	contacts := s.contacts
	s.mutex.RUnlock()
	if contacts != nil {
		return contacts, nil
	}

	contacts, err := s.data.LoadContactsWithHeuristicSorting(ctx, s.conf.GetContactDB(), s.MessageDBs())
	if err != nil {
		return nil, err
	}
	s.mutex.Lock()
	s.contacts = contacts
	s.mutex.Unlock()
	return contacts, nil
}

func (s *Service) resetContacts() {
	s.mutex.Lock()
	s.contacts = nil
	s.mutex.Unlock()
}

func filterContacts(contacts []*model.Contact, key string) []*model.Contact {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return contacts
	}
	out := make([]*model.Contact, 0)
	for _, c := range contacts {
		for _, v := range []string{c.ID, c.UserName, c.DisplayName, c.Remark, c.NickName} {
			if v != "" && strings.Contains(strings.ToLower(v), key) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
