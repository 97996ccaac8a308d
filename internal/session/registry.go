// Package session はスピーキング練習セッションの開始から発話の解析までを扱う。
package session

import (
	"errors"
	"sync"

	"github.com/hitoshi/newstalk/internal/model"
)

// ErrDuplicateID は登録済みのIDで登録しようとした場合のエラー。
var ErrDuplicateID = errors.New("session: duplicate id")

// Registry はプロセス内のセッションストア。
// 登録されたセッションは変更されず、プロセス終了まで保持される。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*model.Session)}
}

// Insert はセッションを登録する。
// 値をコピーしてから書き込みロックを取るため、Getが組み立て途中のセッションを見ることはない。
func (r *Registry) Insert(s model.Session) error {
	entry := s
	if s.Lesson != nil {
		meta := *s.Lesson
		entry.Lesson = &meta
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[entry.ID]; exists {
		return ErrDuplicateID
	}
	r.sessions[entry.ID] = &entry
	return nil
}

// Get はIDに対応するセッションのコピーを返す。
func (r *Registry) Get(id string) (model.Session, bool) {
	r.mu.RLock()
	entry, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return model.Session{}, false
	}
	out := *entry
	if entry.Lesson != nil {
		meta := *entry.Lesson
		out.Lesson = &meta
	}
	return out, true
}

// Len は登録済みのセッション数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
